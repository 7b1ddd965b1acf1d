package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRegion indicates the endpoint rejected the configured region.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")

	// ErrConnection indicates the request never got a response: the
	// connection was refused, reset, or timed out at the transport level.
	// A client handle that produced this error should be rebuilt.
	ErrConnection = errors.New("connection failed")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "List", "Head").
	Op string

	// Provider is the provider type (e.g., "s3").
	Provider ProviderType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// StatusCode is the HTTP status of the response, zero if none was received.
	StatusCode int

	// Err is the classified sentinel when one applies, else the raw error.
	Err error

	// Cause is the raw SDK error when Err holds a sentinel.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Err.Error()
	if e.Cause != nil && e.Cause != e.Err {
		msg = fmt.Sprintf("%v: %v", e.Err, e.Cause)
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %s", e.Provider, e.Op, e.Bucket, e.Key, msg)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Provider, e.Op, e.Bucket, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}

// Unwrap returns the underlying errors for errors.Is/As support.
func (e *ProviderError) Unwrap() []error {
	if e.Cause != nil && e.Cause != e.Err {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsInvalidRegion returns true if the endpoint rejected the region.
func IsInvalidRegion(err error) bool {
	return errors.Is(err, ErrInvalidRegion)
}

// IsProviderUnavailable returns true if the error indicates the provider service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsConnection returns true if the error is a transport-level connection failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}
