// Package provider is the boundary between the browse engine and the bucket
// behind one credential.
//
// A Bucket is everything the engine calls remotely. It is split into small
// interfaces (listing, put, get, delete, presign) so each backend and each
// test double only has to satisfy what a caller asks of it. Keys use "/" as
// the folder separator and a key ending in "/" is a zero-byte folder marker.
package provider

import (
	"context"
	"time"
)

// Provider pages through keys and reads single-object metadata.
// Implementations are used from several transfer workers at once.
type Provider interface {
	// List returns one page of keys under opts.Prefix, in key order.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Head reads the metadata of key, or fails with ErrNotFound.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	Close() error
}

// ListOptions selects a page of a flat listing.
type ListOptions struct {
	Prefix string

	// ContinuationToken is the token of the previous page, empty for the first.
	ContinuationToken string

	// MaxKeys caps the page; 0 leaves it to the backend (1000 on S3).
	MaxKeys int
}

// ListResult is one page of a flat listing. Marker keys are included.
type ListResult struct {
	Objects []ObjectSummary

	// ContinuationToken is empty on the last page.
	ContinuationToken string
	IsTruncated       bool
}

// ObjectSummary is what a listing reports for one key.
type ObjectSummary struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// IsMarker reports whether the summary is a zero-byte folder marker.
func (o ObjectSummary) IsMarker() bool {
	return IsMarkerKey(o.Key)
}

// ObjectMeta is the result of Head, shown by the head command and cached on
// file nodes.
type ObjectMeta struct {
	ObjectSummary

	ContentType  string
	StorageClass string

	// Metadata holds the x-amz-meta-* headers without their prefix.
	Metadata map[string]string
}

// ProviderType names the backend in errors.
type ProviderType string

const (
	ProviderS3   ProviderType = "s3"
	ProviderFile ProviderType = "file"
)

func (p ProviderType) String() string {
	return string(p)
}

// Delimiter separates folder levels in keys.
const Delimiter = "/"

// IsMarkerKey reports whether key denotes a pseudo-directory marker.
func IsMarkerKey(key string) bool {
	return len(key) > 0 && key[len(key)-1] == '/'
}
