package output

import (
	"context"
	"errors"

	"github.com/3leaps/ossbrowse/pkg/provider"
)

// ErrCode maps an error to one of the ErrCode* constants.
func ErrCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrCodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case provider.IsNotFound(err):
		return ErrCodeNotFound
	case provider.IsBucketNotFound(err):
		return ErrCodeBucketNotFound
	case provider.IsAccessDenied(err):
		return ErrCodeAccessDenied
	case provider.IsInvalidCredentials(err):
		return ErrCodeInvalidCredentials
	case provider.IsInvalidRegion(err):
		return ErrCodeInvalidRegion
	case provider.IsThrottled(err):
		return ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return ErrCodeProviderUnavailable
	case provider.IsConnection(err):
		return ErrCodeConnection
	default:
		return ErrCodeInternal
	}
}
