package transfer

import (
	"errors"
	"fmt"

	"github.com/3leaps/ossbrowse/pkg/output"
)

// ErrEmptyUpload is returned when the selection expands to no files.
var ErrEmptyUpload = errors.New("no files to upload")

// ItemError is one failed transfer within a batch.
type ItemError struct {
	Key  string
	Path string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Key, e.Path, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// BatchError reports the items of a batch that failed. Items not listed
// either completed or were skipped.
type BatchError struct {
	Op     string
	Total  int
	Failed []*ItemError
}

func (e *BatchError) Error() string {
	if len(e.Failed) == 1 {
		return fmt.Sprintf("%s: 1 of %d items failed: %v", e.Op, e.Total, e.Failed[0])
	}
	return fmt.Sprintf("%s: %d of %d items failed; first: %v", e.Op, len(e.Failed), e.Total, e.Failed[0])
}

// Unwrap exposes each item error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f)
	}
	return errs
}

func classifyErrCode(err error) string {
	if isSizeMismatch(err) {
		// The object changed after listing; report it like a stale key.
		return output.ErrCodeNotFound
	}
	return output.ErrCode(err)
}

func isSizeMismatch(err error) bool {
	var sm *SizeMismatchError
	return errors.As(err, &sm)
}
