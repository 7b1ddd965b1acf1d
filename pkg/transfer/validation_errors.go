package transfer

import "fmt"

// SizeMismatchError indicates a downloaded object's size differs from the
// size reported when the selection was listed.
//
// It does not eliminate TOCTOU races: the object may change again after
// the download.
type SizeMismatchError struct {
	Key      string
	Expected int64
	Got      int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("source size mismatch for %s: expected=%d got=%d", e.Key, e.Expected, e.Got)
}
