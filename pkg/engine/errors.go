package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/ossbrowse/pkg/listing"
	"github.com/3leaps/ossbrowse/pkg/transfer"
)

// DomainError is an expected failure with a message meant for users, such
// as an empty upload or an operation on the wrong kind of node.
type DomainError struct {
	Message string
	Err     error
}

func (e *DomainError) Error() string { return e.Message }

func (e *DomainError) Unwrap() error { return e.Err }

// IsDomain reports whether err is a DomainError.
func IsDomain(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// IsCanceled reports whether err means the user or caller stopped the
// operation: context cancellation, a Cancel conflict decision, or a
// declined delete. Callers should stop silently.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Kind classifies an error returned by the engine.
type Kind int

const (
	KindNone Kind = iota
	KindCanceled
	KindDomain
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCanceled:
		return "canceled"
	case KindDomain:
		return "domain"
	default:
		return "failure"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsCanceled(err):
		return KindCanceled
	case IsDomain(err):
		return KindDomain
	default:
		return KindFailure
	}
}

// domainize converts the expected failures of lower packages into
// DomainErrors. Other errors are returned unchanged.
func domainize(err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	var typeErr *listing.TypeError
	switch {
	case errors.As(err, &typeErr):
		return &DomainError{
			Message: fmt.Sprintf("cannot %s a %s node", typeErr.Op, typeErr.Kind),
			Err:     err,
		}
	case errors.Is(err, transfer.ErrEmptyUpload):
		return &DomainError{Message: "nothing to upload", Err: err}
	}
	return err
}
