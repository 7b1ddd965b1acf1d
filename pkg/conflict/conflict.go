// Package conflict decides how a batch handles name collisions.
//
// A Resolver is created per batch. The first collision asks the Prompter;
// every later collision in the same batch reuses that answer. Concurrent
// callers that collide while the question is open wait for the same answer.
package conflict

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Decision is the batch-wide answer to a name collision.
type Decision int

const (
	// Overwrite replaces the existing object or file.
	Overwrite Decision = iota + 1
	// Rename picks a free name of the form base(n)ext.
	Rename
	// Skip drops the colliding item.
	Skip
	// Cancel aborts the batch before any transfer starts.
	Cancel
)

// String returns the lower-case decision name.
func (d Decision) String() string {
	switch d {
	case Overwrite:
		return "overwrite"
	case Rename:
		return "rename"
	case Skip:
		return "skip"
	case Cancel:
		return "cancel"
	}
	return "decision(" + strconv.Itoa(int(d)) + ")"
}

// ParseDecision parses a decision name, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite":
		return Overwrite, nil
	case "rename":
		return Rename, nil
	case "skip":
		return Skip, nil
	case "cancel":
		return Cancel, nil
	}
	return 0, fmt.Errorf("unknown conflict decision %q (want overwrite, rename, skip, or cancel)", s)
}

// ErrCanceled is returned when the batch was canceled at the conflict
// prompt. It matches context.Canceled under errors.Is.
var ErrCanceled = fmt.Errorf("canceled at conflict prompt: %w", context.Canceled)

// Prompter supplies the decision for a batch. path is the first colliding
// path, for display.
type Prompter interface {
	Prompt(ctx context.Context, path string) (Decision, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, path string) (Decision, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, path string) (Decision, error) { return f(ctx, path) }

// Fixed returns a Prompter that always answers d without asking anyone.
func Fixed(d Decision) Prompter {
	return PrompterFunc(func(context.Context, string) (Decision, error) { return d, nil })
}

// Resolver memoizes one decision for one batch. Safe for concurrent use.
type Resolver struct {
	prompter Prompter

	mu       sync.Mutex
	decision Decision
	decided  bool

	group singleflight.Group
}

// NewResolver returns a resolver for a new batch.
func NewResolver(p Prompter) *Resolver {
	return &Resolver{prompter: p}
}

// Decide returns the batch decision, prompting at most once. A Cancel
// decision is returned together with ErrCanceled. Prompt errors are not
// memoized, so a later call asks again.
func (r *Resolver) Decide(ctx context.Context, path string) (Decision, error) {
	if d, ok := r.cached(); ok {
		return d, cancelErr(d)
	}

	v, err, _ := r.group.Do("decide", func() (any, error) {
		if d, ok := r.cached(); ok {
			return d, nil
		}
		d, err := r.prompter.Prompt(ctx, path)
		if err != nil {
			return Decision(0), err
		}
		r.mu.Lock()
		r.decision, r.decided = d, true
		r.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return 0, err
	}
	d := v.(Decision)
	return d, cancelErr(d)
}

// Decided returns the memoized decision, if any.
func (r *Resolver) Decided() (Decision, bool) {
	return r.cached()
}

func (r *Resolver) cached() (Decision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decision, r.decided
}

func cancelErr(d Decision) error {
	if d == Cancel {
		return ErrCanceled
	}
	return nil
}

// FreeName returns the first of path(1)ext, path(2)ext, ... for which exists
// is false. The extension is the suffix from the last "." of the final
// segment, when that dot is not the segment's first character.
func FreeName(path string, exists func(string) bool) string {
	dir, name := "", path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir, name = path[:i+1], path[i+1:]
	}
	base, ext := name, ""
	if dot := strings.LastIndex(name, "."); dot > 0 {
		base, ext = name[:dot], name[dot:]
	}
	for n := 1; ; n++ {
		candidate := dir + base + "(" + strconv.Itoa(n) + ")" + ext
		if !exists(candidate) {
			return candidate
		}
	}
}
