package match

import (
	"errors"
	"path"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which local files an upload skips.
//
// Patterns use doublestar semantics against the slash-separated path
// relative to the uploaded directory's parent (e.g. "photos/2024/a.jpg").
// A pattern without "/" also matches the base name alone, so "*.tmp"
// excludes temp files at any depth.
//
// A nil *Matcher excludes nothing. The Matcher is safe for concurrent use.
type Matcher struct {
	excludes   []string
	skipHidden bool
}

// Config configures a Matcher.
type Config struct {
	// Excludes are glob patterns for files to skip.
	Excludes []string

	// SkipHidden excludes files with any path segment starting with '.'.
	SkipHidden bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New compiles cfg. Patterns are normalized so Windows-style separators work.
func New(cfg Config) (*Matcher, error) {
	excludes := make([]string, 0, len(cfg.Excludes))
	for _, raw := range cfg.Excludes {
		if raw == "" {
			continue
		}
		normalized := NormalizePattern(raw)
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		excludes = append(excludes, normalized)
	}
	return &Matcher{excludes: excludes, skipHidden: cfg.SkipHidden}, nil
}

// Excluded reports whether relPath should be skipped.
func (m *Matcher) Excluded(relPath string) bool {
	if m == nil {
		return false
	}
	if m.skipHidden && IsHidden(relPath) {
		return true
	}
	base := path.Base(relPath)
	for _, p := range m.excludes {
		if matchPattern(p, relPath) {
			return true
		}
		if !HasSeparator(p) && matchPattern(p, base) {
			return true
		}
	}
	return false
}

// Patterns returns the normalized exclude patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.excludes))
	copy(out, m.excludes)
	return out
}

// Empty reports whether the matcher excludes nothing.
func (m *Matcher) Empty() bool {
	return m == nil || (len(m.excludes) == 0 && !m.skipHidden)
}

func matchPattern(pattern, key string) bool {
	matched, err := doublestar.Match(pattern, key)
	if err != nil {
		// Validated at construction time.
		return false
	}
	return matched
}
