// Package transfer moves files between the local filesystem and a bucket.
//
// Uploads and downloads share one shape: plan the batch, settle name
// collisions with a single conflict decision, then run at most
// Concurrency transfers at once. The completed count is reported even when
// some items fail or the batch is canceled.
package transfer

import (
	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/pkg/conflict"
	"github.com/3leaps/ossbrowse/pkg/match"
	"github.com/3leaps/ossbrowse/pkg/output"
)

// DefaultConcurrency is the number of simultaneous transfers.
const DefaultConcurrency = 4

// ProgressFunc is called after every completed item.
type ProgressFunc func(total, completed int64, key string)

// ChangeListener is notified when an upload changed bucket contents.
type ChangeListener interface {
	BucketChanged(credentialID, prefix string)
}

// ChangeListenerFunc adapts a function to ChangeListener.
type ChangeListenerFunc func(credentialID, prefix string)

// BucketChanged calls f.
func (f ChangeListenerFunc) BucketChanged(credentialID, prefix string) { f(credentialID, prefix) }

// Result summarizes a batch.
type Result struct {
	// Total is the number of items planned after conflict resolution.
	Total int64

	// Completed is the number of items actually transferred.
	Completed int64

	// Skipped counts items dropped during conflict resolution, by an
	// exclude pattern, or for a local path outside the target.
	Skipped int64
}

type options struct {
	concurrency  int
	credentialID string
	prompter     conflict.Prompter
	listener     ChangeListener
	progress     ProgressFunc
	writer       output.Writer
	matcher      *match.Matcher
	logger       *zap.Logger
}

// Option configures an Uploader or Downloader.
type Option func(*options)

func defaultOptions() options {
	return options{
		concurrency: DefaultConcurrency,
		prompter:    conflict.Fixed(conflict.Cancel),
		writer:      output.Discard,
		logger:      zap.NewNop(),
	}
}

func (o *options) apply(opts []Option) {
	for _, opt := range opts {
		opt(o)
	}
	if o.concurrency <= 0 {
		o.concurrency = DefaultConcurrency
	}
}

// WithConcurrency caps simultaneous transfers. Values <= 0 use DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithCredentialID sets the credential id passed to the ChangeListener.
func WithCredentialID(id string) Option {
	return func(o *options) { o.credentialID = id }
}

// WithPrompter sets who decides name collisions. The default cancels.
func WithPrompter(p conflict.Prompter) Option {
	return func(o *options) {
		if p != nil {
			o.prompter = p
		}
	}
}

// WithChangeListener sets the listener notified after uploads.
func WithChangeListener(l ChangeListener) Option {
	return func(o *options) { o.listener = l }
}

// WithProgress sets the per-completion callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithWriter sets the JSONL record sink.
func WithWriter(w output.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

// WithExcludes sets the matcher for local files an upload skips.
func WithExcludes(m *match.Matcher) Option {
	return func(o *options) { o.matcher = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
