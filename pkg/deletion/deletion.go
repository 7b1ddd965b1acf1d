// Package deletion removes selected objects and folders from a bucket.
//
// Deletes above a threshold ask for confirmation first. Keys go out in
// chunks of at most provider.MaxBatchDelete, one chunk at a time.
package deletion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/pkg/listing"
	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/output"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/session"
)

// DefaultThreshold is the key count at which a delete needs confirmation.
const DefaultThreshold = 50

// ErrDeclined is returned when the confirmer refuses a delete. It wraps
// context.Canceled.
var ErrDeclined = fmt.Errorf("delete declined: %w", context.Canceled)

// Confirmer approves large deletes.
type Confirmer interface {
	ConfirmDelete(ctx context.Context, total int) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, total int) (bool, error)

// ConfirmDelete calls f.
func (f ConfirmerFunc) ConfirmDelete(ctx context.Context, total int) (bool, error) {
	return f(ctx, total)
}

// Always answers every confirmation with ok.
func Always(ok bool) Confirmer {
	return ConfirmerFunc(func(context.Context, int) (bool, error) { return ok, nil })
}

// ProgressFunc is called after every chunk.
type ProgressFunc func(deleted, total int64)

// PartialError lists keys a batch delete reported as failed.
type PartialError struct {
	Total  int
	Failed []provider.DeleteError
}

func (e *PartialError) Error() string {
	f := e.Failed[0]
	return fmt.Sprintf("delete: %d of %d keys failed; first: %s: %s %s", len(e.Failed), e.Total, f.Key, f.Code, f.Message)
}

// Coordinator deletes node selections.
type Coordinator struct {
	sess      *session.Session
	lister    *listing.Service
	threshold int
	batchSize int
	confirmer Confirmer
	progress  ProgressFunc
	writer    output.Writer
	logger    *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithThreshold sets the confirmation threshold. Values <= 0 use DefaultThreshold.
func WithThreshold(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithBatchSize caps keys per chunk. Values outside 1..MaxBatchDelete are ignored.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 && n <= provider.MaxBatchDelete {
			c.batchSize = n
		}
	}
}

// WithConfirmer sets who approves large deletes. The default declines.
func WithConfirmer(cf Confirmer) Option {
	return func(c *Coordinator) {
		if cf != nil {
			c.confirmer = cf
		}
	}
}

// WithProgress sets the per-chunk callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) { c.progress = fn }
}

// WithWriter sets the JSONL record sink.
func WithWriter(w output.Writer) Option {
	return func(c *Coordinator) {
		if w != nil {
			c.writer = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator. lister enumerates selected folders.
func New(sess *session.Session, lister *listing.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		sess:      sess,
		lister:    lister,
		threshold: DefaultThreshold,
		batchSize: provider.MaxBatchDelete,
		confirmer: Always(false),
		writer:    output.Discard,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delete removes every key the nodes cover: a File its key, a Folder every
// key under its prefix, marker included. It returns how many keys were
// actually deleted, also when it stops early.
//
// A chunk that has started is allowed to finish after ctx is canceled;
// later chunks are not sent.
func (c *Coordinator) Delete(ctx context.Context, nodes []node.Node) (int64, error) {
	start := time.Now()

	keys, err := c.enumerate(ctx, nodes)
	if err != nil {
		return 0, err
	}
	total := len(keys)
	if total == 0 {
		return 0, nil
	}

	if total >= c.threshold {
		ok, err := c.confirmer.ConfirmDelete(ctx, total)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrDeclined
		}
	}

	var (
		deleted int64
		failed  []provider.DeleteError
		stopErr error
	)
	recordCtx := context.WithoutCancel(ctx)
	for lo := 0; lo < total; lo += c.batchSize {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		chunk := keys[lo:min(lo+c.batchSize, total)]

		errs, err := c.deleteChunk(recordCtx, chunk)
		if err != nil {
			stopErr = err
			break
		}
		failed = append(failed, errs...)
		deleted += int64(len(chunk) - len(errs))

		_ = c.writer.WriteDelete(recordCtx, &output.DeleteRecord{Keys: chunk, Batch: len(chunk) > 1})
		for _, e := range errs {
			_ = c.writer.WriteError(recordCtx, &output.ErrorRecord{Code: e.Code, Message: e.Message, Key: e.Key})
		}
		_ = c.writer.WriteProgress(recordCtx, &output.ProgressRecord{Phase: output.PhaseDeleting, Completed: deleted, Total: int64(total)})
		if c.progress != nil {
			c.progress(deleted, int64(total))
		}
	}

	elapsed := time.Since(start)
	_ = c.writer.WriteSummary(recordCtx, &output.SummaryRecord{
		Operation:     "delete",
		Total:         int64(total),
		Completed:     deleted,
		Errors:        int64(len(failed)),
		Canceled:      stopErr != nil && ctx.Err() != nil,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	})
	c.logger.Debug("Delete finished",
		zap.Int("total", total),
		zap.Int64("deleted", deleted),
		zap.Int("failed", len(failed)))

	if stopErr != nil {
		return deleted, stopErr
	}
	if len(failed) > 0 {
		return deleted, &PartialError{Total: total, Failed: failed}
	}
	return deleted, nil
}

// deleteChunk sends one chunk: a single key through DeleteObject, more
// through DeleteObjects.
func (c *Coordinator) deleteChunk(ctx context.Context, chunk []string) ([]provider.DeleteError, error) {
	var errs []provider.DeleteError
	err := c.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		if len(chunk) == 1 {
			return b.DeleteObject(ctx, chunk[0])
		}
		var err error
		errs, err = b.DeleteObjects(ctx, chunk)
		return err
	})
	return errs, err
}

// enumerate expands nodes into unique keys, in selection order.
func (c *Coordinator) enumerate(ctx context.Context, nodes []node.Node) ([]string, error) {
	var keys []string
	seen := make(map[string]bool)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	for _, n := range nodes {
		switch v := n.(type) {
		case *node.File:
			add(v.Key())
		case *node.Folder:
			under, err := c.lister.Keys(ctx, v.Prefix())
			if err != nil {
				return nil, err
			}
			for _, k := range under {
				add(k)
			}
		default:
			return nil, &listing.TypeError{Op: "delete", Kind: n.Kind()}
		}
	}
	return keys, nil
}
