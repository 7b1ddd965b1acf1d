package transfer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/ossbrowse/pkg/output"
)

// errSkip marks a job that resolved to Skip at execution time.
var errSkip = errors.New("skipped")

// job is one planned transfer. run returns the bytes moved and, when the
// local target was renamed at execution time, the final path.
type job struct {
	key  string
	path string
	run  func(ctx context.Context) (int64, string, error)
}

type runStats struct {
	completed int64
	skipped   int64
	failed    []*ItemError
	canceled  error
}

// run executes jobs with at most o.concurrency in flight. Cancellation is
// checked before each job starts; a job that is already running finishes.
// A job returning a cancellation cause (conflict.ErrCanceled) stops the
// jobs that have not started yet.
func (o *options) run(parent context.Context, phase, direction string, jobs []job) runStats {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	// Records are still written after cancellation so the summary is complete.
	recordCtx := context.WithoutCancel(parent)

	total := int64(len(jobs))
	var (
		completed atomic.Int64
		skipped   atomic.Int64
		mu        sync.Mutex
		failed    []*ItemError
	)

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			n, finalPath, err := j.run(ctx)
			if finalPath == "" {
				finalPath = j.path
			}
			switch {
			case errors.Is(err, errSkip):
				skipped.Add(1)
				_ = o.writer.WriteSkip(recordCtx, &output.SkipRecord{Key: j.key, Path: finalPath, Reason: output.SkipReasonConflict})
				return nil
			case err != nil && errors.Is(err, context.Canceled):
				cancel(err)
				return nil
			case err != nil:
				itemErr := &ItemError{Key: j.key, Path: finalPath, Err: err}
				mu.Lock()
				failed = append(failed, itemErr)
				mu.Unlock()
				o.logger.Debug("Transfer failed",
					zap.String("direction", direction),
					zap.String("key", j.key),
					zap.Error(err))
				_ = o.writer.WriteError(recordCtx, &output.ErrorRecord{
					Code:    classifyErrCode(err),
					Message: err.Error(),
					Key:     j.key,
					Path:    finalPath,
				})
				return nil
			}

			done := completed.Add(1)
			_ = o.writer.WriteTransfer(recordCtx, &output.TransferRecord{Direction: direction, Key: j.key, Path: finalPath, Bytes: n})
			_ = o.writer.WriteProgress(recordCtx, &output.ProgressRecord{Phase: phase, Completed: done, Total: total, Key: j.key})
			if o.progress != nil {
				o.progress(total, done, j.key)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := runStats{
		completed: completed.Load(),
		skipped:   skipped.Load(),
		failed:    failed,
	}
	if ctx.Err() != nil {
		stats.canceled = context.Cause(ctx)
	}
	return stats
}

func (o *options) summarize(ctx context.Context, op string, res Result, stats runStats, start time.Time) {
	elapsed := time.Since(start)
	_ = o.writer.WriteSummary(context.WithoutCancel(ctx), &output.SummaryRecord{
		Operation:     op,
		Total:         res.Total,
		Completed:     res.Completed,
		Skipped:       res.Skipped,
		Errors:        int64(len(stats.failed)),
		Canceled:      stats.canceled != nil,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	})
}

// finish turns run stats into the batch error, if any.
func finish(op string, total int64, stats runStats) error {
	if stats.canceled != nil {
		return stats.canceled
	}
	if len(stats.failed) > 0 {
		return &BatchError{Op: op, Total: int(total), Failed: stats.failed}
	}
	return nil
}
