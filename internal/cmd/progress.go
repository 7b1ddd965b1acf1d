package cmd

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// progress drives a terminal progress bar from transfer and delete
// callbacks. The bar is created on the first callback, once the total is
// known. A nil *progress ignores every call.
type progress struct {
	mu   sync.Mutex
	desc string
	out  io.Writer
	bar  *progressbar.ProgressBar
}

// newProgress returns nil when enabled is false.
func newProgress(enabled bool, desc string, out io.Writer) *progress {
	if !enabled {
		return nil
	}
	return &progress{desc: desc, out: out}
}

func (p *progress) update(total, completed int64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		p.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	} else if p.bar.GetMax64() != total {
		p.bar.ChangeMax64(total)
	}
	_ = p.bar.Set64(completed)
}

// transfer adapts update to transfer.ProgressFunc.
func (p *progress) transfer(total, completed int64, _ string) { p.update(total, completed) }

// deletion adapts update to deletion.ProgressFunc.
func (p *progress) deletion(deleted, total int64) { p.update(total, deleted) }

func (p *progress) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
