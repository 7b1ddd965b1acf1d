package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/pkg/conflict"
	"github.com/3leaps/ossbrowse/pkg/listing"
	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/output"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/session"
)

// Downloader copies objects and folders to a local directory.
type Downloader struct {
	sess   *session.Session
	lister *listing.Service
	opts   options
}

// NewDownloader creates a Downloader. lister expands selected folders.
func NewDownloader(sess *session.Session, lister *listing.Service, opts ...Option) *Downloader {
	o := defaultOptions()
	o.apply(opts)
	return &Downloader{sess: sess, lister: lister, opts: o}
}

// Download copies nodes into targetDir. A File lands at targetDir/<name>;
// a Folder lands at targetDir/<folder name>/<remainder>. Items whose
// relative path would leave targetDir are skipped and never written.
//
// Collisions are settled in two passes sharing one decision. Planning
// looks for duplicate relative paths and existing local files: Skip keeps
// the first occurrence, Overwrite keeps the last, Rename gives every
// colliding item a free path. At execution each item whose target exists
// locally applies the same decision again.
func (d *Downloader) Download(ctx context.Context, nodes []node.Node, targetDir string) (Result, error) {
	start := time.Now()

	items, err := d.lister.Expand(ctx, nodes)
	if err != nil {
		return Result{}, err
	}
	items, escaping := d.localItems(ctx, items)
	if len(items) == 0 {
		return Result{Skipped: escaping}, nil
	}

	resolver := conflict.NewResolver(d.opts.prompter)
	planned, skipped, err := d.plan(ctx, resolver, items, targetDir)
	res := Result{Skipped: escaping + skipped}
	if err != nil {
		return res, err
	}

	claims := &localClaims{taken: make(map[string]bool)}
	jobs := make([]job, 0, len(planned))
	for _, it := range planned {
		target := localPath(targetDir, it.RelativePath)
		jobs = append(jobs, job{
			key:  it.Key,
			path: target,
			run: func(ctx context.Context) (int64, string, error) {
				return d.fetch(ctx, resolver, claims, it, target)
			},
		})
	}
	res.Total = int64(len(jobs))

	d.opts.logger.Debug("Download planned",
		zap.Int64("total", res.Total),
		zap.Int64("skipped", res.Skipped),
		zap.String("target", targetDir))

	stats := d.opts.run(ctx, output.PhaseDownloading, output.DirectionDownload, jobs)
	res.Completed = stats.completed
	res.Skipped += stats.skipped
	d.opts.summarize(ctx, "download", res, stats, start)
	return res, finish("download", res.Total, stats)
}

// localItems drops items whose relative path is absolute or climbs out
// of the target with "..".
func (d *Downloader) localItems(ctx context.Context, items []listing.Item) ([]listing.Item, int64) {
	kept := make([]listing.Item, 0, len(items))
	var dropped int64
	for _, it := range items {
		if isLocalPath(it.RelativePath) {
			kept = append(kept, it)
			continue
		}
		dropped++
		d.opts.logger.Warn("Skipping object with unsafe local path",
			zap.String("key", it.Key),
			zap.String("path", it.RelativePath))
		_ = d.opts.writer.WriteSkip(ctx, &output.SkipRecord{
			Key:    it.Key,
			Path:   it.RelativePath,
			Reason: output.SkipReasonUnsafe,
		})
	}
	return kept, dropped
}

// plan applies the batch-wide conflict decision to the expanded items.
func (d *Downloader) plan(ctx context.Context, r *conflict.Resolver, items []listing.Item, targetDir string) ([]listing.Item, int64, error) {
	first := ""
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.RelativePath] || fileExists(localPath(targetDir, it.RelativePath)) {
			first = it.RelativePath
			break
		}
		seen[it.RelativePath] = true
	}
	if first == "" {
		return items, 0, nil
	}

	decision, err := r.Decide(ctx, localPath(targetDir, first))
	if err != nil {
		return nil, 0, err
	}

	var out, dropped []listing.Item
	switch decision {
	case conflict.Skip:
		out, dropped = dedupe(items)
	case conflict.Overwrite:
		reversed := slices.Clone(items)
		slices.Reverse(reversed)
		out, dropped = dedupe(reversed)
		slices.Reverse(out)
	case conflict.Rename:
		used := make(map[string]bool, len(items))
		taken := func(rel string) bool {
			return used[rel] || fileExists(localPath(targetDir, rel))
		}
		out = make([]listing.Item, 0, len(items))
		for _, it := range items {
			if taken(it.RelativePath) {
				it.RelativePath = conflict.FreeName(it.RelativePath, taken)
			}
			used[it.RelativePath] = true
			out = append(out, it)
		}
	}

	for _, it := range dropped {
		_ = d.opts.writer.WriteSkip(ctx, &output.SkipRecord{
			Key:    it.Key,
			Path:   localPath(targetDir, it.RelativePath),
			Reason: output.SkipReasonConflict,
		})
	}
	return out, int64(len(dropped)), nil
}

// fetch downloads one item, re-checking the local target first.
func (d *Downloader) fetch(ctx context.Context, r *conflict.Resolver, claims *localClaims, it listing.Item, target string) (int64, string, error) {
	target, err := claims.claim(ctx, r, target)
	if err != nil {
		return 0, target, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, target, err
	}

	var n int64
	err = d.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		var err error
		n, err = b.DownloadFile(ctx, it.Key, target)
		return err
	})
	if err != nil {
		return 0, target, err
	}
	if it.Size > 0 && n != it.Size {
		return n, target, &SizeMismatchError{Key: it.Key, Expected: it.Size, Got: n}
	}
	return n, target, nil
}

// localClaims tracks paths renamed at execution time so two workers never
// pick the same free name.
type localClaims struct {
	mu    sync.Mutex
	taken map[string]bool
}

func (c *localClaims) claim(ctx context.Context, r *conflict.Resolver, target string) (string, error) {
	c.mu.Lock()
	claimed := c.taken[target]
	c.mu.Unlock()
	if !claimed && !fileExists(target) {
		return target, nil
	}

	decision, err := r.Decide(ctx, target)
	if err != nil {
		return target, err
	}
	switch decision {
	case conflict.Skip:
		return target, errSkip
	case conflict.Rename:
		c.mu.Lock()
		defer c.mu.Unlock()
		renamed := conflict.FreeName(filepath.ToSlash(target), func(p string) bool {
			return c.taken[filepath.FromSlash(p)] || fileExists(filepath.FromSlash(p))
		})
		target = filepath.FromSlash(renamed)
		c.taken[target] = true
		return target, nil
	case conflict.Overwrite:
		return target, nil
	default:
		return target, fmt.Errorf("unexpected decision %v", decision)
	}
}

// dedupe keeps the first item for every relative path.
func dedupe(items []listing.Item) (kept, dropped []listing.Item) {
	seen := make(map[string]bool, len(items))
	kept = make([]listing.Item, 0, len(items))
	for _, it := range items {
		if seen[it.RelativePath] {
			dropped = append(dropped, it)
			continue
		}
		seen[it.RelativePath] = true
		kept = append(kept, it)
	}
	return kept, dropped
}

func isLocalPath(rel string) bool {
	return rel != "" && filepath.IsLocal(filepath.FromSlash(rel))
}

func localPath(dir, rel string) string {
	return filepath.Join(dir, filepath.FromSlash(rel))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
