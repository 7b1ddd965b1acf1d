package transfer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/pkg/conflict"
	"github.com/3leaps/ossbrowse/pkg/output"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/session"
)

// Uploader copies local files and directories into a bucket.
type Uploader struct {
	sess *session.Session
	opts options
}

// NewUploader creates an Uploader bound to sess.
func NewUploader(sess *session.Session, opts ...Option) *Uploader {
	o := defaultOptions()
	o.apply(opts)
	return &Uploader{sess: sess, opts: o}
}

type uploadItem struct {
	source string
	key    string
	drop   bool
}

// Upload copies files (regular files or directories) under destPrefix.
//
// A directory "photos" uploaded to "backup/" lands at "backup/photos/...".
// A single selected file is checked against the bucket alone; a batch is
// also checked against itself, so two sources mapping to the same key
// collide. One conflict decision covers the whole batch.
//
// The returned Result is meaningful even when err is non-nil.
func (u *Uploader) Upload(ctx context.Context, files []string, destPrefix string) (Result, error) {
	start := time.Now()
	prefix := strings.Trim(destPrefix, provider.Delimiter)

	items, excluded, err := u.expand(files, prefix)
	if err != nil {
		return Result{}, err
	}
	res := Result{Skipped: int64(len(excluded))}
	for _, p := range excluded {
		_ = u.opts.writer.WriteSkip(ctx, &output.SkipRecord{Path: p, Reason: output.SkipReasonExcluded})
	}
	if len(items) == 0 {
		return res, ErrEmptyUpload
	}

	resolver := conflict.NewResolver(u.opts.prompter)
	var planned []uploadItem
	var skipped int64
	if len(items) == 1 {
		planned, skipped, err = u.resolveSingle(ctx, resolver, items[0])
	} else {
		planned, skipped, err = u.resolveBatch(ctx, resolver, items)
	}
	res.Skipped += skipped
	if err != nil {
		return res, err
	}

	jobs := make([]job, 0, len(planned))
	for _, it := range planned {
		jobs = append(jobs, job{
			key:  it.key,
			path: it.source,
			run: func(ctx context.Context) (int64, string, error) {
				info, err := os.Stat(it.source)
				if err != nil {
					return 0, "", err
				}
				err = u.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
					return b.PutFile(ctx, it.key, it.source)
				})
				return info.Size(), "", err
			},
		})
	}
	res.Total = int64(len(jobs))

	u.opts.logger.Debug("Upload planned",
		zap.Int64("total", res.Total),
		zap.Int64("skipped", res.Skipped),
		zap.String("prefix", prefix))

	stats := u.opts.run(ctx, output.PhaseUploading, output.DirectionUpload, jobs)
	res.Completed = stats.completed
	res.Skipped += stats.skipped

	if res.Completed > 0 && u.opts.listener != nil {
		u.opts.listener.BucketChanged(u.opts.credentialID, folderPrefix(prefix))
	}
	u.opts.summarize(ctx, "upload", res, stats, start)
	return res, finish("upload", res.Total, stats)
}

// expand walks the selected paths into upload items. Excluded files are
// returned by relative path.
func (u *Uploader) expand(files []string, prefix string) ([]uploadItem, []string, error) {
	var (
		items    []uploadItem
		excluded []string
	)
	add := func(source, rel string) {
		if u.opts.matcher.Excluded(rel) {
			excluded = append(excluded, rel)
			return
		}
		items = append(items, uploadItem{source: source, key: joinKey(prefix, rel)})
	}

	for _, f := range files {
		clean := filepath.Clean(f)
		info, err := os.Stat(clean)
		if err != nil {
			return nil, nil, fmt.Errorf("upload source %s: %w", f, err)
		}
		if !info.IsDir() {
			add(clean, filepath.Base(clean))
			continue
		}

		parent := filepath.Dir(clean)
		err = filepath.WalkDir(clean, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return err
			}
			add(path, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("upload source %s: %w", f, err)
		}
	}
	return items, excluded, nil
}

func (u *Uploader) resolveSingle(ctx context.Context, r *conflict.Resolver, it uploadItem) ([]uploadItem, int64, error) {
	exists, err := u.exists(ctx, it.key)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return []uploadItem{it}, 0, nil
	}

	d, err := r.Decide(ctx, it.key)
	if err != nil {
		return nil, 0, err
	}
	switch d {
	case conflict.Skip:
		u.skip(ctx, it)
		return nil, 1, nil
	case conflict.Rename:
		key, err := u.freeKey(ctx, it.key, nil)
		if err != nil {
			return nil, 0, err
		}
		it.key = key
	}
	return []uploadItem{it}, 0, nil
}

// resolveBatch settles collisions against the bucket and within the batch.
// Overwrite lets a later source replace an earlier one claiming the same
// key. An empty result fails with ErrEmptyUpload.
func (u *Uploader) resolveBatch(ctx context.Context, r *conflict.Resolver, items []uploadItem) ([]uploadItem, int64, error) {
	var (
		planned []uploadItem
		skipped int64
		claimed = make(map[string]int, len(items))
	)

	for _, it := range items {
		_, inBatch := claimed[it.key]
		collides := inBatch
		if !inBatch {
			remote, err := u.exists(ctx, it.key)
			if err != nil {
				return nil, skipped, err
			}
			collides = remote
		}

		if collides {
			d, err := r.Decide(ctx, it.key)
			if err != nil {
				return nil, skipped, err
			}
			switch d {
			case conflict.Skip:
				u.skip(ctx, it)
				skipped++
				continue
			case conflict.Overwrite:
				if idx, ok := claimed[it.key]; ok {
					planned[idx].drop = true
					u.skip(ctx, planned[idx])
					skipped++
				}
			case conflict.Rename:
				key, err := u.freeKey(ctx, it.key, claimed)
				if err != nil {
					return nil, skipped, err
				}
				it.key = key
			}
		}

		claimed[it.key] = len(planned)
		planned = append(planned, it)
	}

	out := planned[:0]
	for _, it := range planned {
		if !it.drop {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil, skipped, ErrEmptyUpload
	}
	return out, skipped, nil
}

// freeKey renames key until it is neither claimed nor present remotely.
func (u *Uploader) freeKey(ctx context.Context, key string, claimed map[string]int) (string, error) {
	var headErr error
	renamed := conflict.FreeName(key, func(candidate string) bool {
		if headErr != nil {
			return false
		}
		if _, ok := claimed[candidate]; ok {
			return true
		}
		ok, err := u.exists(ctx, candidate)
		if err != nil {
			headErr = err
			return false
		}
		return ok
	})
	return renamed, headErr
}

func (u *Uploader) exists(ctx context.Context, key string) (bool, error) {
	err := u.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		_, err := b.Head(ctx, key)
		return err
	})
	if provider.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (u *Uploader) skip(ctx context.Context, it uploadItem) {
	_ = u.opts.writer.WriteSkip(ctx, &output.SkipRecord{Key: it.key, Path: it.source, Reason: output.SkipReasonConflict})
}

func joinKey(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return prefix + provider.Delimiter + rel
}

func folderPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + provider.Delimiter
}
