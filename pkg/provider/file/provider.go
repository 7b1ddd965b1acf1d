// Package file exposes a local directory as a bucket.
//
// Keys are slash-separated paths relative to BaseDir. A key ending in "/"
// names a directory, so folder markers map onto real directories and an
// empty directory lists as a marker object.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/3leaps/ossbrowse/pkg/provider"
)

// Provider implements provider.Bucket for a local directory.
type Provider struct {
	baseDir string
	name    string
}

// Ensure Provider implements the full capability set.
var _ provider.Bucket = (*Provider)(nil)

// DefaultMaxKeys is the page size used when a request does not set one.
const DefaultMaxKeys = 1000

// Config configures a file provider.
type Config struct {
	// BaseDir is the directory that acts as the bucket root.
	BaseDir string

	// Name is reported as the bucket in errors. Defaults to the base name of BaseDir.
	Name string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// New creates a file provider rooted at cfg.BaseDir.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	name := cfg.Name
	if name == "" {
		name = filepath.Base(base)
	}
	return &Provider{baseDir: base, name: name}, nil
}

// FromURL builds a provider from a file:// endpoint.
func FromURL(endpoint string) (*Provider, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("endpoint %q is not a file:// URL", endpoint)
	}
	return New(Config{BaseDir: filepath.FromSlash(u.Path)})
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// entry is one listable key: a regular file, or an empty directory marker.
type entry struct {
	key  string
	size int64
	mod  time.Time
}

// List returns a page of keys under opts.Prefix in lexical order.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := p.walk(opts.Prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	page, next := paginate(entries, opts.ContinuationToken, opts.MaxKeys)
	res := &provider.ListResult{Objects: toSummaries(page)}
	if next != "" {
		res.IsTruncated = true
		res.ContinuationToken = next
	}
	return res, nil
}

// ListWithDelimiter returns one directory level under opts.Prefix.
func (p *Provider) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Delimiter != "" && opts.Delimiter != provider.Delimiter {
		return nil, p.wrapError("ListWithDelimiter", opts.Prefix, fmt.Errorf("unsupported delimiter %q", opts.Delimiter))
	}

	dirKey, namePrefix := splitPrefix(opts.Prefix)
	dir, err := p.fullPath(dirKey)
	if err != nil {
		return nil, p.wrapError("ListWithDelimiter", opts.Prefix, err)
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &provider.ListWithDelimiterResult{}, nil
		}
		return nil, p.wrapError("ListWithDelimiter", opts.Prefix, err)
	}

	var entries []entry
	for _, d := range dirents {
		if !strings.HasPrefix(d.Name(), namePrefix) || isTempName(d.Name()) {
			continue
		}
		key := dirKey + d.Name()
		if d.IsDir() {
			entries = append(entries, entry{key: key + provider.Delimiter})
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entry{key: key, size: info.Size(), mod: info.ModTime()})
	}
	// A directory that was requested by its own prefix is its marker.
	if namePrefix == "" && dirKey != "" && len(dirents) == 0 {
		entries = append(entries, entry{key: dirKey})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	page, next := paginate(entries, opts.ContinuationToken, opts.MaxKeys)
	res := &provider.ListWithDelimiterResult{}
	for _, e := range page {
		if provider.IsMarkerKey(e.key) && e.key != dirKey {
			res.CommonPrefixes = append(res.CommonPrefixes, e.key)
			continue
		}
		res.Objects = append(res.Objects, toSummary(e))
	}
	if next != "" {
		res.IsTruncated = true
		res.ContinuationToken = next
	}
	return res, nil
}

// Head returns metadata for a single key.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := p.fullPath(key)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	if st.IsDir() != provider.IsMarkerKey(key) {
		return nil, p.wrapError("Head", key, fs.ErrNotExist)
	}

	meta := &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: strings.TrimPrefix(key, "/"), LastModified: st.ModTime()},
		StorageClass:  "STANDARD",
	}
	if !st.IsDir() {
		meta.Size = st.Size()
	}
	return meta, nil
}

// GetObject opens the file behind key.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	full, err := p.fullPath(key)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, fs.ErrNotExist)
	}
	return f, st.Size(), nil
}

// PutObject writes body to key atomically. A key ending in "/" creates a directory.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	_ = contentLength
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.fullPath(key)
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if provider.IsMarkerKey(key) {
		if err := os.MkdirAll(full, 0o755); err != nil {
			return p.wrapError("PutObject", key, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return p.wrapError("PutObject", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), tempPrefix+"*")
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// PutFile copies a local file to key.
func (p *Provider) PutFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	return p.PutObject(ctx, key, f, st.Size())
}

// DownloadFile copies key to localPath.
func (p *Provider) DownloadFile(ctx context.Context, key, localPath string) (int64, error) {
	body, _, err := p.GetObject(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	out, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}
	n, err := io.Copy(out, body)
	closeErr := out.Close()
	if err != nil {
		_ = os.Remove(localPath)
		return 0, p.wrapError("GetObject", key, err)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close %s: %w", localPath, closeErr)
	}
	return n, nil
}

// DeleteObject removes key. Deleting a missing key succeeds. A directory
// key is removed only when empty, matching a marker-only delete on S3.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.fullPath(key)
	if err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if provider.IsMarkerKey(key) {
			// Non-empty: children still exist, so the prefix stays visible.
			return nil
		}
		return p.wrapError("DeleteObject", key, err)
	}
	return nil
}

// DeleteObjects removes each key, reporting per-key failures.
func (p *Provider) DeleteObjects(ctx context.Context, keys []string) ([]provider.DeleteError, error) {
	if len(keys) > provider.MaxBatchDelete {
		return nil, fmt.Errorf("batch delete: %d keys exceeds limit of %d", len(keys), provider.MaxBatchDelete)
	}

	// Files first so that directory markers find their children gone.
	ordered := append([]string(nil), keys...)
	sort.SliceStable(ordered, func(i, j int) bool {
		mi, mj := provider.IsMarkerKey(ordered[i]), provider.IsMarkerKey(ordered[j])
		if mi != mj {
			return mj
		}
		return strings.Count(ordered[i], "/") > strings.Count(ordered[j], "/")
	})

	var failed []provider.DeleteError
	for _, k := range ordered {
		if err := p.DeleteObject(ctx, k); err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed = append(failed, provider.DeleteError{Key: k, Code: "InternalError", Message: err.Error()})
		}
	}
	return failed, nil
}

// PresignGet returns a file:// URL. Local files need no signature, so expires is ignored.
func (p *Provider) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	_ = expires
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := p.fullPath(key)
	if err != nil {
		return "", p.wrapError("PresignGetObject", key, err)
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", p.wrapError("PresignGetObject", key, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// HeadBucket checks that the base directory exists.
func (p *Provider) HeadBucket(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := os.Stat(p.baseDir)
	if err != nil || !st.IsDir() {
		return &provider.ProviderError{Op: "HeadBucket", Provider: provider.ProviderFile, Bucket: p.name, Err: provider.ErrBucketNotFound, Cause: err}
	}
	return nil
}

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	// Prevent path traversal.
	clean := filepath.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean)), nil
}

// walk collects every file and empty directory under prefix, sorted by key.
func (p *Provider) walk(prefix string) ([]entry, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	dirKey, _ := splitPrefix(prefix)
	root, err := p.fullPath(dirKey)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.baseDir, path)
		if err != nil || rel == "." {
			return nil
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			children, err := os.ReadDir(path)
			if err == nil && len(children) == 0 {
				entries = append(entries, entry{key: key + provider.Delimiter})
			}
			return nil
		}
		if isTempName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, entry{key: key, size: info.Size(), mod: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	filtered := entries[:0]
	for _, e := range entries {
		if strings.HasPrefix(e.key, prefix) {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].key < filtered[j].key })
	return filtered, nil
}

const tempPrefix = ".ossbrowse-put-"

func isTempName(name string) bool { return strings.HasPrefix(name, tempPrefix) }

// splitPrefix splits "a/b/c" into the directory key "a/b/" and the name prefix "c".
func splitPrefix(prefix string) (dirKey, namePrefix string) {
	prefix = strings.TrimPrefix(prefix, "/")
	i := strings.LastIndex(prefix, provider.Delimiter)
	if i < 0 {
		return "", prefix
	}
	return prefix[:i+1], prefix[i+1:]
}

// paginate returns the entries strictly after token, capped at maxKeys, and
// the token for the following page ("" when exhausted).
func paginate(entries []entry, token string, maxKeys int) ([]entry, string) {
	if maxKeys <= 0 || maxKeys > DefaultMaxKeys {
		maxKeys = DefaultMaxKeys
	}
	start := 0
	if token != "" {
		start = sort.Search(len(entries), func(i int) bool { return entries[i].key > token })
	}
	end := start + maxKeys
	if end >= len(entries) {
		return entries[start:], ""
	}
	return entries[start:end], entries[end-1].key
}

func toSummary(e entry) provider.ObjectSummary {
	return provider.ObjectSummary{Key: e.key, Size: e.size, LastModified: e.mod}
}

func toSummaries(entries []entry) []provider.ObjectSummary {
	out := make([]provider.ObjectSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSummary(e))
	}
	return out
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: p.name, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	switch {
	case os.IsNotExist(err):
		wrapped.Err, wrapped.Cause = provider.ErrNotFound, err
	case os.IsPermission(err):
		wrapped.Err, wrapped.Cause = provider.ErrAccessDenied, err
	}
	return wrapped
}
