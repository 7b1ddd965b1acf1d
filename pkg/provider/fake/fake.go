// Package fake provides an in-memory provider.Bucket for tests.
//
// It records call counts and the peak number of concurrent transfers, pages
// listings at a configurable size, and lets tests inject failures per
// operation.
package fake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3leaps/ossbrowse/pkg/provider"
)

// Bucket is an in-memory provider.Bucket.
type Bucket struct {
	// PageSize caps objects per List page. Zero means 1000.
	PageSize int

	// TransferDelay is slept inside PutFile and DownloadFile so tests can
	// observe overlap.
	TransferDelay time.Duration

	// Fail, when set, is consulted before every operation; a non-nil result is
	// returned as the operation error.
	Fail func(op, key string) error

	// RejectKeys makes DeleteObjects report these keys as per-key failures.
	RejectKeys map[string]bool

	mu      sync.Mutex
	objects map[string]object
	calls   map[string]int
	batches [][]string
	closed  bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

type object struct {
	data []byte
	mod  time.Time
}

var _ provider.Bucket = (*Bucket)(nil)

// New returns an empty bucket.
func New() *Bucket {
	return &Bucket{
		objects: make(map[string]object),
		calls:   make(map[string]int),
	}
}

// Put stores content under key without counting a call.
func (b *Bucket) Put(key, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: []byte(content), mod: time.Now()}
}

// Has reports whether key is stored.
func (b *Bucket) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// Content returns the stored bytes for key.
func (b *Bucket) Content(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[key]
	return string(o.data), ok
}

// Keys returns all stored keys in lexical order.
func (b *Bucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns how many times op was invoked.
func (b *Bucket) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Batches returns the key sets passed to DeleteObjects, in call order.
func (b *Bucket) Batches() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]string, len(b.batches))
	copy(out, b.batches)
	return out
}

// MaxInFlight returns the peak number of concurrent PutFile/DownloadFile calls.
func (b *Bucket) MaxInFlight() int {
	return int(b.maxInFlight.Load())
}

// Closed reports whether Close was called.
func (b *Bucket) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bucket) enter(op, key string) error {
	b.mu.Lock()
	b.calls[op]++
	fail := b.Fail
	b.mu.Unlock()
	if fail != nil {
		return fail(op, key)
	}
	return nil
}

func (b *Bucket) notFound(op, key string) error {
	return &provider.ProviderError{Op: op, Provider: provider.ProviderS3, Bucket: "fake", Key: key, Err: provider.ErrNotFound}
}

func (b *Bucket) sortedKeys(prefix string) []string {
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (b *Bucket) pageSize(requested int) int {
	size := b.PageSize
	if size <= 0 {
		size = provider.MaxBatchDelete
	}
	if requested > 0 && requested < size {
		size = requested
	}
	return size
}

// List implements provider.Provider.
func (b *Bucket) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.enter("List", opts.Prefix); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	keys := b.sortedKeys(opts.Prefix)
	start := 0
	if opts.ContinuationToken != "" {
		start = sort.SearchStrings(keys, opts.ContinuationToken)
		if start < len(keys) && keys[start] == opts.ContinuationToken {
			start++
		}
	}
	end := start + b.pageSize(opts.MaxKeys)
	if end > len(keys) {
		end = len(keys)
	}

	res := &provider.ListResult{}
	for _, k := range keys[start:end] {
		o := b.objects[k]
		res.Objects = append(res.Objects, provider.ObjectSummary{Key: k, Size: int64(len(o.data)), LastModified: o.mod})
	}
	if end < len(keys) {
		res.IsTruncated = true
		res.ContinuationToken = keys[end-1]
	}
	return res, nil
}

// ListWithDelimiter implements provider.DelimiterLister. Entries are paged
// together in key order, with a common prefix sorting at its own key.
func (b *Bucket) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.enter("ListWithDelimiter", opts.Prefix); err != nil {
		return nil, err
	}
	delim := opts.Delimiter
	if delim == "" {
		delim = provider.Delimiter
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	type item struct {
		key    string
		prefix bool
	}
	var items []item
	seen := make(map[string]bool)
	for _, k := range b.sortedKeys(opts.Prefix) {
		rest := k[len(opts.Prefix):]
		if i := strings.Index(rest, delim); i >= 0 {
			cp := opts.Prefix + rest[:i+len(delim)]
			if !seen[cp] {
				seen[cp] = true
				items = append(items, item{key: cp, prefix: true})
			}
			continue
		}
		items = append(items, item{key: k})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].key < items[j].key })

	start := 0
	if opts.ContinuationToken != "" {
		start = sort.Search(len(items), func(i int) bool { return items[i].key > opts.ContinuationToken })
	}
	end := start + b.pageSize(opts.MaxKeys)
	if end > len(items) {
		end = len(items)
	}

	res := &provider.ListWithDelimiterResult{}
	for _, it := range items[start:end] {
		if it.prefix {
			res.CommonPrefixes = append(res.CommonPrefixes, it.key)
			continue
		}
		o := b.objects[it.key]
		res.Objects = append(res.Objects, provider.ObjectSummary{Key: it.key, Size: int64(len(o.data)), LastModified: o.mod})
	}
	if end < len(items) {
		res.IsTruncated = true
		res.ContinuationToken = items[end-1].key
	}
	return res, nil
}

// Head implements provider.Provider.
func (b *Bucket) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.enter("Head", key); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[key]
	if !ok {
		return nil, b.notFound("Head", key)
	}
	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: key, Size: int64(len(o.data)), LastModified: o.mod},
		ContentType:   "application/octet-stream",
		StorageClass:  "STANDARD",
	}, nil
}

// PutObject implements provider.ObjectPutter.
func (b *Bucket) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.enter("PutObject", key); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != contentLength {
		return fmt.Errorf("put %s: read %d bytes, expected %d", key, len(data), contentLength)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: data, mod: time.Now()}
	return nil
}

func (b *Bucket) track(ctx context.Context) (func(), error) {
	n := b.inFlight.Add(1)
	for {
		peak := b.maxInFlight.Load()
		if n <= peak || b.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	done := func() { b.inFlight.Add(-1) }
	if b.TransferDelay > 0 {
		select {
		case <-ctx.Done():
			done()
			return nil, ctx.Err()
		case <-time.After(b.TransferDelay):
		}
	}
	return done, nil
}

// PutFile implements provider.FileUploader.
func (b *Bucket) PutFile(ctx context.Context, key, localPath string) error {
	if err := b.enter("PutFile", key); err != nil {
		return err
	}
	done, err := b.track(ctx)
	if err != nil {
		return err
	}
	defer done()

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: data, mod: time.Now()}
	return nil
}

// DownloadFile implements provider.FileDownloader.
func (b *Bucket) DownloadFile(ctx context.Context, key, localPath string) (int64, error) {
	if err := b.enter("DownloadFile", key); err != nil {
		return 0, err
	}
	done, err := b.track(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	b.mu.Lock()
	o, ok := b.objects[key]
	b.mu.Unlock()
	if !ok {
		return 0, b.notFound("GetObject", key)
	}
	if err := os.WriteFile(localPath, o.data, 0o644); err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}
	return int64(len(o.data)), nil
}

// GetObject implements provider.ObjectGetter.
func (b *Bucket) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := b.enter("GetObject", key); err != nil {
		return nil, 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[key]
	if !ok {
		return nil, 0, b.notFound("GetObject", key)
	}
	return io.NopCloser(bytes.NewReader(o.data)), int64(len(o.data)), nil
}

// DeleteObject implements provider.ObjectDeleter.
func (b *Bucket) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.enter("DeleteObject", key); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// DeleteObjects implements provider.BatchDeleter.
func (b *Bucket) DeleteObjects(ctx context.Context, keys []string) ([]provider.DeleteError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(keys) > provider.MaxBatchDelete {
		return nil, fmt.Errorf("batch delete: %d keys exceeds limit of %d", len(keys), provider.MaxBatchDelete)
	}
	if err := b.enter("DeleteObjects", ""); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, append([]string(nil), keys...))

	var failed []provider.DeleteError
	for _, k := range keys {
		if b.RejectKeys[k] {
			failed = append(failed, provider.DeleteError{Key: k, Code: "AccessDenied", Message: "Access Denied"})
			continue
		}
		delete(b.objects, k)
	}
	return failed, nil
}

// PresignGet implements provider.Presigner.
func (b *Bucket) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := b.enter("PresignGet", key); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://fake.example/%s?X-Amz-Expires=%d", key, int(expires.Seconds())), nil
}

// HeadBucket implements provider.BucketChecker.
func (b *Bucket) HeadBucket(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.enter("HeadBucket", "")
}

// Close implements provider.Provider.
func (b *Bucket) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["Close"]++
	b.closed = true
	return nil
}
