package transfer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ossbrowse/pkg/conflict"
	"github.com/3leaps/ossbrowse/pkg/match"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/provider/fake"
)

func TestUpload_DirectoryLayout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "photos", "a.jpg"), "a")
	writeFile(t, filepath.Join(dir, "photos", "2024", "b.jpg"), "bb")
	writeFile(t, filepath.Join(dir, "notes.txt"), "n")

	b := fake.New()
	var (
		mu      sync.Mutex
		changed []string
	)
	u := NewUploader(newSession(t, b),
		WithCredentialID("cred-1"),
		WithChangeListener(ChangeListenerFunc(func(id, prefix string) {
			mu.Lock()
			defer mu.Unlock()
			changed = append(changed, id+"|"+prefix)
		})))

	res, err := u.Upload(context.Background(), []string{
		filepath.Join(dir, "photos"),
		filepath.Join(dir, "notes.txt"),
	}, "/backup/")
	require.NoError(t, err)

	assert.Equal(t, Result{Total: 3, Completed: 3}, res)
	assert.Equal(t, []string{"backup/notes.txt", "backup/photos/2024/b.jpg", "backup/photos/a.jpg"}, b.Keys())
	content, _ := b.Content("backup/photos/2024/b.jpg")
	assert.Equal(t, "bb", content)
	assert.Equal(t, []string{"cred-1|backup/"}, changed)
}

func TestUpload_RootPrefix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	b := fake.New()
	var notified string
	u := NewUploader(newSession(t, b), WithChangeListener(ChangeListenerFunc(func(_, prefix string) { notified = prefix })))

	_, err := u.Upload(context.Background(), []string{filepath.Join(dir, "a.txt")}, "")
	require.NoError(t, err)
	assert.True(t, b.Has("a.txt"))
	assert.Equal(t, "", notified)
}

func TestUpload_ConcurrencyCap(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(dir, "batch", fmt.Sprintf("f%02d.bin", i)), "x")
	}

	b := fake.New()
	b.TransferDelay = 20 * time.Millisecond

	var (
		mu       sync.Mutex
		progress []int64
	)
	u := NewUploader(newSession(t, b), WithConcurrency(4), WithProgress(func(total, completed int64, key string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, int64(10), total)
		progress = append(progress, completed)
	}))

	res, err := u.Upload(context.Background(), []string{filepath.Join(dir, "batch")}, "up")
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Completed)
	assert.LessOrEqual(t, b.MaxInFlight(), 4)
	assert.Greater(t, b.MaxInFlight(), 1)
	assert.Len(t, progress, 10)
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, progress)
}

func TestUpload_SingleFileConflict(t *testing.T) {
	tests := []struct {
		name      string
		decision  conflict.Decision
		wantKeys  []string
		wantRes   Result
		wantErr   error
		wantValue string
	}{
		{
			name:      "Rename",
			decision:  conflict.Rename,
			wantKeys:  []string{"docs/report(1).pdf", "docs/report.pdf"},
			wantRes:   Result{Total: 1, Completed: 1},
			wantValue: "new",
		},
		{
			name:      "Overwrite",
			decision:  conflict.Overwrite,
			wantKeys:  []string{"docs/report.pdf"},
			wantRes:   Result{Total: 1, Completed: 1},
			wantValue: "new",
		},
		{
			name:      "Skip",
			decision:  conflict.Skip,
			wantKeys:  []string{"docs/report.pdf"},
			wantRes:   Result{Skipped: 1},
			wantValue: "old",
		},
		{
			name:      "Cancel",
			decision:  conflict.Cancel,
			wantKeys:  []string{"docs/report.pdf"},
			wantErr:   conflict.ErrCanceled,
			wantValue: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "report.pdf")
			writeFile(t, src, "new")

			b := fake.New()
			b.Put("docs/report.pdf", "old")
			p := &countingPrompter{decision: tt.decision}
			u := NewUploader(newSession(t, b), WithPrompter(p))

			res, err := u.Upload(context.Background(), []string{src}, "docs")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, context.Canceled)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRes, res)
			assert.Equal(t, tt.wantKeys, b.Keys())
			assert.Equal(t, int32(1), p.calls.Load())

			key := "docs/report.pdf"
			if tt.decision == conflict.Rename {
				key = "docs/report(1).pdf"
			}
			got, _ := b.Content(key)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestUpload_SingleFileRenameSkipsTakenNames(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.pdf")
	writeFile(t, src, "new")

	b := fake.New()
	b.Put("report.pdf", "old")
	b.Put("report(1).pdf", "older")
	u := NewUploader(newSession(t, b), WithPrompter(conflict.Fixed(conflict.Rename)))

	_, err := u.Upload(context.Background(), []string{src}, "")
	require.NoError(t, err)
	got, ok := b.Content("report(2).pdf")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestUpload_NoConflictDoesNotPrompt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	p := &countingPrompter{decision: conflict.Cancel}
	u := NewUploader(newSession(t, fake.New()), WithPrompter(p))

	_, err := u.Upload(context.Background(), []string{filepath.Join(dir, "a.txt")}, "x")
	require.NoError(t, err)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestUpload_BatchPromptsOnce(t *testing.T) {
	dir := t.TempDir()
	b := fake.New()
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("f%d.txt", i)
		writeFile(t, filepath.Join(dir, "set", name), "new")
		b.Put("dst/set/"+name, "old")
	}

	p := &countingPrompter{decision: conflict.Overwrite}
	u := NewUploader(newSession(t, b), WithPrompter(p), WithConcurrency(4))

	res, err := u.Upload(context.Background(), []string{filepath.Join(dir, "set")}, "dst")
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Completed)
	assert.Equal(t, int32(1), p.calls.Load())
	for i := 0; i < 8; i++ {
		got, _ := b.Content(fmt.Sprintf("dst/set/f%d.txt", i))
		assert.Equal(t, "new", got)
	}
}

func TestUpload_BatchCollisionWithinSelection(t *testing.T) {
	tests := []struct {
		name     string
		decision conflict.Decision
		wantKeys []string
		wantRes  Result
		check    func(t *testing.T, b *fake.Bucket)
	}{
		{
			name:     "OverwriteKeepsLast",
			decision: conflict.Overwrite,
			wantKeys: []string{"f.txt", "g.txt"},
			wantRes:  Result{Total: 2, Completed: 2, Skipped: 1},
			check: func(t *testing.T, b *fake.Bucket) {
				got, _ := b.Content("f.txt")
				assert.Equal(t, "second", got)
			},
		},
		{
			name:     "SkipKeepsFirst",
			decision: conflict.Skip,
			wantKeys: []string{"f.txt", "g.txt"},
			wantRes:  Result{Total: 2, Completed: 2, Skipped: 1},
			check: func(t *testing.T, b *fake.Bucket) {
				got, _ := b.Content("f.txt")
				assert.Equal(t, "first", got)
			},
		},
		{
			name:     "RenameKeepsBoth",
			decision: conflict.Rename,
			wantKeys: []string{"f(1).txt", "f.txt", "g.txt"},
			wantRes:  Result{Total: 3, Completed: 3},
			check: func(t *testing.T, b *fake.Bucket) {
				got, _ := b.Content("f(1).txt")
				assert.Equal(t, "second", got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			first := filepath.Join(dir, "one", "f.txt")
			second := filepath.Join(dir, "two", "f.txt")
			other := filepath.Join(dir, "g.txt")
			writeFile(t, first, "first")
			writeFile(t, second, "second")
			writeFile(t, other, "g")

			b := fake.New()
			p := &countingPrompter{decision: tt.decision}
			u := NewUploader(newSession(t, b), WithPrompter(p))

			res, err := u.Upload(context.Background(), []string{first, other, second}, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRes, res)
			assert.Equal(t, tt.wantKeys, b.Keys())
			assert.Equal(t, int32(1), p.calls.Load())
			tt.check(t, b)
		})
	}
}

func TestUpload_BatchAllSkippedIsEmpty(t *testing.T) {
	dir := t.TempDir()
	b := fake.New()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	b.Put("a.txt", "old")
	b.Put("b.txt", "old")

	u := NewUploader(newSession(t, b), WithPrompter(conflict.Fixed(conflict.Skip)))
	res, err := u.Upload(context.Background(), []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, "")
	require.ErrorIs(t, err, ErrEmptyUpload)
	assert.Equal(t, int64(2), res.Skipped)
	assert.Equal(t, 0, b.Calls("PutFile"))
}

func TestUpload_BatchCancel(t *testing.T) {
	dir := t.TempDir()
	b := fake.New()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	b.Put("b.txt", "old")

	u := NewUploader(newSession(t, b), WithPrompter(conflict.Fixed(conflict.Cancel)))
	_, err := u.Upload(context.Background(), []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, "")
	require.ErrorIs(t, err, conflict.ErrCanceled)
	assert.Equal(t, 0, b.Calls("PutFile"))
}

func TestUpload_EmptySelection(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	writeFile(t, filepath.Join(empty, "sub", ".keep"), "")

	m, err := match.New(match.Config{SkipHidden: true})
	require.NoError(t, err)
	u := NewUploader(newSession(t, fake.New()), WithExcludes(m))

	res, err := u.Upload(context.Background(), []string{empty}, "x")
	require.ErrorIs(t, err, ErrEmptyUpload)
	assert.Equal(t, int64(1), res.Skipped)

	_, err = u.Upload(context.Background(), nil, "x")
	require.ErrorIs(t, err, ErrEmptyUpload)
}

func TestUpload_Excludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "site", "index.html"), "i")
	writeFile(t, filepath.Join(dir, "site", "cache", "x.tmp"), "t")
	writeFile(t, filepath.Join(dir, "site", "node_modules", "lib.js"), "l")

	m, err := match.New(match.Config{Excludes: []string{"*.tmp", "site/node_modules/**"}})
	require.NoError(t, err)

	b := fake.New()
	u := NewUploader(newSession(t, b), WithExcludes(m))
	res, err := u.Upload(context.Background(), []string{filepath.Join(dir, "site")}, "")
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 1, Completed: 1, Skipped: 2}, res)
	assert.Equal(t, []string{"site/index.html"}, b.Keys())
}

func TestUpload_MissingSource(t *testing.T) {
	u := NewUploader(newSession(t, fake.New()))
	_, err := u.Upload(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload source")
}

func TestUpload_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b", "c"} {
		writeFile(t, filepath.Join(dir, "d", n), n)
	}

	b := fake.New()
	denied := &provider.ProviderError{Op: "PutFile", Provider: provider.ProviderS3, Key: "d/b", Err: provider.ErrAccessDenied}
	b.Fail = func(op, key string) error {
		if op == "PutFile" && key == "d/b" {
			return denied
		}
		return nil
	}
	var notified bool
	u := NewUploader(newSession(t, b), WithChangeListener(ChangeListenerFunc(func(string, string) { notified = true })))

	res, err := u.Upload(context.Background(), []string{filepath.Join(dir, "d")}, "")
	require.Error(t, err)

	var batch *BatchError
	require.True(t, errors.As(err, &batch))
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, "d/b", batch.Failed[0].Key)
	assert.True(t, provider.IsAccessDenied(err))
	assert.Equal(t, int64(2), res.Completed)
	assert.Equal(t, int64(3), res.Total)
	assert.True(t, notified)
}

func TestUpload_CancelStopsRemaining(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, "d", fmt.Sprintf("%d.txt", i)), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := fake.New()
	u := NewUploader(newSession(t, b), WithConcurrency(1), WithProgress(func(_, completed int64, _ string) {
		if completed == 1 {
			cancel()
		}
	}))

	res, err := u.Upload(ctx, []string{filepath.Join(dir, "d")}, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), res.Completed)
	assert.Equal(t, int64(5), res.Total)
	assert.Equal(t, 1, b.Calls("PutFile"))
}
