package conflict

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{"overwrite", Overwrite, false},
		{"RENAME", Rename, false},
		{" skip ", Skip, false},
		{"cancel", Cancel, false},
		{"ask", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecision(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParseDecision(got.String())))
		})
	}
}

func must(d Decision, err error) Decision {
	if err != nil {
		panic(err)
	}
	return d
}

func TestErrCanceled_IsContextCanceled(t *testing.T) {
	assert.True(t, errors.Is(ErrCanceled, context.Canceled))
}

func TestResolver_PromptsOnceUnderConcurrency(t *testing.T) {
	var prompts atomic.Int32
	release := make(chan struct{})
	p := PrompterFunc(func(ctx context.Context, path string) (Decision, error) {
		prompts.Add(1)
		<-release
		return Rename, nil
	})
	r := NewResolver(p)

	const n = 32
	var wg sync.WaitGroup
	results := make(chan Decision, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := r.Decide(context.Background(), "a.txt")
			assert.NoError(t, err)
			results <- d
		}()
	}

	// Give the goroutines time to pile up on the open prompt.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for d := range results {
		assert.Equal(t, Rename, d)
	}
	assert.Equal(t, int32(1), prompts.Load())

	// Later calls in the same batch reuse the answer.
	d, err := r.Decide(context.Background(), "b.txt")
	require.NoError(t, err)
	assert.Equal(t, Rename, d)
	assert.Equal(t, int32(1), prompts.Load())
}

func TestResolver_CancelReturnsErrCanceled(t *testing.T) {
	r := NewResolver(Fixed(Cancel))

	d, err := r.Decide(context.Background(), "x")
	assert.Equal(t, Cancel, d)
	assert.ErrorIs(t, err, ErrCanceled)

	d, err = r.Decide(context.Background(), "y")
	assert.Equal(t, Cancel, d)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestResolver_PromptErrorNotMemoized(t *testing.T) {
	var calls int
	boom := errors.New("stdin closed")
	r := NewResolver(PrompterFunc(func(ctx context.Context, path string) (Decision, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return Skip, nil
	}))

	_, err := r.Decide(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	_, ok := r.Decided()
	assert.False(t, ok)

	d, err := r.Decide(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, Skip, d)
}

func TestFreeName(t *testing.T) {
	taken := func(names ...string) func(string) bool {
		set := map[string]bool{}
		for _, n := range names {
			set[n] = true
		}
		return func(s string) bool { return set[s] }
	}

	tests := []struct {
		name   string
		path   string
		exists func(string) bool
		want   string
	}{
		{"first free", "report.pdf", taken(), "report(1).pdf"},
		{"skips taken", "dir/report.pdf", taken("dir/report(1).pdf", "dir/report(2).pdf"), "dir/report(3).pdf"},
		{"no extension", "dir/Makefile", taken(), "dir/Makefile(1)"},
		{"dotfile", ".env", taken(), ".env(1)"},
		{"double extension", "a.tar.gz", taken(), "a.tar(1).gz"},
		{"dot in directory only", "v1.2/readme", taken(), "v1.2/readme(1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreeName(tt.path, tt.exists)
			assert.Equal(t, tt.want, got)
			assert.False(t, tt.exists(got))
		})
	}
}
