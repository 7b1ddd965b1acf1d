package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/ossbrowse/pkg/conflict"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/provider/fake"
	"github.com/3leaps/ossbrowse/pkg/session"
)

func newSession(t *testing.T, b *fake.Bucket) *session.Session {
	t.Helper()
	sess := session.New(func(ctx context.Context) (provider.Bucket, error) { return b, nil })
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// countingPrompter answers with a fixed decision and records every prompt.
type countingPrompter struct {
	decision conflict.Decision
	calls    atomic.Int32
	mu       sync.Mutex
	paths    []string
}

func (p *countingPrompter) Prompt(ctx context.Context, path string) (conflict.Decision, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.paths = append(p.paths, path)
	p.mu.Unlock()
	return p.decision, nil
}
