package listing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/provider/fake"
	"github.com/3leaps/ossbrowse/pkg/session"
)

func newService(t *testing.T, b *fake.Bucket, opts ...Option) *Service {
	t.Helper()
	sess := session.New(func(ctx context.Context) (provider.Bucket, error) { return b, nil })
	t.Cleanup(func() { _ = sess.Close() })
	return New(sess, opts...)
}

func names(nodes []node.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.DisplayName())
	}
	return out
}

func TestChildren(t *testing.T) {
	b := fake.New()
	b.Put("docs/", "")
	b.Put("docs/readme.md", "r")
	b.Put("docs/img/", "")
	b.Put("docs/img/a.png", "a")
	b.Put("docs/api/v1.json", "{}")
	s := newService(t, b)

	nodes, err := s.Children(context.Background(), "docs/", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "img", "readme.md"}, names(nodes))
	assert.IsType(t, &node.Folder{}, nodes[0])
	assert.IsType(t, &node.File{}, nodes[2])
	assert.Equal(t, "docs/readme.md", nodes[2].(*node.File).Key())

	foldersOnly, err := s.Children(context.Background(), "docs/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "img"}, names(foldersOnly))
}

func TestChildren_FollowsContinuation(t *testing.T) {
	b := fake.New()
	b.PageSize = 2
	for _, k := range []string{"a.txt", "b.txt", "c.txt", "d/", "e/x", "f.txt"} {
		b.Put(k, "1")
	}
	s := newService(t, b)

	nodes, err := s.Children(context.Background(), "", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e", "a.txt", "b.txt", "c.txt", "f.txt"}, names(nodes))
	assert.Equal(t, 3, b.Calls("ListWithDelimiter"))
}

func TestLoad_MarksFolderLoaded(t *testing.T) {
	b := fake.New()
	b.Put("x/y.txt", "1")
	s := newService(t, b)

	folder := node.NewFolder("x/")
	children, err := s.Load(context.Background(), folder, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"y.txt"}, names(children))
	assert.True(t, folder.Loaded())
}

func TestLoad_FailureLeavesFolderUnloaded(t *testing.T) {
	b := fake.New()
	b.Fail = func(op, key string) error { return provider.ErrAccessDenied }
	s := newService(t, b)

	folder := node.NewFolder("x/")
	_, err := s.Load(context.Background(), folder, true)
	assert.ErrorIs(t, err, provider.ErrAccessDenied)
	assert.False(t, folder.Loaded())
}

func TestLoad_RejectsFile(t *testing.T) {
	s := newService(t, fake.New())
	_, err := s.Load(context.Background(), node.NewFile("a"), true)

	var typeErr *TypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, node.KindFile, typeErr.Kind)
}

func TestExpand_MultiPageNoDuplicatesNoMarkers(t *testing.T) {
	b := fake.New()
	b.PageSize = 3
	keys := []string{
		"photos/",
		"photos/a.jpg",
		"photos/b.jpg",
		"photos/2024/",
		"photos/2024/c.jpg",
		"photos/2024/d.jpg",
		"photos/2024/e/",
		"photos/2024/e/f.jpg",
		"photos/z.jpg",
		"other/ignored.jpg",
	}
	for _, k := range keys {
		b.Put(k, k)
	}
	s := newService(t, b)

	items, err := s.Expand(context.Background(), []node.Node{node.NewFolder("photos/")})
	require.NoError(t, err)

	var rel []string
	seen := map[string]bool{}
	for _, it := range items {
		assert.False(t, seen[it.Key], "duplicate %s", it.Key)
		seen[it.Key] = true
		assert.False(t, provider.IsMarkerKey(it.Key), "marker %s", it.Key)
		rel = append(rel, it.RelativePath)
	}
	assert.Equal(t, []string{
		"photos/2024/c.jpg",
		"photos/2024/d.jpg",
		"photos/2024/e/f.jpg",
		"photos/a.jpg",
		"photos/b.jpg",
		"photos/z.jpg",
	}, rel)

	// 9 keys under the prefix at 3 per page.
	assert.Equal(t, 3, b.Calls("List"))
}

func TestExpand_FileUsesDisplayName(t *testing.T) {
	b := fake.New()
	b.Put("deep/path/file.txt", "x")
	s := newService(t, b)

	items, err := s.Expand(context.Background(), []node.Node{node.NewFile("deep/path/file.txt")})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Item{Key: "deep/path/file.txt", RelativePath: "file.txt"}, items[0])
	assert.Equal(t, 0, b.Calls("List"))
}

func TestExpand_RejectsRootAndPlaceholder(t *testing.T) {
	s := newService(t, fake.New())

	for _, n := range []node.Node{node.NewRoot("b"), node.NewPlaceholder("Loading...")} {
		_, err := s.Expand(context.Background(), []node.Node{n})
		var typeErr *TypeError
		require.True(t, errors.As(err, &typeErr))
		assert.Equal(t, "expand", typeErr.Op)
	}
}

func TestKeys_IncludesMarkers(t *testing.T) {
	b := fake.New()
	b.PageSize = 1
	b.Put("a/", "")
	b.Put("a/x", "1")
	b.Put("a/y/", "")
	s := newService(t, b)

	keys, err := s.Keys(context.Background(), "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/", "a/x", "a/y/"}, keys)
}

func TestWithRateLimit_HonorsContext(t *testing.T) {
	b := fake.New()
	b.PageSize = 1
	b.Put("a", "1")
	b.Put("b", "1")
	b.Put("c", "1")
	s := newService(t, b, WithRateLimit(1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Keys(ctx, "")
	assert.Error(t, err)
	assert.Less(t, b.Calls("List"), 3)
}
