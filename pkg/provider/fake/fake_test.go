package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ossbrowse/pkg/provider"
)

func TestListWithDelimiter_GroupsPrefixes(t *testing.T) {
	b := New()
	b.Put("a/", "")
	b.Put("a/x.txt", "x")
	b.Put("a/sub/", "")
	b.Put("a/sub/y.txt", "y")
	b.Put("a/other/z.txt", "z")

	res, err := b.ListWithDelimiter(context.Background(), provider.ListWithDelimiterOptions{Prefix: "a/"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a/other/", "a/sub/"}, res.CommonPrefixes)
	var keys []string
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"a/", "a/x.txt"}, keys)
}

func TestList_Pages(t *testing.T) {
	b := New()
	b.PageSize = 2
	for _, k := range []string{"p/1", "p/2", "p/3", "p/4", "p/5"} {
		b.Put(k, k)
	}

	var got []string
	token := ""
	for {
		res, err := b.List(context.Background(), provider.ListOptions{Prefix: "p/", ContinuationToken: token})
		require.NoError(t, err)
		for _, o := range res.Objects {
			got = append(got, o.Key)
		}
		if !res.IsTruncated {
			break
		}
		token = res.ContinuationToken
	}
	assert.Equal(t, []string{"p/1", "p/2", "p/3", "p/4", "p/5"}, got)
	assert.Equal(t, 3, b.Calls("List"))
}

func TestFailHook(t *testing.T) {
	b := New()
	boom := errors.New("boom")
	b.Fail = func(op, key string) error {
		if op == "Head" && key == "bad" {
			return boom
		}
		return nil
	}
	b.Put("good", "1")

	_, err := b.Head(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)

	_, err = b.Head(context.Background(), "good")
	assert.NoError(t, err)

	_, err = b.Head(context.Background(), "missing")
	assert.True(t, provider.IsNotFound(err))
}

func TestDeleteObjects_RejectKeys(t *testing.T) {
	b := New()
	b.Put("a", "1")
	b.Put("b", "2")
	b.RejectKeys = map[string]bool{"b": true}

	failed, err := b.DeleteObjects(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Key)
	assert.Equal(t, []string{"b"}, b.Keys())
	assert.Equal(t, [][]string{{"a", "b"}}, b.Batches())
}
