package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "OSSBROWSE_SECRET_PROD", EnvKey("prod"))
	assert.Equal(t, "OSSBROWSE_SECRET_MY_BUCKET_1", EnvKey("my-bucket.1"))
}

func TestEnvStore(t *testing.T) {
	t.Setenv("OSSBROWSE_SECRET_PROD", "s3cr3t")

	v, err := EnvStore{}.Secret("prod")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	_, err = EnvStore{}.Secret("missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	custom := EnvStore{Lookup: func(k string) (string, bool) { return "x-" + k, true }}
	v, err = custom.Secret("a")
	require.NoError(t, err)
	assert.Equal(t, "x-OSSBROWSE_SECRET_A", v)
}

func TestDotenvStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nOSSBROWSE_SECRET_PROD=abc\nOSSBROWSE_SECRET_DEV=\"quoted value\"\n"), 0o600))

	s := NewDotenvStore(path)
	v, err := s.Secret("prod")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	v, err = s.Secret("dev")
	require.NoError(t, err)
	assert.Equal(t, "quoted value", v)

	_, err = s.Secret("other")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = NewDotenvStore(filepath.Join(t.TempDir(), "nope.env")).Secret("prod")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretNotFound)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secrets.yaml")

	s := NewFileStore(path)
	_, err := s.Secret("prod")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, s.Set("prod", "abc"))
	require.NoError(t, s.Set("dev", "def"))
	require.NoError(t, s.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded := NewFileStore(path)
	v, err := reloaded.Secret("prod")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, reloaded.Set("prod", ""))
	require.NoError(t, reloaded.Save())
	_, err = NewFileStore(path).Secret("prod")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestFileStore_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))

	_, err := NewFileStore(path).Secret("prod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse secrets")
}

func TestChain(t *testing.T) {
	c := Chain{MemoryStore{"a": "1"}, MemoryStore{"a": "2", "b": "3"}}

	v, err := c.Secret("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = c.Secret("b")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	_, err = c.Secret("c")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestOpenStore(t *testing.T) {
	s, err := OpenStore("", "")
	require.NoError(t, err)
	assert.IsType(t, EnvStore{}, s)

	_, err = OpenStore("file", "")
	require.Error(t, err)

	_, err = OpenStore("vault", "/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown secrets backend")

	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prod: fromfile\n"), 0o600))
	s, err = OpenStore("file", path)
	require.NoError(t, err)

	v, err := s.Secret("prod")
	require.NoError(t, err)
	assert.Equal(t, "fromfile", v)

	t.Setenv("OSSBROWSE_SECRET_PROD", "fromenv")
	v, err = s.Secret("prod")
	require.NoError(t, err)
	assert.Equal(t, "fromenv", v)
}
