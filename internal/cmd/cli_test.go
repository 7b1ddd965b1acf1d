package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	bucket string
	config string
}

// newCLIEnv writes a config file with one credential backed by a local
// directory.
func newCLIEnv(t *testing.T, extra string) cliEnv {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	bucket := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := fmt.Sprintf(`credentials:
  - id: local
    name: Local
    endpoint: file://%s
    bucket: local
%s`, filepath.ToSlash(bucket), extra)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cliEnv{bucket: bucket, config: cfgPath}
}

func (e cliEnv) write(t *testing.T, key, content string) {
	t.Helper()
	p := filepath.Join(e.bucket, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (e cliEnv) exists(key string) bool {
	_, err := os.Stat(filepath.Join(e.bucket, filepath.FromSlash(key)))
	return err == nil
}

// resetFlags restores every flag to its default so runs do not leak state.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (e cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", e.config, "--log-level", "error"}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	defer SetVersionInfo("dev", "unknown", "unknown")

	e := newCLIEnv(t, "")
	out, err := e.run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ossbrowse 1.2.3 (commit abc123")
}

func TestLsAndTree(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, "docs/a.txt", "a")
	e.write(t, "docs/img/logo.png", "png")
	e.write(t, "top.txt", "t")

	out, err := e.run(t, "", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "folder  docs/")
	assert.Contains(t, out, "file    top.txt")

	out, err = e.run(t, "", "ls", "docs", "--folders-only")
	require.NoError(t, err)
	assert.Contains(t, out, "img/")
	assert.NotContains(t, out, "a.txt")

	out, err = e.run(t, "", "tree", "docs/")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt\ndocs/img/logo.png\n", out)
}

func TestLsJSON(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, "top.txt", "t")

	out, err := e.run(t, "", "--json", "ls")
	require.NoError(t, err)

	sc := bufio.NewScanner(strings.NewReader(out))
	require.True(t, sc.Scan())
	var rec struct {
		Type       string `json:"type"`
		JobID      string `json:"job_id"`
		Credential string `json:"credential"`
		Data       struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, "ossbrowse.node.v1", rec.Type)
	assert.Equal(t, "local", rec.Credential)
	assert.NotEmpty(t, rec.JobID)
	assert.Equal(t, "file", rec.Data.Kind)
	assert.Equal(t, "top.txt", rec.Data.Path)
}

func TestHeadAndMkdir(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, "docs/a.txt", "hello")

	out, err := e.run(t, "", "head", "docs/a.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Size:")
	assert.Contains(t, out, "5")

	_, err = e.run(t, "", "head", "docs/missing.txt")
	require.Error(t, err)
	assert.NotEqual(t, 0, ExitCode(err))

	out, err = e.run(t, "", "mkdir", "new/folder")
	require.NoError(t, err)
	assert.Contains(t, out, "Created new/folder/")
	assert.True(t, e.exists("new/folder"))
}

func TestPutAndGet(t *testing.T) {
	e := newCLIEnv(t, "")
	src := t.TempDir()
	site := filepath.Join(src, "site")
	require.NoError(t, os.MkdirAll(filepath.Join(site, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(site, "index.html"), []byte("<html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(site, "css", "app.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(site, "app.js.map"), []byte("{}"), 0o644))

	out, err := e.run(t, "", "put", site, "--to", "www/", "--exclude", "*.map", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded 2 of 2")
	assert.True(t, e.exists("www/site/index.html"))
	assert.True(t, e.exists("www/site/css/app.css"))
	assert.False(t, e.exists("www/site/app.js.map"))

	target := t.TempDir()
	out, err = e.run(t, "", "get", "www/site/", "--to", target, "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Downloaded 2 of 2")
	data, err := os.ReadFile(filepath.Join(target, "site", "css", "app.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
}

func TestPut_ConflictModes(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		wantKey string
		content string
	}{
		{"rename flag", []string{"--on-conflict", "rename"}, "", "report(1).pdf", "new"},
		{"overwrite flag", []string{"--on-conflict", "overwrite"}, "", "report.pdf", "new"},
		{"ask answers rename", nil, "r\n", "report(1).pdf", "new"},
		{"ask answers skip", nil, "s\n", "report.pdf", "old"},
		{"ask with no input cancels", nil, "", "report.pdf", "old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCLIEnv(t, "")
			e.write(t, "report.pdf", "old")
			local := filepath.Join(t.TempDir(), "report.pdf")
			require.NoError(t, os.WriteFile(local, []byte("new"), 0o644))

			args := append([]string{"put", local, "--no-progress"}, tt.args...)
			_, _ = e.run(t, tt.stdin, args...)

			data, err := os.ReadFile(filepath.Join(e.bucket, tt.wantKey))
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

func TestPut_InvalidFlags(t *testing.T) {
	e := newCLIEnv(t, "")
	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("a"), 0o644))

	_, err := e.run(t, "", "put", local, "--on-conflict", "sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid --on-conflict value")

	_, err = e.run(t, "", "put", local, "--exclude", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid --exclude pattern")

	_, err = e.run(t, "", "put", local, "--concurrency", "-1")
	require.Error(t, err)
}

func TestRm_Confirmation(t *testing.T) {
	e := newCLIEnv(t, "    delete_threshold: 3\n")
	for i := range 3 {
		e.write(t, fmt.Sprintf("logs/%d.log", i), "x")
	}
	e.write(t, "keep.txt", "k")

	_, err := e.run(t, "n\n", "rm", "logs/", "--no-progress")
	require.Error(t, err)
	assert.True(t, Quiet(err))
	assert.True(t, e.exists("logs/0.log"))

	out, err := e.run(t, "", "rm", "logs/", "--yes", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 3 objects")
	assert.False(t, e.exists("logs/0.log"))
	assert.True(t, e.exists("keep.txt"))

	out, err = e.run(t, "", "rm", "keep.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 objects")
}

func TestRm_RootIsRejected(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, "a.txt", "a")

	_, err := e.run(t, "", "rm", "/", "--yes")
	require.Error(t, err)
	assert.True(t, e.exists("a.txt"))
}

func TestUnknownCredential(t *testing.T) {
	e := newCLIEnv(t, "")
	_, err := e.run(t, "", "-c", "nope", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `credential "nope" not found`)
}

func TestURLCommand_CDN(t *testing.T) {
	e := newCLIEnv(t, "    cdn_base_url: https://cdn.example.com/assets\n")
	out, err := e.run(t, "", "url", "img/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/assets/img/logo.png\n", out)
}
