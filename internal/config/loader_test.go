package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ossbrowse/pkg/credential"
)

// isolate points the default config location at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
	return dir
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)

		assert.Equal(t, 4, cfg.Transfer.Concurrency)
		assert.Equal(t, 50, cfg.Delete.Threshold)
		assert.Equal(t, 1000, cfg.Delete.BatchSize)
		assert.Equal(t, 600*time.Second, cfg.Presign.Expiry)
		assert.Equal(t, "env", cfg.Secrets.Backend)
		assert.Empty(t, cfg.Credentials)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("OSSBROWSE_PORT", "3000")
		t.Setenv("OSSBROWSE_LOG_LEVEL", "warn")
		t.Setenv("OSSBROWSE_CONCURRENCY", "8")
		t.Setenv("OSSBROWSE_PRESIGN_EXPIRY", "15m")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 8, cfg.Transfer.Concurrency)
		assert.Equal(t, 15*time.Minute, cfg.Presign.Expiry)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		dir := isolate(t)
		writeConfig(t, filepath.Join(dir, AppName, "config.yaml"), "server:\n  port: 3500\n  host: filehost\n")
		t.Setenv("OSSBROWSE_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "filehost", cfg.Server.Host)

		cfg, err = Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Server.Port)
	})
}

func TestLoad_ConfigFileWithCredentials(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeConfig(t, path, `
default_credential: prod
delete:
  threshold: 20
credentials:
  - id: prod
    name: Production
    bucket: assets
    region: eu-west-1
    endpoint: https://oss-eu-west-1.aliyuncs.com
    access_key_id: AKIAEXAMPLE
    cdn_base_url: https://cdn.example.com
  - id: minio
    bucket: scratch
    endpoint: http://localhost:9000
    delete_threshold: 5
    presign_expiry: 1h
    force_path_style: false
`)
	SetConfigFile(path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Credentials, 2)

	prod, err := cfg.Credential("")
	require.NoError(t, err)
	assert.Equal(t, "assets", prod.Bucket)
	assert.Equal(t, 20, prod.Threshold())
	assert.Equal(t, 600*time.Second, prod.Expiry())
	assert.True(t, prod.PathStyle())

	minio, err := cfg.Credential("minio")
	require.NoError(t, err)
	assert.Equal(t, 5, minio.Threshold())
	assert.Equal(t, time.Hour, minio.Expiry())
	assert.False(t, minio.PathStyle())

	byName, err := cfg.Credential("Production")
	require.NoError(t, err)
	assert.Equal(t, "prod", byName.ID)

	_, err = cfg.Credential("missing")
	require.Error(t, err)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)
	SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		wantErr   string
	}{
		{name: "concurrency", overrides: map[string]any{"transfer": map[string]any{"concurrency": 0}}, wantErr: "transfer.concurrency"},
		{name: "threshold", overrides: map[string]any{"delete": map[string]any{"threshold": 0}}, wantErr: "delete.threshold"},
		{name: "batch", overrides: map[string]any{"delete": map[string]any{"batch_size": 2000}}, wantErr: "delete.batch_size"},
		{name: "credential", overrides: map[string]any{"credentials": []any{map[string]any{"id": "x"}}}, wantErr: "bucket is required"},
		{name: "duplicate", overrides: map[string]any{"credentials": []any{
			map[string]any{"id": "x", "bucket": "a"},
			map[string]any{"id": "x", "bucket": "b"},
		}}, wantErr: "duplicate credential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(context.Background(), tt.overrides)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCredential_Selection(t *testing.T) {
	cfg := &Config{Delete: DeleteConfig{Threshold: 50}, Presign: PresignConfig{Expiry: time.Minute}}
	_, err := cfg.Credential("")
	assert.ErrorContains(t, err, "no credentials")

	cfg.Credentials = append(cfg.Credentials, credentialFixture("a"))
	c, err := cfg.Credential("")
	require.NoError(t, err)
	assert.Equal(t, "a", c.ID)
	assert.Equal(t, time.Minute, c.Expiry())

	cfg.Credentials = append(cfg.Credentials, credentialFixture("b"))
	_, err = cfg.Credential("")
	assert.ErrorContains(t, err, "choose one")
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"server":  map[string]any{"port": 1, "tls": map[string]any{"on": true}},
		"workers": 2,
	})
	assert.Equal(t, map[string]any{"server.port": 1, "server.tls.on": true, "workers": 2}, got)
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{"server": map[string]any{"port": 7777}})
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, EnvPrefix)
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}
	assert.True(t, names["OSSBROWSE_LOG_LEVEL"])
	assert.True(t, names["OSSBROWSE_PORT"])
	assert.True(t, names["OSSBROWSE_CREDENTIAL"])
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	assert.Equal(t, "30s", v.GetString("server.read_timeout"))
	assert.Equal(t, 4, v.GetInt("transfer.concurrency"))
	assert.Equal(t, "10m0s", v.GetString("presign.expiry"))
}

func credentialFixture(id string) credential.Credential {
	return credential.Credential{ID: id, Bucket: "bucket-" + id}
}
