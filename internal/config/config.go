// Package config loads ossbrowse settings with viper.
//
// Precedence, lowest first: built-in defaults, the YAML config file,
// OSSBROWSE_* environment variables, runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/ossbrowse/pkg/credential"
)

// AppName names the config directory and file.
const AppName = "ossbrowse"

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "OSSBROWSE_"

// Config is the full application configuration.
type Config struct {
	Logging           LoggingConfig           `mapstructure:"logging"`
	Server            ServerConfig            `mapstructure:"server"`
	Transfer          TransferConfig          `mapstructure:"transfer"`
	Delete            DeleteConfig            `mapstructure:"delete"`
	Presign           PresignConfig           `mapstructure:"presign"`
	Secrets           SecretsConfig           `mapstructure:"secrets"`
	Credentials       []credential.Credential `mapstructure:"credentials"`
	DefaultCredential string                  `mapstructure:"default_credential"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TransferConfig struct {
	Concurrency int `mapstructure:"concurrency"`

	// ListRPS caps listing requests per second; zero disables the limit.
	ListRPS   float64 `mapstructure:"list_rps"`
	ListBurst int     `mapstructure:"list_burst"`
}

type DeleteConfig struct {
	Threshold int `mapstructure:"threshold"`
	BatchSize int `mapstructure:"batch_size"`
}

type PresignConfig struct {
	Expiry time.Duration `mapstructure:"expiry"`
}

type SecretsConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// EnvSpec binds one environment variable to a config path.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// SetConfigFile makes Load read path instead of the default location.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// DefaultConfigFile returns $XDG_CONFIG_HOME/ossbrowse/config.yaml, or ""
// when no user config directory is known.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("transfer.concurrency", 4)
	v.SetDefault("transfer.list_rps", 0)
	v.SetDefault("transfer.list_burst", 1)

	v.SetDefault("delete.threshold", credential.DefaultDeleteThreshold)
	v.SetDefault("delete.batch_size", 1000)

	v.SetDefault("presign.expiry", credential.DefaultPresignExpiry.String())

	v.SetDefault("secrets.backend", credential.BackendEnv)
	v.SetDefault("secrets.path", "")
	v.SetDefault("default_credential", "")
}

func getEnvSpecs() []EnvSpec {
	return []EnvSpec{
		{Name: EnvPrefix + "LOG_LEVEL", Path: "logging.level"},
		{Name: EnvPrefix + "LOG_PROFILE", Path: "logging.profile"},
		{Name: EnvPrefix + "HOST", Path: "server.host"},
		{Name: EnvPrefix + "PORT", Path: "server.port"},
		{Name: EnvPrefix + "READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: EnvPrefix + "WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: EnvPrefix + "IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: EnvPrefix + "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: EnvPrefix + "CONCURRENCY", Path: "transfer.concurrency"},
		{Name: EnvPrefix + "LIST_RPS", Path: "transfer.list_rps"},
		{Name: EnvPrefix + "DELETE_THRESHOLD", Path: "delete.threshold"},
		{Name: EnvPrefix + "DELETE_BATCH_SIZE", Path: "delete.batch_size"},
		{Name: EnvPrefix + "PRESIGN_EXPIRY", Path: "presign.expiry"},
		{Name: EnvPrefix + "SECRETS_BACKEND", Path: "secrets.backend"},
		{Name: EnvPrefix + "SECRETS_PATH", Path: "secrets.path"},
		{Name: EnvPrefix + "CREDENTIAL", Path: "default_credential"},
	}
}

// Load builds the configuration and stores it for GetConfig. Later
// overrides win over earlier ones.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.RLock()
	path := configFile
	configMu.RUnlock()

	v := viper.New()
	SetDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	// Set puts overrides above env and file values.
	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// GetConfig returns the configuration from the last successful Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate checks value ranges and credential entries.
func (c *Config) Validate() error {
	if c.Transfer.Concurrency < 1 {
		return fmt.Errorf("transfer.concurrency must be >= 1, got %d", c.Transfer.Concurrency)
	}
	if c.Delete.Threshold < 1 {
		return fmt.Errorf("delete.threshold must be >= 1, got %d", c.Delete.Threshold)
	}
	if c.Delete.BatchSize < 1 || c.Delete.BatchSize > 1000 {
		return fmt.Errorf("delete.batch_size must be in 1..1000, got %d", c.Delete.BatchSize)
	}
	if c.Presign.Expiry <= 0 {
		return fmt.Errorf("presign.expiry must be positive")
	}
	seen := make(map[string]bool, len(c.Credentials))
	for _, cred := range c.Credentials {
		if err := cred.Validate(); err != nil {
			return err
		}
		if seen[cred.ID] {
			return fmt.Errorf("duplicate credential id %q", cred.ID)
		}
		seen[cred.ID] = true
	}
	return nil
}

// Credential returns the credential named by idOrName, or the default
// credential when idOrName is empty. Global delete and presign settings
// fill in fields the credential leaves unset.
func (c *Config) Credential(idOrName string) (credential.Credential, error) {
	want := strings.TrimSpace(idOrName)
	if want == "" {
		want = c.DefaultCredential
	}
	if want == "" {
		switch len(c.Credentials) {
		case 0:
			return credential.Credential{}, fmt.Errorf("no credentials configured")
		case 1:
			return c.withDefaults(c.Credentials[0]), nil
		default:
			return credential.Credential{}, fmt.Errorf("%d credentials configured; choose one with --credential", len(c.Credentials))
		}
	}
	cred, ok := credential.Find(c.Credentials, want)
	if !ok {
		return credential.Credential{}, fmt.Errorf("credential %q not found", want)
	}
	return c.withDefaults(cred), nil
}

func (c *Config) withDefaults(cred credential.Credential) credential.Credential {
	if cred.DeleteThreshold == 0 {
		cred.DeleteThreshold = c.Delete.Threshold
	}
	if cred.PresignExpiry == 0 {
		cred.PresignExpiry = c.Presign.Expiry
	}
	return cred
}

// SecretStore opens the configured secret backend.
func (c *Config) SecretStore() (credential.SecretStore, error) {
	return credential.OpenStore(c.Secrets.Backend, c.Secrets.Path)
}
