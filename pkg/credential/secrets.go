package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrSecretNotFound is returned when a store has no secret for an id.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore looks up the secret access key of a credential.
type SecretStore interface {
	Secret(id string) (string, error)
}

// EnvPrefix prefixes the environment variable holding a credential secret.
const EnvPrefix = "OSSBROWSE_SECRET_"

// EnvKey returns the variable name for id: EnvPrefix plus the id upper-cased
// with every character outside [A-Z0-9] replaced by '_'.
func EnvKey(id string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func notFound(id string) error {
	return fmt.Errorf("%w for credential %q", ErrSecretNotFound, id)
}

// EnvStore reads secrets from the process environment.
type EnvStore struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Secret implements SecretStore.
func (s EnvStore) Secret(id string) (string, error) {
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvKey(id)); ok && v != "" {
		return v, nil
	}
	return "", notFound(id)
}

// DotenvStore reads secrets from a dotenv file using the EnvKey names.
// The file is read once, on first use.
type DotenvStore struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

// NewDotenvStore creates a store backed by the dotenv file at path.
func NewDotenvStore(path string) *DotenvStore {
	return &DotenvStore{path: path}
}

// Secret implements SecretStore.
func (s *DotenvStore) Secret(id string) (string, error) {
	s.once.Do(func() {
		s.values, s.err = godotenv.Read(s.path)
	})
	if s.err != nil {
		return "", fmt.Errorf("read secrets %s: %w", s.path, s.err)
	}
	if v := s.values[EnvKey(id)]; v != "" {
		return v, nil
	}
	return "", notFound(id)
}

// FileStore keeps secrets in a YAML map of credential id to secret. It is
// writable: Set then Save persists the map with owner-only permissions.
type FileStore struct {
	path string

	mu      sync.Mutex
	loaded  bool
	secrets map[string]string
}

// NewFileStore creates a store backed by the YAML file at path. A missing
// file is treated as empty.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() error {
	if s.loaded {
		return nil
	}
	s.secrets = make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &s.secrets); err != nil {
		return fmt.Errorf("parse secrets %s: %w", s.path, err)
	}
	if s.secrets == nil {
		s.secrets = make(map[string]string)
	}
	s.loaded = true
	return nil
}

// Secret implements SecretStore.
func (s *FileStore) Secret(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", err
	}
	if v := s.secrets[id]; v != "" {
		return v, nil
	}
	return "", notFound(id)
}

// Set stores secret for id in memory. An empty secret removes the entry.
func (s *FileStore) Set(id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	if secret == "" {
		delete(s.secrets, id)
		return nil
	}
	s.secrets[id] = secret
	return nil
}

// Save writes the map to disk atomically with mode 0600.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	data, err := yaml.Marshal(s.secrets)
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create secrets dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".secrets-*")
	if err != nil {
		return fmt.Errorf("create temp secrets file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write secrets: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod secrets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close secrets: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace secrets file: %w", err)
	}
	return nil
}

// MemoryStore is a map-backed SecretStore.
type MemoryStore map[string]string

// Secret implements SecretStore.
func (m MemoryStore) Secret(id string) (string, error) {
	if v := m[id]; v != "" {
		return v, nil
	}
	return "", notFound(id)
}

// Chain tries stores in order and returns the first secret found. Errors
// other than ErrSecretNotFound stop the search.
type Chain []SecretStore

// Secret implements SecretStore.
func (c Chain) Secret(id string) (string, error) {
	for _, s := range c {
		v, err := s.Secret(id)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", notFound(id)
}

// Backend names accepted by OpenStore.
const (
	BackendEnv    = "env"
	BackendDotenv = "dotenv"
	BackendFile   = "file"
)

// OpenStore returns the store for backend. The environment is always
// consulted first so OSSBROWSE_SECRET_* variables override files.
func OpenStore(backend, path string) (SecretStore, error) {
	switch strings.ToLower(backend) {
	case "", BackendEnv:
		return EnvStore{}, nil
	case BackendDotenv:
		if path == "" {
			return nil, fmt.Errorf("secrets backend %q needs a path", backend)
		}
		return Chain{EnvStore{}, NewDotenvStore(path)}, nil
	case BackendFile:
		if path == "" {
			return nil, fmt.Errorf("secrets backend %q needs a path", backend)
		}
		return Chain{EnvStore{}, NewFileStore(path)}, nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q (want env, dotenv, or file)", backend)
	}
}
