// Package credential describes how to reach one bucket and where its
// secret lives.
//
// A Credential never holds the secret key. Secrets are looked up by
// credential id in a SecretStore when a client is built.
package credential

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDeleteThreshold is the key count at which deletes need confirmation.
	DefaultDeleteThreshold = 50

	// DefaultPresignExpiry is the validity of generated download links.
	DefaultPresignExpiry = 600 * time.Second
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid credential")

// Credential identifies a bucket and the identity used to access it.
type Credential struct {
	ID          string `mapstructure:"id" yaml:"id" json:"id"`
	Name        string `mapstructure:"name" yaml:"name" json:"name"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint,omitempty"`
	AccessKeyID string `mapstructure:"access_key_id" yaml:"access_key_id" json:"access_key_id,omitempty"`
	Bucket      string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Region      string `mapstructure:"region" yaml:"region" json:"region,omitempty"`

	// CDNBaseURL, when set, replaces presigned links with base + key.
	CDNBaseURL string `mapstructure:"cdn_base_url" yaml:"cdn_base_url" json:"cdn_base_url,omitempty"`

	// DeleteThreshold of zero means DefaultDeleteThreshold.
	DeleteThreshold int `mapstructure:"delete_threshold" yaml:"delete_threshold" json:"delete_threshold,omitempty"`

	// ForcePathStyle of nil means path style whenever Endpoint is set.
	ForcePathStyle *bool `mapstructure:"force_path_style" yaml:"force_path_style" json:"force_path_style,omitempty"`

	// PresignExpiry of zero means DefaultPresignExpiry.
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry" json:"presign_expiry,omitempty"`
}

// NewID returns a fresh credential id.
func NewID() string {
	return uuid.NewString()
}

// Validate checks the fields every backend needs.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if IsLocal(c.Endpoint) {
		return nil
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("%w %s: bucket is required", ErrInvalid, c.ID)
	}
	if c.DeleteThreshold < 0 {
		return fmt.Errorf("%w %s: delete_threshold must be >= 0", ErrInvalid, c.ID)
	}
	if c.CDNBaseURL != "" {
		u, err := url.Parse(c.CDNBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w %s: cdn_base_url must be an absolute URL", ErrInvalid, c.ID)
		}
	}
	return nil
}

// Label is the name shown to users, falling back to the bucket.
func (c Credential) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Bucket
}

// Threshold returns the effective delete-confirmation threshold.
func (c Credential) Threshold() int {
	if c.DeleteThreshold <= 0 {
		return DefaultDeleteThreshold
	}
	return c.DeleteThreshold
}

// Expiry returns the effective presigned link validity.
func (c Credential) Expiry() time.Duration {
	if c.PresignExpiry <= 0 {
		return DefaultPresignExpiry
	}
	return c.PresignExpiry
}

// PathStyle reports whether requests address the bucket in the URL path.
func (c Credential) PathStyle() bool {
	if c.ForcePathStyle != nil {
		return *c.ForcePathStyle
	}
	return c.Endpoint != ""
}

// IsLocal reports whether endpoint points at a local directory (file://).
func IsLocal(endpoint string) bool {
	return strings.HasPrefix(strings.ToLower(endpoint), "file://")
}

// CDNURL returns the CDN link for key, if a CDN base is configured.
// Key segments are path-escaped; "/" separators are kept.
func (c Credential) CDNURL(key string) (string, bool) {
	if c.CDNBaseURL == "" {
		return "", false
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(c.CDNBaseURL, "/") + "/" + strings.Join(segments, "/"), true
}

// Find returns the credential with the given id or name.
func Find(creds []Credential, idOrName string) (Credential, bool) {
	for _, c := range creds {
		if c.ID == idOrName {
			return c, true
		}
	}
	for _, c := range creds {
		if c.Name != "" && c.Name == idOrName {
			return c, true
		}
	}
	return Credential{}, false
}
