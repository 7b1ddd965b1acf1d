// Package s3 implements the provider interfaces for AWS S3 and S3-compatible storage.
package s3

import "strings"

// Config configures an S3 provider.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials file (~/.aws/credentials)
//  4. Shared config file (~/.aws/config) with profile
//
// Region handling:
//   - If Region is empty and not set via environment/profile, defaults to
//     us-east-1. S3-compatible stores usually ignore the value, but SigV4
//     signing still needs one.
//
// For S3-compatible stores (MinIO, Wasabi, OSS, COS, R2), set Endpoint and
// typically ForcePathStyle.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region is the signing region.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// A value without a scheme is treated as https.
	// Examples:
	//   - MinIO: http://localhost:9000
	//   - Aliyun OSS: oss-cn-hangzhou.aliyuncs.com
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	ForcePathStyle bool

	// MaxKeys is the default page size for List operations.
	// Zero uses the provider default (1000). Values over 1000 are clamped.
	MaxKeys int

	// UploadConcurrency is the per-file part concurrency for multipart uploads.
	// Zero uses the SDK default.
	UploadConcurrency int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region when none is configured.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}

	// If one explicit credential is set, both must be set
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

// NormalizeEndpoint prefixes https:// when the endpoint has no scheme.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimRight(endpoint, "/")
	}
	return "https://" + strings.TrimRight(endpoint, "/")
}
