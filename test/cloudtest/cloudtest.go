// Package cloudtest provides helpers for integration tests against a real
// S3-compatible endpoint: a moto server, or a MinIO container started with
// testcontainers.
//
// Tests using this package should be tagged with //go:build cloudintegration.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    target := cloudtest.Moto(t) // or cloudtest.MinIO(t)
//	    bucket := target.CreateBucket(t, ctx)
//	    target.PutObject(t, ctx, bucket, "key", []byte("content"))
//	    cred := target.Credential(bucket)
//	    // ... build an engine with target.Secrets() ...
//	}
package cloudtest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/3leaps/ossbrowse/pkg/credential"
)

const (
	// DefaultMotoEndpoint is the default moto server endpoint.
	// Port 5555 avoids conflict with macOS AirTunes on 5000.
	DefaultMotoEndpoint = "http://localhost:5555"

	// DefaultRegion is the region used for every target.
	DefaultRegion = "us-east-1"

	// MinIOImage is the container image MinIO tests run.
	MinIOImage = "minio/minio:RELEASE.2024-01-16T16-07-38Z"

	motoKey      = "testing"
	minioUser    = "admin"
	minioPass    = "password"
	credentialID = "cloudtest"
)

// MotoEndpoint is configurable via MOTO_ENDPOINT.
var MotoEndpoint = getEnvOrDefault("MOTO_ENDPOINT", DefaultMotoEndpoint)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Target is a reachable S3-compatible endpoint with static credentials.
type Target struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	client *s3.Client
}

// MotoAvailable checks if the moto server is reachable.
func MotoAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, MotoEndpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Moto returns the moto target, skipping the test when the server is not
// running.
func Moto(t *testing.T) *Target {
	t.Helper()
	if !MotoAvailable() {
		t.Skipf("moto server not available at %s (start with: make moto-start)", MotoEndpoint)
	}
	return newTarget(t, MotoEndpoint, motoKey, motoKey)
}

// MinIO starts a MinIO container for the test, skipping when no container
// runtime is available.
func MinIO(t *testing.T) *Target {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	c, err := minio.Run(ctx, MinIOImage,
		minio.WithUsername(minioUser),
		minio.WithPassword(minioPass),
	)
	if err != nil {
		t.Fatalf("start MinIO container: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("warning: terminate MinIO container: %v", err)
		}
	})

	addr, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("MinIO connection string: %v", err)
	}
	return newTarget(t, "http://"+addr, minioUser, minioPass)
}

func newTarget(t *testing.T, endpoint, key, secret string) *Target {
	t.Helper()
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(DefaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
	)
	if err != nil {
		t.Fatalf("load AWS config: %v", err)
	}
	return &Target{
		Endpoint:        endpoint,
		Region:          DefaultRegion,
		AccessKeyID:     key,
		SecretAccessKey: secret,
		client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}),
	}
}

// Client returns a raw S3 client for seeding and inspecting buckets.
func (tg *Target) Client() *s3.Client { return tg.client }

// Credential returns a credential addressing bucket on this target. Its
// secret is served by Secrets.
func (tg *Target) Credential(bucket string) credential.Credential {
	return credential.Credential{
		ID:          credentialID,
		Name:        "cloudtest",
		Endpoint:    tg.Endpoint,
		AccessKeyID: tg.AccessKeyID,
		Bucket:      bucket,
		Region:      tg.Region,
	}
}

// Secrets returns a store holding the secret for Credential.
func (tg *Target) Secrets() credential.SecretStore {
	return credential.MemoryStore{credentialID: tg.SecretAccessKey}
}

var bucketSeq atomic.Int64

// CreateBucket creates a uniquely named bucket and registers its removal.
func (tg *Target) CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()

	name := strings.ToLower(t.Name())
	name = strings.NewReplacer("/", "-", "_", "-").Replace(name)
	if len(name) > 40 {
		name = name[:40]
	}
	name = strings.Trim(fmt.Sprintf("%s-%d-%d", name, time.Now().UnixNano()%100000, bucketSeq.Add(1)), "-")

	if _, err := tg.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("failed to create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { tg.DeleteBucket(t, context.Background(), name) })
	return name
}

// DeleteBucket deletes a bucket and all its contents.
func (tg *Target) DeleteBucket(t *testing.T, ctx context.Context, bucket string) {
	t.Helper()

	paginator := s3.NewListObjectsV2Paginator(tg.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			t.Logf("warning: failed to list objects in bucket %s: %v", bucket, err)
			return
		}
		for _, obj := range page.Contents {
			if _, err := tg.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key}); err != nil {
				t.Logf("warning: failed to delete object %s: %v", aws.ToString(obj.Key), err)
			}
		}
	}
	if _, err := tg.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("warning: failed to delete bucket %s: %v", bucket, err)
	}
}

// PutObject uploads an object to the bucket.
func (tg *Target) PutObject(t *testing.T, ctx context.Context, bucket, key string, content []byte) {
	t.Helper()
	_, err := tg.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(string(content)),
	})
	if err != nil {
		t.Fatalf("failed to put object %s/%s: %v", bucket, key, err)
	}
}

// PutObjects uploads objects whose content is derived from their key.
func (tg *Target) PutObjects(t *testing.T, ctx context.Context, bucket string, keys []string) {
	t.Helper()
	for _, key := range keys {
		tg.PutObject(t, ctx, bucket, key, []byte("test content for "+key))
	}
}

// Keys lists every key in the bucket.
func (tg *Target) Keys(t *testing.T, ctx context.Context, bucket string) []string {
	t.Helper()
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(tg.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			t.Fatalf("failed to list bucket %s: %v", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys
}
