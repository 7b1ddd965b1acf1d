package provider

import (
	"context"
	"io"
	"time"
)

// Single-purpose interfaces composed into Bucket. Helpers that need only
// one remote call take the narrow interface.

// ObjectPutter can create/overwrite objects from a stream.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error
}

// FileUploader uploads a local file to a key.
type FileUploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

// FileDownloader writes an object to a local path, creating or truncating it.
type FileDownloader interface {
	DownloadFile(ctx context.Context, key, localPath string) (int64, error)
}

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// ObjectDeleter can delete a single object.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// BatchDeleter deletes up to MaxBatchDelete keys in one request.
//
// Implementations return the keys the provider refused (per-key errors) in
// the DeleteError slice; a non-nil error means the request as a whole failed.
type BatchDeleter interface {
	DeleteObjects(ctx context.Context, keys []string) ([]DeleteError, error)
}

// MaxBatchDelete is the provider limit for keys in one DeleteObjects call.
const MaxBatchDelete = 1000

// DeleteError reports a single key that a batch delete did not remove.
type DeleteError struct {
	Key     string
	Code    string
	Message string
}

// Presigner creates time-limited read URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// BucketChecker verifies the bucket is reachable with the configured credentials.
type BucketChecker interface {
	HeadBucket(ctx context.Context) error
}

// Bucket is the full capability set the browse engine drives. Both the S3
// and the local-directory providers implement it.
type Bucket interface {
	Provider
	DelimiterLister
	ObjectPutter
	FileUploader
	FileDownloader
	ObjectGetter
	ObjectDeleter
	BatchDeleter
	Presigner
	BucketChecker
}
