// Package output provides JSONL output for browse, transfer, and delete
// operations.
//
// Output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: ossbrowse.<type>.v<version>
const (
	// TypeNode identifies one entry of a level listing.
	TypeNode = "ossbrowse.node.v1"

	// TypeObject identifies object metadata records.
	TypeObject = "ossbrowse.object.v1"

	// TypeTransfer identifies a completed upload or download.
	TypeTransfer = "ossbrowse.transfer.v1"

	// TypeSkip identifies an item dropped by a conflict decision.
	TypeSkip = "ossbrowse.skip.v1"

	// TypeDelete identifies a completed delete chunk.
	TypeDelete = "ossbrowse.delete.v1"

	// TypeURL identifies a shareable object URL.
	TypeURL = "ossbrowse.url.v1"

	// TypeError identifies error records.
	TypeError = "ossbrowse.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "ossbrowse.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "ossbrowse.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "ossbrowse.node.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID correlates all records of one command invocation.
	JobID string `json:"job_id"`

	// Credential is the id of the credential the job ran against.
	Credential string `json:"credential"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// NodeRecord is one child of a listed level.
type NodeRecord struct {
	// Kind is "folder" or "file".
	Kind string `json:"kind"`

	// Name is the display name (last path segment).
	Name string `json:"name"`

	// Path is the folder prefix or the file key.
	Path string `json:"path"`
}

// ObjectRecord is the metadata of a single object.
type ObjectRecord struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag"`
	LastModified time.Time         `json:"last_modified"`
	ContentType  string            `json:"content_type,omitempty"`
	StorageClass string            `json:"storage_class,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// TransferRecord reports one finished transfer.
type TransferRecord struct {
	Direction string `json:"direction"`
	Key       string `json:"key"`
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes,omitempty"`
}

// SkipRecord reports an item that was not transferred.
type SkipRecord struct {
	Key    string `json:"key,omitempty"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	SkipReasonConflict = "conflict"
	SkipReasonExcluded = "excluded"
	SkipReasonUnsafe   = "unsafe_path"
)

// DeleteRecord reports one deleted chunk.
type DeleteRecord struct {
	Keys  []string `json:"keys"`
	Batch bool     `json:"batch"`
}

// URLRecord carries a shareable link.
type URLRecord struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	Presigned bool   `json:"presigned"`
	ExpiresIn string `json:"expires_in,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Per-item failures are emitted as records rather than failing the whole
// batch, so partial results stay visible.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`

	// Path is the local path related to this error, if applicable.
	Path string `json:"path,omitempty"`
}

// Error codes for ErrorRecord and API error envelopes.
const (
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeBucketNotFound      = "BUCKET_NOT_FOUND"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidRegion       = "INVALID_REGION"
	ErrCodeThrottled           = "THROTTLED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeConnection          = "CONNECTION"
	ErrCodeCanceled            = "CANCELED"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeInvalidArgument     = "INVALID_ARGUMENT"
	ErrCodeInternal            = "INTERNAL"
)

// ProgressRecord reports batch progress after each completion.
type ProgressRecord struct {
	// Phase is one of the Phase* constants.
	Phase string `json:"phase"`

	// Completed is the number of items finished so far.
	Completed int64 `json:"completed"`

	// Total is the number of items in the batch.
	Total int64 `json:"total"`

	// Key is the item that just finished, if any.
	Key string `json:"key,omitempty"`
}

// Progress phase constants.
const (
	PhaseUploading   = "uploading"
	PhaseDownloading = "downloading"
	PhaseDeleting    = "deleting"
)

// SummaryRecord closes a batch.
type SummaryRecord struct {
	// Operation is "upload", "download", or "delete".
	Operation string `json:"operation"`

	// Total is the number of items the batch planned.
	Total int64 `json:"total"`

	// Completed is the number of items actually finished.
	Completed int64 `json:"completed"`

	// Skipped counts items dropped by a conflict decision.
	Skipped int64 `json:"skipped,omitempty"`

	// Errors counts per-item failures.
	Errors int64 `json:"errors"`

	// Canceled is true when the batch stopped early on cancellation.
	Canceled bool `json:"canceled,omitempty"`

	// Duration is the wall time of the batch.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
