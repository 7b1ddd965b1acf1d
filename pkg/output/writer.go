package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records.
//
// Implementations must be safe for concurrent use: transfer workers report
// completions from several goroutines at once.
type Writer interface {
	WriteNode(ctx context.Context, n *NodeRecord) error
	WriteObject(ctx context.Context, obj *ObjectRecord) error
	WriteTransfer(ctx context.Context, transfer *TransferRecord) error
	WriteSkip(ctx context.Context, skip *SkipRecord) error
	WriteDelete(ctx context.Context, del *DeleteRecord) error
	WriteURL(ctx context.Context, u *URLRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteProgress(ctx context.Context, prog *ProgressRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
// Writes are serialized so lines never interleave.
type JSONLWriter struct {
	w          io.Writer
	jobID      string
	credential string
	mu         sync.Mutex
	closed     bool
}

// NewJSONLWriter creates a JSONL writer stamping every record with jobID
// and credential.
func NewJSONLWriter(w io.Writer, jobID, credential string) *JSONLWriter {
	return &JSONLWriter{
		w:          w,
		jobID:      jobID,
		credential: credential,
	}
}

func (jw *JSONLWriter) WriteNode(ctx context.Context, n *NodeRecord) error {
	return jw.writeRecord(ctx, TypeNode, n)
}

func (jw *JSONLWriter) WriteObject(ctx context.Context, obj *ObjectRecord) error {
	return jw.writeRecord(ctx, TypeObject, obj)
}

func (jw *JSONLWriter) WriteTransfer(ctx context.Context, transfer *TransferRecord) error {
	return jw.writeRecord(ctx, TypeTransfer, transfer)
}

func (jw *JSONLWriter) WriteSkip(ctx context.Context, skip *SkipRecord) error {
	return jw.writeRecord(ctx, TypeSkip, skip)
}

func (jw *JSONLWriter) WriteDelete(ctx context.Context, del *DeleteRecord) error {
	return jw.writeRecord(ctx, TypeDelete, del)
}

func (jw *JSONLWriter) WriteURL(ctx context.Context, u *URLRecord) error {
	return jw.writeRecord(ctx, TypeURL, u)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

func (jw *JSONLWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return jw.writeRecord(ctx, TypeProgress, prog)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed. The underlying io.Writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	recordBytes, err := json.Marshal(Record{
		Type:       recordType,
		TS:         time.Now().UTC(),
		JobID:      jw.jobID,
		Credential: jw.credential,
		Data:       dataBytes,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may report a short write with a nil error; a truncated line
	// would corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Discard is a Writer that drops every record.
var Discard Writer = discard{}

type discard struct{}

func (discard) WriteNode(context.Context, *NodeRecord) error         { return nil }
func (discard) WriteObject(context.Context, *ObjectRecord) error     { return nil }
func (discard) WriteTransfer(context.Context, *TransferRecord) error { return nil }
func (discard) WriteSkip(context.Context, *SkipRecord) error         { return nil }
func (discard) WriteDelete(context.Context, *DeleteRecord) error     { return nil }
func (discard) WriteURL(context.Context, *URLRecord) error           { return nil }
func (discard) WriteError(context.Context, *ErrorRecord) error       { return nil }
func (discard) WriteProgress(context.Context, *ProgressRecord) error { return nil }
func (discard) WriteSummary(context.Context, *SummaryRecord) error   { return nil }
func (discard) Close() error                                         { return nil }

// Compile-time check that JSONLWriter implements Writer.
var _ Writer = (*JSONLWriter)(nil)
