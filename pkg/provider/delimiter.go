package provider

import "context"

// DelimiterLister lists one level of the browse tree: the objects directly
// under a prefix and the child prefixes one level down. On S3 this is
// ListObjectsV2 with a delimiter.
type DelimiterLister interface {
	ListWithDelimiter(ctx context.Context, opts ListWithDelimiterOptions) (*ListWithDelimiterResult, error)
}

// ListWithDelimiterOptions selects a page of one level.
type ListWithDelimiterOptions struct {
	Prefix string

	// Delimiter defaults to Delimiter when empty.
	Delimiter string

	ContinuationToken string
	MaxKeys           int
}

// ListWithDelimiterResult is one page of a level. A level with more than a
// page of entries is split across pages; callers follow ContinuationToken.
type ListWithDelimiterResult struct {
	// Objects are keys with no delimiter after Prefix. The marker of the
	// listed folder itself may appear here.
	Objects []ObjectSummary

	// CommonPrefixes are child folder prefixes, each ending with the delimiter.
	CommonPrefixes []string

	ContinuationToken string
	IsTruncated       bool
}
