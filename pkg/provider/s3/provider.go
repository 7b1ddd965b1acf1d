package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/3leaps/ossbrowse/pkg/provider"
)

// Provider implements the provider interfaces for AWS S3 and S3-compatible storage.
type Provider struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	uploader   *manager.Uploader
	downloader *manager.Downloader
	transport  *http.Transport
	bucket     string
	maxKeys    int
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Provider        = (*Provider)(nil)
	_ provider.DelimiterLister = (*Provider)(nil)
	_ provider.ObjectPutter    = (*Provider)(nil)
	_ provider.FileUploader    = (*Provider)(nil)
	_ provider.FileDownloader  = (*Provider)(nil)
	_ provider.ObjectGetter    = (*Provider)(nil)
	_ provider.ObjectDeleter   = (*Provider)(nil)
	_ provider.BatchDeleter    = (*Provider)(nil)
	_ provider.Presigner       = (*Provider)(nil)
	_ provider.BucketChecker   = (*Provider)(nil)
)

// New creates a new S3 provider with the given configuration.
//
// Each provider owns its HTTP transport so that Close drops pooled
// connections and a rebuilt provider starts from fresh sockets.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	awsCfg, err := loadAWSConfig(ctx, cfg, &http.Client{Transport: transport})
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Bucket:   cfg.Bucket,
			Err:      err,
		}
	}

	endpoint := NormalizeEndpoint(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// Most S3-compatible stores reject the default CRC32 trailers.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	return &Provider{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			if cfg.UploadConcurrency > 0 {
				u.Concurrency = cfg.UploadConcurrency
			}
		}),
		downloader: manager.NewDownloader(client),
		transport:  transport,
		bucket:     cfg.Bucket,
		maxKeys:    maxKeys,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config, httpClient *http.Client) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(awsCfg.Region)

	return awsCfg, nil
}

// Bucket returns the bucket this provider is bound to.
func (p *Provider) Bucket() string {
	return p.bucket
}

// List returns a page of objects with the given prefix.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, p.wrapError("List", "", err)
	}

	result := &provider.ListResult{
		Objects:     toSummaries(output.Contents),
		IsTruncated: aws.ToBool(output.IsTruncated),
	}
	if output.NextContinuationToken != nil {
		result.ContinuationToken = *output.NextContinuationToken
	}

	return result, nil
}

// ListWithDelimiter returns one page of a delimiter-scoped listing.
func (p *Provider) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = provider.Delimiter
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, p.wrapError("ListWithDelimiter", "", err)
	}

	prefixes := make([]string, 0, len(output.CommonPrefixes))
	for _, cp := range output.CommonPrefixes {
		prefixes = append(prefixes, aws.ToString(cp.Prefix))
	}

	result := &provider.ListWithDelimiterResult{
		Objects:        toSummaries(output.Contents),
		CommonPrefixes: prefixes,
		IsTruncated:    aws.ToBool(output.IsTruncated),
	}
	if output.NextContinuationToken != nil {
		result.ContinuationToken = *output.NextContinuationToken
	}

	return result, nil
}

func toSummaries(contents []types.Object) []provider.ObjectSummary {
	objects := make([]provider.ObjectSummary, 0, len(contents))
	for _, obj := range contents {
		objects = append(objects, provider.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return objects
}

// Head returns metadata for a single object.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	output, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}

	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(output.ContentLength),
			ETag:         cleanETag(aws.ToString(output.ETag)),
			LastModified: aws.ToTime(output.LastModified),
		},
		ContentType:  aws.ToString(output.ContentType),
		StorageClass: string(output.StorageClass),
		Metadata:     output.Metadata,
	}, nil
}

// PutObject uploads an object from a stream in a single request.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(contentLength),
	})
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// PutObjectEmpty uploads a 0-byte object, used for folder markers.
func (p *Provider) PutObjectEmpty(ctx context.Context, key string) error {
	return p.PutObject(ctx, key, bytes.NewReader(nil), 0)
}

// PutFile uploads a local file. Files below the multipart threshold go up
// as a single PutObject.
func (p *Provider) PutFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// DownloadFile writes the object to localPath. A partially written file is
// removed on failure.
func (p *Provider) DownloadFile(ctx context.Context, key, localPath string) (int64, error) {
	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}

	n, err := p.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(localPath)
		return 0, p.wrapError("GetObject", key, err)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close %s: %w", localPath, closeErr)
	}
	return n, nil
}

// GetObject opens a stream over the object content.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// DeleteObject deletes an object.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(key)})
	if err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	return nil
}

// DeleteObjects deletes up to provider.MaxBatchDelete keys in one request.
func (p *Provider) DeleteObjects(ctx context.Context, keys []string) ([]provider.DeleteError, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > provider.MaxBatchDelete {
		return nil, fmt.Errorf("batch delete: %d keys exceeds limit of %d", len(keys), provider.MaxBatchDelete)
	}

	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(p.bucket),
		Delete: &types.Delete{
			Objects: ids,
			Quiet:   aws.Bool(true),
		},
	}, s3.WithAPIOptions(addContentMD5))
	if err != nil {
		return nil, p.wrapError("DeleteObjects", "", err)
	}

	var failed []provider.DeleteError
	for _, e := range out.Errors {
		failed = append(failed, provider.DeleteError{
			Key:     aws.ToString(e.Key),
			Code:    aws.ToString(e.Code),
			Message: aws.ToString(e.Message),
		})
	}
	return failed, nil
}

// PresignGet returns a time-limited GET URL for key.
func (p *Provider) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", p.wrapError("PresignGetObject", key, err)
	}
	return req.URL, nil
}

// HeadBucket checks that the bucket exists and the credentials can reach it.
func (p *Provider) HeadBucket(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)})
	if err != nil {
		return p.wrapError("HeadBucket", "", err)
	}
	return nil
}

// Close drops pooled connections. The provider must not be used afterwards.
func (p *Provider) Close() error {
	if p.transport != nil {
		p.transport.CloseIdleConnections()
	}
	return nil
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   p.bucket,
		Key:      key,
		Err:      err,
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		wrapped.StatusCode = respErr.HTTPStatusCode()
	}

	if sentinel := classify(op, wrapped.StatusCode, err); sentinel != nil {
		wrapped.Err = sentinel
		wrapped.Cause = err
	}
	return wrapped
}

// classify maps an SDK error to a provider sentinel, or nil when none applies.
func classify(op string, status int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	// HeadBucket responses carry no body, so only the status is available.
	if op == "HeadBucket" {
		switch status {
		case http.StatusBadRequest:
			return provider.ErrInvalidRegion
		case http.StatusForbidden:
			return provider.ErrInvalidCredentials
		case http.StatusNotFound:
			return provider.ErrBucketNotFound
		}
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return provider.ErrNotFound
	case errors.As(err, &noSuchBucket):
		return provider.ErrBucketNotFound
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return provider.ErrNotFound
		case "NoSuchBucket":
			return provider.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			return provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return provider.ErrInvalidCredentials
		case "AuthorizationHeaderMalformed", "InvalidRegion", "IllegalLocationConstraintException":
			return provider.ErrInvalidRegion
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			return provider.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			return provider.ErrProviderUnavailable
		}
		return nil
	}

	if isConnectionError(err) {
		return provider.ErrConnection
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		return provider.ErrNotFound
	case strings.Contains(errMsg, "NoSuchBucket"):
		return provider.ErrBucketNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		return provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		return provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		return provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		return provider.ErrProviderUnavailable
	}

	return nil
}

// isConnectionError reports transport failures where no response was read.
func isConnectionError(err error) bool {
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// cleanETag removes surrounding quotes from an ETag value.
// S3 returns ETags with quotes, e.g., "d41d8cd98f00b204e9800998ecf8427e".
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion applies the fallback region after SDK config loading.
//
// The SDK has already applied, in order: explicit Config.Region, environment
// variables (AWS_REGION, AWS_DEFAULT_REGION), and the shared profile.
func resolveRegion(sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	return DefaultAWSRegion
}
