// Package engine is the entry point for browsing and changing one bucket.
//
// An Engine binds a credential to a lazily built client and exposes the
// listing, transfer, and delete operations. Expected failures come back as
// errors callers can classify with KindOf: cancellations should be
// dropped silently, DomainErrors shown as-is. Anything else is logged once
// here and returned.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/pkg/conflict"
	"github.com/3leaps/ossbrowse/pkg/credential"
	"github.com/3leaps/ossbrowse/pkg/deletion"
	"github.com/3leaps/ossbrowse/pkg/listing"
	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/output"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/session"
	"github.com/3leaps/ossbrowse/pkg/transfer"
)

// Engine operates on the bucket of one credential. Safe for concurrent use.
type Engine struct {
	cred     credential.Credential
	sess     *session.Session
	lister   *listing.Service
	logger   *zap.Logger
	writer   output.Writer
	listener transfer.ChangeListener

	concurrency int
	listRPS     float64
	listBurst   int
	factory     session.Factory
	secrets     credential.SecretStore
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWriter sets the JSONL record sink shared by all operations.
func WithWriter(w output.Writer) Option {
	return func(e *Engine) {
		if w != nil {
			e.writer = w
		}
	}
}

// WithChangeListener sets who is told when the bucket changed.
func WithChangeListener(l transfer.ChangeListener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithConcurrency caps simultaneous transfers per batch.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithListRateLimit caps listing requests per second.
func WithListRateLimit(rps float64, burst int) Option {
	return func(e *Engine) { e.listRPS, e.listBurst = rps, burst }
}

// WithSecretStore sets where the credential secret is read from.
func WithSecretStore(s credential.SecretStore) Option {
	return func(e *Engine) { e.secrets = s }
}

// WithFactory replaces the client factory derived from the credential.
func WithFactory(f session.Factory) Option {
	return func(e *Engine) { e.factory = f }
}

// New creates an Engine for cred. No connection is made until the first
// operation.
func New(cred credential.Credential, opts ...Option) (*Engine, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cred:        cred,
		logger:      zap.NewNop(),
		writer:      output.Discard,
		concurrency: transfer.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.secrets == nil {
		e.secrets = credential.EnvStore{}
	}
	if e.factory == nil {
		e.factory = NewFactory(cred, e.secrets)
	}

	e.logger = e.logger.With(zap.String("credential", cred.ID), zap.String("bucket", cred.Bucket))
	e.sess = session.New(e.factory, session.WithLogger(e.logger))
	e.lister = listing.New(e.sess,
		listing.WithRateLimit(e.listRPS, e.listBurst),
		listing.WithLogger(e.logger))
	return e, nil
}

// Credential returns the credential the engine was built with.
func (e *Engine) Credential() credential.Credential { return e.cred }

// Root returns the root node, named after the credential.
func (e *Engine) Root() *node.Root { return node.NewRoot(e.cred.Label()) }

// Close releases the client.
func (e *Engine) Close() error {
	return e.sess.Close()
}

// Children lists one level under prefix: folders first, then files when
// includeFiles is set.
func (e *Engine) Children(ctx context.Context, prefix string, includeFiles bool) ([]node.Node, error) {
	nodes, err := e.lister.Children(ctx, prefix, includeFiles)
	return nodes, e.boundary("list", err)
}

// ListChildren loads the children of parent, marking a Folder loaded.
func (e *Engine) ListChildren(ctx context.Context, parent node.Node, includeFiles bool) ([]node.Node, error) {
	nodes, err := e.lister.Load(ctx, parent, includeFiles)
	return nodes, e.boundary("list", err)
}

// Keys returns every key under prefix.
func (e *Engine) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := e.lister.Keys(ctx, prefix)
	return keys, e.boundary("list", err)
}

// Head returns the metadata of f, fetching it at most once per node.
func (e *Engine) Head(ctx context.Context, f *node.File) (*provider.ObjectMeta, error) {
	if meta, ok := f.Meta(); ok {
		return meta, nil
	}
	var meta *provider.ObjectMeta
	err := e.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		var err error
		meta, err = b.Head(ctx, f.Key())
		return err
	})
	if err != nil {
		return nil, e.boundary("head", err)
	}
	return f.CacheMeta(meta), nil
}

// CreateFolder writes a folder marker at prefix.
func (e *Engine) CreateFolder(ctx context.Context, prefix string) (*node.Folder, error) {
	trimmed := strings.Trim(prefix, provider.Delimiter)
	if trimmed == "" {
		return nil, &DomainError{Message: "folder name is empty"}
	}
	f := node.NewFolder(trimmed)
	err := e.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		return b.PutObject(ctx, f.Prefix(), bytes.NewReader(nil), 0)
	})
	if err != nil {
		return nil, e.boundary("create folder", err)
	}
	e.notify(parentPrefix(f.Prefix()))
	return f, nil
}

// UploadFiles uploads local files and directories under destPrefix.
// prompter settles name collisions; nil cancels on the first collision.
func (e *Engine) UploadFiles(ctx context.Context, files []string, destPrefix string, prompter conflict.Prompter, opts ...transfer.Option) (transfer.Result, error) {
	base := []transfer.Option{
		transfer.WithConcurrency(e.concurrency),
		transfer.WithCredentialID(e.cred.ID),
		transfer.WithPrompter(prompter),
		transfer.WithWriter(e.writer),
		transfer.WithLogger(e.logger),
	}
	if e.listener != nil {
		base = append(base, transfer.WithChangeListener(e.listener))
	}
	u := transfer.NewUploader(e.sess, append(base, opts...)...)
	res, err := u.Upload(ctx, files, destPrefix)
	return res, e.boundary("upload", err)
}

// UploadFile uploads one file to key, replacing any object there, and
// returns a shareable URL for it.
func (e *Engine) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	key = strings.TrimLeft(key, provider.Delimiter)
	if key == "" || strings.HasSuffix(key, provider.Delimiter) {
		return "", &DomainError{Message: fmt.Sprintf("invalid object key %q", key)}
	}
	err := e.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		return b.PutFile(ctx, key, localPath)
	})
	if err != nil {
		return "", e.boundary("upload", err)
	}
	e.notify(parentPrefix(key))

	link, _, err := e.URL(ctx, key)
	return link, err
}

// DownloadNodes copies nodes into targetDir.
func (e *Engine) DownloadNodes(ctx context.Context, nodes []node.Node, targetDir string, prompter conflict.Prompter, opts ...transfer.Option) (transfer.Result, error) {
	base := []transfer.Option{
		transfer.WithConcurrency(e.concurrency),
		transfer.WithCredentialID(e.cred.ID),
		transfer.WithPrompter(prompter),
		transfer.WithWriter(e.writer),
		transfer.WithLogger(e.logger),
	}
	d := transfer.NewDownloader(e.sess, e.lister, append(base, opts...)...)
	res, err := d.Download(ctx, nodes, targetDir)
	return res, e.boundary("download", err)
}

// DeleteNodes deletes everything the nodes cover. Deletes of at least the
// credential's threshold need confirmer's approval.
func (e *Engine) DeleteNodes(ctx context.Context, nodes []node.Node, confirmer deletion.Confirmer, opts ...deletion.Option) (int64, error) {
	base := []deletion.Option{
		deletion.WithThreshold(e.cred.Threshold()),
		deletion.WithConfirmer(confirmer),
		deletion.WithWriter(e.writer),
		deletion.WithLogger(e.logger),
	}
	c := deletion.New(e.sess, e.lister, append(base, opts...)...)
	n, err := c.Delete(ctx, nodes)
	if n > 0 {
		e.notify("")
	}
	return n, e.boundary("delete", err)
}

// URL returns a link to key: the CDN URL when one is configured, otherwise
// a presigned GET valid for the credential's expiry. presigned reports
// which one was produced.
func (e *Engine) URL(ctx context.Context, key string) (link string, presigned bool, err error) {
	if u, ok := e.cred.CDNURL(key); ok {
		return u, false, nil
	}
	err = e.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		var err error
		link, err = b.PresignGet(ctx, key, e.cred.Expiry())
		return err
	})
	if err != nil {
		return "", false, e.boundary("url", err)
	}
	return link, true, nil
}

// TestConnection checks that the bucket is reachable with the credential.
// Failures are DomainErrors describing the likely cause.
func (e *Engine) TestConnection(ctx context.Context) error {
	err := e.sess.Do(ctx, func(ctx context.Context, b provider.Bucket) error {
		return b.HeadBucket(ctx)
	})
	if err == nil || IsCanceled(err) {
		return err
	}

	var msg string
	switch {
	case provider.IsInvalidRegion(err):
		msg = "invalid region"
	case provider.IsInvalidCredentials(err), provider.IsAccessDenied(err):
		msg = "invalid credentials"
	case provider.IsBucketNotFound(err), provider.IsNotFound(err):
		msg = fmt.Sprintf("bucket %q does not exist", e.cred.Bucket)
	default:
		msg = err.Error()
	}
	return &DomainError{Message: "connection test failed: " + msg, Err: err}
}

// boundary classifies err for callers and logs unexpected failures once.
func (e *Engine) boundary(op string, err error) error {
	err = domainize(err)
	switch KindOf(err) {
	case KindNone:
		return nil
	case KindCanceled:
		e.logger.Debug("Operation canceled", zap.String("op", op))
	case KindDomain:
		e.logger.Debug("Operation rejected", zap.String("op", op), zap.Error(err))
	default:
		e.logger.Warn("Operation failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (e *Engine) notify(prefix string) {
	if e.listener != nil {
		e.listener.BucketChanged(e.cred.ID, prefix)
	}
}

// parentPrefix returns the folder prefix containing key ("" at the root).
func parentPrefix(key string) string {
	dir := path.Dir(strings.TrimSuffix(key, provider.Delimiter))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + provider.Delimiter
}
