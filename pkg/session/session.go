// Package session owns the storage client handle for one credential.
//
// The handle is built lazily on first use. When an operation fails with a
// transport-level connection error, the session closes the handle, builds a
// fresh one, and retries the operation exactly once. Concurrent callers that
// hit the same broken handle share a single rebuild.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/3leaps/ossbrowse/pkg/provider"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("session closed")

// Factory builds a new client handle.
type Factory func(ctx context.Context) (provider.Bucket, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for reconnect events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session is a lazily built, self-healing client handle. Safe for concurrent use.
type Session struct {
	factory Factory
	logger  *zap.Logger

	mu     sync.Mutex
	client provider.Bucket
	gen    uint64
	closed bool

	rebuilds singleflight.Group
}

// New returns a session that builds clients with factory.
func New(factory Factory, opts ...Option) *Session {
	s := &Session{factory: factory, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn with the current client. If fn fails with a connection error
// the client is rebuilt and fn runs once more; the second error, if any, is
// returned as is.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, c provider.Bucket) error) error {
	c, gen, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, c)
	if err == nil || !provider.IsConnection(err) || ctx.Err() != nil {
		return err
	}

	s.logger.Warn("Storage connection lost, reconnecting",
		zap.Uint64("generation", gen),
		zap.Error(err))

	c, _, rebuildErr := s.replace(ctx, gen)
	if rebuildErr != nil {
		return rebuildErr
	}
	return fn(ctx, c)
}

// Generation counts successful client builds. Zero means no client yet.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Close disposes of the client. Later calls to Do return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.closed = true
	s.mu.Unlock()

	if c != nil {
		return c.Close()
	}
	return nil
}

func (s *Session) acquire(ctx context.Context) (provider.Bucket, uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, 0, ErrClosed
	}
	c, gen := s.client, s.gen
	s.mu.Unlock()

	if c != nil {
		return c, gen, nil
	}
	return s.replace(ctx, gen)
}

type handle struct {
	client provider.Bucket
	gen    uint64
}

// replace swaps out the client of generation stale. Callers passing a stale
// generation that was already replaced get the current client.
func (s *Session) replace(ctx context.Context, stale uint64) (provider.Bucket, uint64, error) {
	v, err, _ := s.rebuilds.Do(strconv.FormatUint(stale, 10), func() (any, error) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if s.gen != stale && s.client != nil {
			h := handle{client: s.client, gen: s.gen}
			s.mu.Unlock()
			return h, nil
		}
		old := s.client
		s.client = nil
		s.mu.Unlock()

		if old != nil {
			if err := old.Close(); err != nil {
				s.logger.Debug("Closing stale storage client failed", zap.Error(err))
			}
		}

		c, err := s.factory(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			_ = c.Close()
			return nil, ErrClosed
		}
		s.client = c
		s.gen++
		return handle{client: c, gen: s.gen}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	h := v.(handle)
	return h.client, h.gen, nil
}
