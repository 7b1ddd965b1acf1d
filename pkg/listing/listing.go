// Package listing materializes bucket levels into nodes and expands
// selections into flat key lists.
package listing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/session"
)

// TypeError reports a node variant that an operation cannot accept.
type TypeError struct {
	Op   string
	Kind node.Kind
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: invalid node type %s", e.Op, e.Kind)
}

// Item is one object selected for download.
type Item struct {
	// Key is the source object key.
	Key string

	// RelativePath is the slash-separated destination path under the target
	// directory.
	RelativePath string

	// Size is the object size from the listing.
	Size int64
}

// Service lists through a session. Safe for concurrent use.
type Service struct {
	session  *session.Session
	limiter  *rate.Limiter
	pageSize int
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRateLimit caps listing requests per second. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithPageSize sets MaxKeys for each listing request.
func WithPageSize(n int) Option {
	return func(s *Service) { s.pageSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a listing service over sess.
func New(sess *session.Session, opts ...Option) *Service {
	s := &Service{session: sess, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// Children lists one level below prefix: a Folder per common prefix, then
// (when includeFiles) a File per object directly under prefix. Folder
// markers and the prefix itself are never returned.
func (s *Service) Children(ctx context.Context, prefix string, includeFiles bool) ([]node.Node, error) {
	var folders, files []node.Node

	token := ""
	for {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}

		var page *provider.ListWithDelimiterResult
		err := s.session.Do(ctx, func(ctx context.Context, c provider.Bucket) error {
			var err error
			page, err = c.ListWithDelimiter(ctx, provider.ListWithDelimiterOptions{
				Prefix:            prefix,
				Delimiter:         provider.Delimiter,
				ContinuationToken: token,
				MaxKeys:           s.pageSize,
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, cp := range page.CommonPrefixes {
			if cp == prefix {
				continue
			}
			folders = append(folders, node.NewFolder(cp))
		}
		if includeFiles {
			for _, obj := range page.Objects {
				if obj.Key == prefix || obj.IsMarker() {
					continue
				}
				files = append(files, node.NewFile(obj.Key))
			}
		}

		if !page.IsTruncated || page.ContinuationToken == "" {
			break
		}
		token = page.ContinuationToken
	}

	s.logger.Debug("Listed level",
		zap.String("prefix", prefix),
		zap.Int("folders", len(folders)),
		zap.Int("files", len(files)))

	return append(folders, files...), nil
}

// Load lists the children of a Root or Folder. A Folder is marked loaded
// only when the listing succeeds.
func (s *Service) Load(ctx context.Context, parent node.Node, includeFiles bool) ([]node.Node, error) {
	switch p := parent.(type) {
	case *node.Root:
		return s.Children(ctx, "", includeFiles)
	case *node.Folder:
		children, err := s.Children(ctx, p.Prefix(), includeFiles)
		if err != nil {
			return nil, err
		}
		p.MarkLoaded()
		return children, nil
	case *node.File, *node.Placeholder:
		return nil, &TypeError{Op: "load", Kind: parent.Kind()}
	}
	return nil, &TypeError{Op: "load", Kind: parent.Kind()}
}

// Walk calls fn for every object under prefix, following continuation
// tokens. Each page is requested only after the previous one returned.
func (s *Service) Walk(ctx context.Context, prefix string, fn func(provider.ObjectSummary) error) error {
	token := ""
	for {
		if err := s.wait(ctx); err != nil {
			return err
		}

		var page *provider.ListResult
		err := s.session.Do(ctx, func(ctx context.Context, c provider.Bucket) error {
			var err error
			page, err = c.List(ctx, provider.ListOptions{
				Prefix:            prefix,
				ContinuationToken: token,
				MaxKeys:           s.pageSize,
			})
			return err
		})
		if err != nil {
			return err
		}

		for _, obj := range page.Objects {
			if err := fn(obj); err != nil {
				return err
			}
		}

		if !page.IsTruncated || page.ContinuationToken == "" {
			return nil
		}
		token = page.ContinuationToken
	}
}

// Keys returns every key under prefix, folder markers included.
func (s *Service) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.Walk(ctx, prefix, func(obj provider.ObjectSummary) error {
		keys = append(keys, obj.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Expand flattens a selection into download items. A File yields itself
// under its display name; a Folder yields every non-marker object beneath
// it under "<folder name>/<remainder>". Root and Placeholder are rejected.
func (s *Service) Expand(ctx context.Context, nodes []node.Node) ([]Item, error) {
	var items []Item
	for _, n := range nodes {
		switch v := n.(type) {
		case *node.File:
			item := Item{Key: v.Key(), RelativePath: v.DisplayName()}
			if meta, ok := v.Meta(); ok {
				item.Size = meta.Size
			}
			items = append(items, item)
		case *node.Folder:
			prefix := v.Prefix()
			name := v.DisplayName()
			err := s.Walk(ctx, prefix, func(obj provider.ObjectSummary) error {
				if obj.IsMarker() {
					return nil
				}
				items = append(items, Item{
					Key:          obj.Key,
					RelativePath: name + provider.Delimiter + strings.TrimPrefix(obj.Key, prefix),
					Size:         obj.Size,
				})
				return nil
			})
			if err != nil {
				return nil, err
			}
		case *node.Root, *node.Placeholder:
			return nil, &TypeError{Op: "expand", Kind: n.Kind()}
		default:
			return nil, &TypeError{Op: "expand", Kind: n.Kind()}
		}
	}
	return items, nil
}
