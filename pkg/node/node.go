// Package node defines the hierarchical view of a bucket.
//
// A Node is one of four variants: *Root, *Folder, *File, *Placeholder. The
// set is closed (the marker method is unexported), so a type switch over
// the four variants is exhaustive.
package node

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/3leaps/ossbrowse/pkg/provider"
)

// Kind names a node variant in output and API payloads.
type Kind string

const (
	KindRoot        Kind = "root"
	KindFolder      Kind = "folder"
	KindFile        Kind = "file"
	KindPlaceholder Kind = "placeholder"
)

// Node is a position in the bucket tree.
type Node interface {
	// DisplayName is the last path segment shown to users.
	DisplayName() string

	// Kind returns the variant name.
	Kind() Kind

	node()
}

// Root is the bucket itself. Its prefix is always "".
type Root struct {
	Name string
}

// NewRoot returns the root node, typically named after the credential.
func NewRoot(name string) *Root { return &Root{Name: name} }

func (r *Root) DisplayName() string { return r.Name }
func (r *Root) Kind() Kind          { return KindRoot }
func (r *Root) Prefix() string      { return "" }
func (*Root) node()                 {}

// Folder is a common prefix. Prefix always ends with "/".
type Folder struct {
	prefix string
	loaded atomic.Bool
}

// NewFolder returns a folder for prefix, appending the trailing "/" if missing.
func NewFolder(prefix string) *Folder {
	if !strings.HasSuffix(prefix, provider.Delimiter) {
		prefix += provider.Delimiter
	}
	return &Folder{prefix: prefix}
}

func (f *Folder) DisplayName() string { return Name(f.prefix) }
func (f *Folder) Kind() Kind          { return KindFolder }
func (*Folder) node()                 {}

// Prefix returns the folder's key prefix, ending with "/".
func (f *Folder) Prefix() string { return f.prefix }

// Loaded reports whether the children were listed successfully since the
// last Invalidate.
func (f *Folder) Loaded() bool { return f.loaded.Load() }

// MarkLoaded records a successful listing.
func (f *Folder) MarkLoaded() { f.loaded.Store(true) }

// Invalidate forces the next expansion to list again.
func (f *Folder) Invalidate() { f.loaded.Store(false) }

// File is a single object. Key never ends with "/".
type File struct {
	key string

	mu   sync.Mutex
	meta *provider.ObjectMeta
}

// NewFile returns a file node for key.
func NewFile(key string) *File { return &File{key: key} }

func (f *File) DisplayName() string { return Name(f.key) }
func (f *File) Kind() Kind          { return KindFile }
func (*File) node()                 {}

// Key returns the full object key.
func (f *File) Key() string { return f.key }

// Meta returns the cached metadata, if fetched.
func (f *File) Meta() (*provider.ObjectMeta, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta, f.meta != nil
}

// CacheMeta stores meta unless a value is already cached, and returns the
// value that is cached after the call.
func (f *File) CacheMeta(meta *provider.ObjectMeta) *provider.ObjectMeta {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meta == nil {
		f.meta = meta
	}
	return f.meta
}

// Placeholder stands in for children that are loading or failed to load.
type Placeholder struct {
	Text string
}

// NewPlaceholder returns a placeholder with the given text.
func NewPlaceholder(text string) *Placeholder { return &Placeholder{Text: text} }

func (p *Placeholder) DisplayName() string { return p.Text }
func (p *Placeholder) Kind() Kind          { return KindPlaceholder }
func (*Placeholder) node()                 {}

// Name returns the last non-empty "/"-separated segment of path.
func Name(path string) string {
	trimmed := strings.TrimSuffix(path, provider.Delimiter)
	if i := strings.LastIndex(trimmed, provider.Delimiter); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Path returns the key or prefix a node addresses: "" for Root, the prefix
// for Folder, the key for File. ok is false for Placeholder.
func Path(n Node) (path string, ok bool) {
	switch v := n.(type) {
	case *Root:
		return "", true
	case *Folder:
		return v.Prefix(), true
	case *File:
		return v.Key(), true
	case *Placeholder:
		return "", false
	}
	return "", false
}

// FromPath builds a Folder when path ends with "/", a File otherwise.
func FromPath(path string) Node {
	if provider.IsMarkerKey(path) {
		return NewFolder(path)
	}
	return NewFile(path)
}
