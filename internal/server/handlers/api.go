package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/3leaps/ossbrowse/pkg/deletion"
	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/output"
	"github.com/3leaps/ossbrowse/pkg/provider"
)

// Browser is the engine surface the API serves.
type Browser interface {
	Children(ctx context.Context, prefix string, includeFiles bool) ([]node.Node, error)
	Head(ctx context.Context, f *node.File) (*provider.ObjectMeta, error)
	URL(ctx context.Context, key string) (string, bool, error)
	CreateFolder(ctx context.Context, prefix string) (*node.Folder, error)
	DeleteNodes(ctx context.Context, nodes []node.Node, confirmer deletion.Confirmer, opts ...deletion.Option) (int64, error)
}

// API serves the /v1 endpoints.
type API struct {
	browser Browser
}

// NewAPI creates an API over b.
func NewAPI(b Browser) *API {
	return &API{browser: b}
}

// NodesResponse lists one level.
type NodesResponse struct {
	Prefix string              `json:"prefix"`
	Nodes  []output.NodeRecord `json:"nodes"`
}

// Nodes handles GET /v1/nodes?prefix=&files=.
func (a *API) Nodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	includeFiles := true
	if raw := q.Get("files"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "files must be a boolean", nil)
			return
		}
		includeFiles = v
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	children, err := a.browser.Children(r.Context(), prefix, includeFiles)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	resp := NodesResponse{Prefix: prefix, Nodes: make([]output.NodeRecord, 0, len(children))}
	for _, c := range children {
		p, _ := node.Path(c)
		resp.Nodes = append(resp.Nodes, output.NodeRecord{Kind: string(c.Kind()), Name: c.DisplayName(), Path: p})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Head handles GET /v1/objects/head?key=.
func (a *API) Head(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	meta, err := a.browser.Head(r.Context(), node.NewFile(key))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output.ObjectRecord{
		Key:          meta.Key,
		Size:         meta.Size,
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
		ContentType:  meta.ContentType,
		StorageClass: meta.StorageClass,
		Metadata:     meta.Metadata,
	})
}

// URL handles GET /v1/objects/url?key=.
func (a *API) URL(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	link, presigned, err := a.browser.URL(r.Context(), key)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output.URLRecord{Key: key, URL: link, Presigned: presigned})
}

// CreateFolderRequest is the body of POST /v1/folders.
type CreateFolderRequest struct {
	Prefix string `json:"prefix"`
}

// CreateFolder handles POST /v1/folders.
func (a *API) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.Trim(req.Prefix, "/") == "" {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "prefix is required", nil)
		return
	}
	folder, err := a.browser.CreateFolder(r.Context(), req.Prefix)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, output.NodeRecord{
		Kind: string(folder.Kind()),
		Name: folder.DisplayName(),
		Path: folder.Prefix(),
	})
}

// DeleteRequest is the body of DELETE /v1/objects.
type DeleteRequest struct {
	Keys     []string `json:"keys"`
	Prefixes []string `json:"prefixes"`

	// Confirm answers the confirmation asked for large deletes.
	Confirm bool `json:"confirm"`
}

// DeleteResponse reports how many objects were removed.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// Delete handles DELETE /v1/objects.
func (a *API) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decode(w, r, &req) {
		return
	}

	nodes := make([]node.Node, 0, len(req.Keys)+len(req.Prefixes))
	for _, k := range req.Keys {
		if k == "" || strings.HasSuffix(k, "/") {
			WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid object key: "+strconv.Quote(k), nil)
			return
		}
		nodes = append(nodes, node.NewFile(k))
	}
	for _, p := range req.Prefixes {
		if strings.Trim(p, "/") == "" {
			WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "refusing to delete the bucket root", nil)
			return
		}
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		nodes = append(nodes, node.NewFolder(p))
	}
	if len(nodes) == 0 {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "keys or prefixes are required", nil)
		return
	}

	n, err := a.browser.DeleteNodes(r.Context(), nodes, deletion.Always(req.Confirm))
	if err != nil {
		status, code := classify(err)
		WriteError(w, r, status, code, err.Error(), map[string]any{"deleted": n})
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

func requireKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if key == "" || strings.HasSuffix(key, "/") {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "key must name an object", nil)
		return "", false
	}
	return key, true
}

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}
