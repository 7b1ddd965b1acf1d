// Package handlers implements the HTTP endpoints of the ossbrowse server.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/3leaps/ossbrowse/internal/server/middleware"
	"github.com/3leaps/ossbrowse/pkg/deletion"
	"github.com/3leaps/ossbrowse/pkg/engine"
	"github.com/3leaps/ossbrowse/pkg/output"
	"github.com/3leaps/ossbrowse/pkg/provider"
)

// Error codes used only by the HTTP layer.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeBadRequest           = "BAD_REQUEST"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)

// HTTPErrorResponder writes err as a response.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = defaultErrorResponder

// SetHTTPErrorResponder replaces the responder used for engine errors. Nil
// restores the default.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		fn = defaultErrorResponder
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(middleware.ErrorResponse{Error: middleware.ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetRequestID(r.Context()),
		Details:   details,
	}})
}

// defaultErrorResponder maps engine and provider errors to status codes.
func defaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	WriteError(w, r, status, code, err.Error(), nil)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, deletion.ErrDeclined):
		return http.StatusConflict, CodeConfirmationRequired
	case engine.IsCanceled(err):
		return 499, output.ErrCodeCanceled
	case engine.IsDomain(err):
		return http.StatusBadRequest, output.ErrCodeInvalidArgument
	}

	code := output.ErrCode(err)
	switch {
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return http.StatusNotFound, code
	case provider.IsAccessDenied(err):
		return http.StatusForbidden, code
	case provider.IsInvalidCredentials(err):
		return http.StatusUnauthorized, code
	case provider.IsThrottled(err):
		return http.StatusTooManyRequests, code
	case provider.IsProviderUnavailable(err), provider.IsConnection(err):
		return http.StatusServiceUnavailable, code
	case code == output.ErrCodeTimeout:
		return http.StatusGatewayTimeout, code
	default:
		return http.StatusInternalServerError, code
	}
}

// NotFound answers unknown routes with the error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, "route not found: "+r.URL.Path, nil)
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method "+r.Method+" not allowed on "+r.URL.Path, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
