package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/internal/observability"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the envelope {"error": {...}}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Recovery turns a panic into a 500 INTERNAL_ERROR response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				reqID := GetRequestID(r.Context())
				observability.ServerLogger.Error("Handler panic",
					zap.Any("panic", rec),
					zap.String("request_id", reqID),
					zap.String("path", r.URL.Path))

				writeErrorResponse(w, ErrorBody{
					Code:      "INTERNAL_ERROR",
					Message:   fmt.Sprintf("panic: %v", rec),
					RequestID: reqID,
				}, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, body ErrorBody, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: body})
}
