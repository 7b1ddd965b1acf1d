package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/internal/observability"
)

// Logging logs one line per request at debug level, warn for 5xx.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", GetRequestID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			observability.ServerLogger.Warn("Request failed", fields...)
			return
		}
		observability.ServerLogger.Debug("Request", fields...)
	})
}
