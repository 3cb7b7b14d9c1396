package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/tasktrail-api/internal/api/shared"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
)

// NewTraceMiddleware returns middleware that adds a trace ID and a
// request-scoped logger carrying it to the request context.
// It should run before any handler that logs or writes error responses.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			log := base.With(slog.String("trace_id", shared.GetTraceID(ctx)))

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
		})
	}
}
