package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/formkeep/idgen"
	"github.com/hazyhaar/formkeep/kit"
)

// TraceHeader carries the trace id in both directions.
const TraceHeader = "X-Trace-ID"

var traceID = idgen.NanoID(12)

// Trace reuses the caller's X-Trace-ID or generates one, then injects it
// into the context, the response headers and a per-request logger stored
// under LoggerKey.
func Trace(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(TraceHeader)
			if id == "" || len(id) > 64 {
				id = traceID()
			}

			ctx := kit.WithTraceID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			w.Header().Set(TraceHeader, id)

			l := logger.With(
				"trace_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, l)
			l.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
