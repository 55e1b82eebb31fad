package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/massy-ia/citydesk/internal/logging"
	"github.com/massy-ia/citydesk/internal/metrics"
)

// requestLogger logs every request and records its metrics under the
// matched route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, status, duration)

		event := logging.Info()
		if status >= http.StatusInternalServerError {
			event = logging.Warn()
		}
		event.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// rateLimited answers rejected requests with the error envelope.
func rateLimited(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, envelope{
		Success: false,
		Message: "too many requests",
		Status:  http.StatusTooManyRequests,
	})
}

// recoverer turns a panic into a logged 500 envelope. http.ErrAbortHandler
// is re-raised so the server can drop the connection.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.Error().
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Recovered from panic")
			writeEnvelope(w, envelope{
				Message: "internal server error",
				Status:  http.StatusInternalServerError,
			})
		}()
		next.ServeHTTP(w, r)
	})
}
