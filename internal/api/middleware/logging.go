package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"oj_sync/internal/platform/logging"
)

// RequestLogger logs one line per request through the global zerolog logger.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			var ev *zerolog.Event
			switch {
			case ww.Status() >= 500:
				ev = logging.Error()
			case ww.Status() >= 400:
				ev = logging.Warn()
			default:
				ev = logging.Debug()
			}
			ev.Str("request_id", chiMiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
