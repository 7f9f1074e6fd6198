package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/log"
	"github.com/julienschmidt/httprouter"
)

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

// LogRequest logs every request on completion and converts handler panics
// into a 500 instead of killing the process.
func LogRequest() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			defer func() {
				if rec := recover(); rec != nil {
					errors.WriteHTTPInternalServerError(wrapped, "Internal Server Error", nil)
					log.LogNoJobID("panic in request handler",
						"panic", rec,
						"uri", r.URL.RequestURI(),
						"trace", string(debug.Stack()),
					)
				}
			}()

			next(wrapped, r, ps)
			if wrapped.status == 0 {
				wrapped.status = http.StatusOK
			}
			log.LogNoJobID("http request",
				"remote", r.RemoteAddr,
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"duration", time.Since(start).String(),
				"status", wrapped.status,
			)
		}
	}
}
