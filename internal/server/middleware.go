package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

// headerRequestID carries the request id in and out.
const headerRequestID = "X-Request-ID"

// maxRequestIDLen caps a client-supplied id before it reaches the logs.
const maxRequestIDLen = 64

// requestLogger attaches a request-scoped logger to the context and logs
// one line per request. A client X-Request-ID is reused when present so a
// frontend can correlate its own logs; the id is echoed in the response.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, reqID)

		log := base.With(
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(logging.WithLogger(r.Context(), log))

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(r.Context(), level, "request",
			slog.Int("status", rw.status),
			slog.Int("bytes", rw.bytes),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// responseWriter records the status and body size written by a handler.
type responseWriter struct {
	http.ResponseWriter
	// status is the HTTP status code sent to the client.
	status int
	// bytes counts body bytes written.
	bytes int
	// wroteHeader guards against recording a superfluous second WriteHeader.
	wroteHeader bool
}

// WriteHeader records the first status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write counts body bytes.
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
