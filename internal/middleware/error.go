package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logpkg "github.com/kusuridheeraj/titan-grid/internal/logger"
	"go.uber.org/zap"
)

// ErrorResponse is the 500 body. It shares error, message and status with the 429 rejection body.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// ErrorHandler recovers handler panics into a 500 JSON response.
// http.ErrAbortHandler is re-raised so net/http aborts the connection, as a proxied body copy failure requires.
// Nothing is written when the handler already started its response.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				fields := []zap.Field{
					zap.Any("error", rec),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("method", r.Method),
				}
				if tw.started {
					logger.Error("panic_after_response_started", append(fields, zap.Int("status_code", tw.status))...)
					return
				}
				logger.Error("panic_recovered", fields...)
				respondErrorJSON(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred", logger)
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

// trackingWriter records whether the wrapped handler has committed a status line.
type trackingWriter struct {
	http.ResponseWriter
	started bool
	status  int
}

func (tw *trackingWriter) WriteHeader(code int) {
	if !tw.started {
		tw.started = true
		tw.status = code
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	if !tw.started {
		tw.started = true
		tw.status = http.StatusOK
	}
	return tw.ResponseWriter.Write(b)
}

// Flush keeps streamed upstream responses flowing through the proxy.
func (tw *trackingWriter) Flush() {
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		tw.started = true
		f.Flush()
	}
}

func (tw *trackingWriter) Unwrap() http.ResponseWriter { return tw.ResponseWriter }

func respondErrorJSON(w http.ResponseWriter, r *http.Request, status int, errorType, message string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := ErrorResponse{
		Success:   false,
		Error:     errorType,
		Message:   message,
		Status:    status,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed_to_encode_error_response",
			zap.Error(err),
			zap.Int("status_code", status),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		)
	}
}
