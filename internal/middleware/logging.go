package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/request"
	"go.uber.org/zap"
)

// Logging creates logging middleware. Auth failures and rejections are logged at warn level.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if outcome := request.OutcomeFromContext(r); outcome != nil {
				fields = append(fields,
					zap.String("client_id", logpkg.SanitizeClientID(outcome.Client.String())),
					zap.String("rule_source", string(outcome.Rule.Source)),
				)
			}

			switch wrapped.statusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
				fields = append(fields, zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)))
				logger.Warn("http_request_refused", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
