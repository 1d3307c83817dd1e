package middleware

import (
	"net/http"
	"time"

	"cardscan/internal/logger"
)

// LoggingMiddleware logs each request's method, path and duration at debug
// level.
func LoggingMiddleware(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("%s %s %v", r.Method, r.URL.Path, time.Since(start))
		})
	}
}
