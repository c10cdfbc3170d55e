package httpapi

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimit caps the request rate admitted to the service-mutating
// routes, the way a streaming pipeline caps frame admission with a
// token-bucket limiter rather than an unbounded channel.
func rateLimit(requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				jsonResponse(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
