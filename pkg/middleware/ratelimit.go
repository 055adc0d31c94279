package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/ratelimit"
)

// RateLimit limits requests that modify data per API key, or per client
// address for anonymous callers. Safe methods pass through unlimited.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(rateLimitKey(r)) {
				retry := int(math.Ceil(limiter.RetryAfter().Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
