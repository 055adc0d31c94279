package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/logger"
)

// APIKeyHeader is the alternative to "Authorization: Bearer <key>".
const APIKeyHeader = "X-API-Key"

// KeyValidator resolves a raw key; *apikey.Validator is the implementation.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

type apiKeyInfoKey struct{}

// Auth requires a valid API key on requests that modify data. Safe methods
// and health endpoints pass through without one.
func Auth(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			info, err := validator.Validate(r.Context(), key)
			if err != nil {
				switch {
				case errors.Is(err, apikey.ErrInvalidKey):
					writeError(w, http.StatusUnauthorized, "invalid api key")
				case errors.Is(err, apikey.ErrExpiredKey):
					writeError(w, http.StatusUnauthorized, "expired api key")
				default:
					logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
					writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
				}
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyInfoKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo returns the key that authorised the request, or nil.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey{}).(*apikey.KeyInfo)
	return info
}

// rateLimitKey identifies the caller: the API key when one was presented,
// the client address otherwise.
func rateLimitKey(r *http.Request) string {
	if info := GetKeyInfo(r.Context()); info != nil {
		return "key:" + strconv.FormatInt(info.ID, 10)
	}
	return "addr:" + clientAddr(r)
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get(APIKeyHeader)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
