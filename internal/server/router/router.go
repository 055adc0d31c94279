// Package router wires the dictionary API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/ratelimit"
)

// Options carries the optional parts of the chain. Nil fields are skipped.
type Options struct {
	Checker        *health.Checker
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.Limiter
	Keys           pkgmw.KeyValidator
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// New builds the HTTP handler.
//
// Route table:
//
//	GET    /api/v1/dictionaries                 → list with encodings
//	GET    /api/v1/dictionaries/{name}          → lines and encoding
//	POST   /api/v1/dictionaries/{name}/words    → add words
//	DELETE /api/v1/dictionaries/{name}/words    → delete words
//	POST   /api/v1/dictionaries/{name}/sort     → sort and deduplicate
//	GET    /api/v1/dictionaries/{name}/history  → audit log
//	POST   /api/v1/detect                       → classify request body
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Auth → RateLimit → Timeout → handler
func New(h *handler.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	if opts.Checker != nil {
		mux.HandleFunc("GET /health/live", opts.Checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Checker.ReadyHandler())
	}

	mux.HandleFunc("GET /api/v1/dictionaries", h.ListDictionaries)
	mux.HandleFunc("GET /api/v1/dictionaries/{name}", h.GetDictionary)
	mux.HandleFunc("POST /api/v1/dictionaries/{name}/words", h.AddWords)
	mux.HandleFunc("DELETE /api/v1/dictionaries/{name}/words", h.DeleteWords)
	mux.HandleFunc("POST /api/v1/dictionaries/{name}/sort", h.Sort)
	mux.HandleFunc("GET /api/v1/dictionaries/{name}/history", h.History)
	mux.HandleFunc("POST /api/v1/detect", h.Detect)

	var chain http.Handler = mux
	if opts.RequestTimeout > 0 {
		chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	}
	if opts.Limiter != nil {
		chain = pkgmw.RateLimit(opts.Limiter)(chain)
	}
	if opts.Keys != nil {
		chain = pkgmw.Auth(opts.Keys)(chain)
	}
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	if len(opts.CORSOrigins) > 0 {
		chain = pkgmw.CORS(pkgmw.DefaultCORSConfig(opts.CORSOrigins))(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}
