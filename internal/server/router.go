// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"
	"strings"

	"github.com/maruel/familyhub/internal/server/dto"
	"github.com/maruel/familyhub/internal/server/handlers"
	"github.com/maruel/familyhub/internal/server/ratelimit"
)

// KeyHeader carries the shared secret on mutating requests.
const KeyHeader = "X-Argos-Key"

const savePrefix = "/save/"

// Config holds the router settings.
type Config struct {
	// Secret must match the KeyHeader value of every POST request.
	Secret string
	// MaxBodyBytes limits request bodies; 0 means no limit.
	MaxBodyBytes int64
	// Limiter rate limits POST requests per client IP; nil disables it.
	Limiter *ratelimit.Limiter
}

// NewRouter creates and configures the HTTP router.
//
// Every response carries permissive CORS headers. POST requests are rate
// limited, then must present the shared secret before any routing happens.
func NewRouter(h *handlers.Handler, cfg *Config) http.Handler {
	mux := &http.ServeMux{}
	mux.Handle("GET /ping", Wrap(h.Ping, cfg))
	mux.Handle("POST /sync-granular", Wrap(h.SyncGranular, cfg))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, dto.NotFound())
	})

	// Saves bypass the mux: it would redirect unclean paths like
	// "/save//compras" instead of letting wrapSave strip the slashes.
	save := wrapSave(h, cfg)
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, savePrefix) {
			save.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
	handler = requireSecret(handler, cfg.Secret)
	handler = rateLimit(handler, cfg.Limiter)
	handler = cors(handler)
	return logRequests(handler)
}
