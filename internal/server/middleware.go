// Provides the middleware chain wrapping every request.

package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/familyhub/internal/server/dto"
	"github.com/maruel/familyhub/internal/server/ratelimit"
	"github.com/maruel/familyhub/internal/server/reqctx"
	"github.com/maruel/ksid"
)

// cors sets the CORS headers on every response and answers preflight
// requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+KeyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSecret rejects POST requests whose KeyHeader does not match secret.
// The body is not read.
func requireSecret(next http.Handler, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			got := r.Header.Get(KeyHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(r.Context(), w, dto.Unauthorized())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies l to POST requests, keyed by client IP.
func rateLimit(next http.Handler, l *ratelimit.Limiter) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			res := l.Allow(reqctx.ClientIP(r.Context()))
			ratelimit.WriteHeaders(w, res)
			if !res.Allowed {
				writeError(r.Context(), w, dto.RateLimitExceeded(int(res.RetryAfter.Seconds())))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// logRequests tags the request with an ID and the client IP, and logs it once
// served.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ksid.NewID()
		ip := reqctx.GetClientIP(r)
		ctx := reqctx.WithRequestID(reqctx.WithClientIP(r.Context(), ip), id)
		w.Header().Set("X-Request-Id", id.String())
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))
		slog.InfoContext(ctx, "HTTP",
			"req", id.String(),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"dur", time.Since(start).Round(time.Microsecond),
			"ip", ip,
		)
	})
}
