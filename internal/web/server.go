// Package web serves the vitrine single-page client and its JSON/SSE API.
//
// The API follows one envelope contract: successful responses wrap their
// payload as {"data": ...}, failures as {"error": {code, message, status}}.
// The two generation endpoints are the exception; they answer with an SSE
// stream instead.
package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vitrinehq/vitrine/internal/studio"
	"github.com/vitrinehq/vitrine/internal/web/static"
)

// defaultMaxBody bounds request bodies. Generous because attachments
// arrive base64-encoded inside the JSON payload.
const defaultMaxBody = 32 << 20

// Config contains configuration for creating the web server.
type Config struct {
	Studio       *studio.Studio // Required
	Logger       *slog.Logger
	Status       StatusInfo // Reported on /api/v1/status
	CORSOrigins  []string   // Allowed origins for CORS (empty = same-origin only)
	TrustProxy   bool       // Trust X-Real-IP/X-Forwarded-For headers
	RateRPS      float64    // Generation rate limit per IP (0 disables)
	RateBurst    int        // Rate limiter burst size per IP
	MaxBodyBytes int64      // Request body limit (0 = 32 MiB)
	IsDev        bool       // Serves assets from disk and relaxes HSTS
}

// Server is the vitrine HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a web server with all routes configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Studio == nil {
		return nil, errors.New("studio is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	ch := &creationHandler{studio: cfg.Studio, logger: logger, maxBody: maxBody}
	sh := &statusHandler{studio: cfg.Studio, logger: logger, info: cfg.Status}
	st := &streamHandler{studio: cfg.Studio, logger: logger, maxBody: maxBody}

	mux := http.NewServeMux()

	// Application state
	mux.HandleFunc("GET /api/v1/status", sh.status)
	mux.HandleFunc("POST /api/v1/gate/clear", sh.clearGate)

	// Generation streams, rate limited per IP. Reads stay unthrottled.
	throttle := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.RateRPS > 0 {
		rl := newRateLimiter(cfg.RateRPS, cfg.RateBurst)
		limit := rl.middleware(cfg.TrustProxy, logger)
		throttle = func(h http.HandlerFunc) http.Handler { return limit(h) }
	}
	mux.Handle("POST /api/v1/generations/stream", throttle(st.generation))
	mux.Handle("POST /api/v1/images/stream", throttle(st.image))

	// Creation history
	mux.HandleFunc("GET /api/v1/creations", ch.list)
	mux.HandleFunc("POST /api/v1/creations/import", ch.importCreation)
	mux.HandleFunc("GET /api/v1/creations/{id}", ch.get)
	mux.HandleFunc("GET /api/v1/creations/{id}/artifact", ch.artifact)
	mux.HandleFunc("GET /api/v1/creations/{id}/export", ch.export)

	// Client assets
	mux.Handle("GET /static/", http.StripPrefix("/static/", static.Handler()))
	mux.Handle("GET /{$}", static.Index())

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must wrap the routes so preflight OPTIONS answers
	// before method matching rejects it.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes out of the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health)
	topMux.Handle("GET /readyz", readiness(cfg.Studio))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
