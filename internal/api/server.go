// Package api exposes the inbound webhook and health probes over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garcomlabs/garcom/internal/debounce"
	"github.com/garcomlabs/garcom/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     log.Logger
	Queue      *debounce.Queue      // Required
	Dispatcher *debounce.Dispatcher // Required
	Pool       *pgxpool.Pool        // Optional: nil skips the database readiness check
	TrustProxy bool                 // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst  int                  // Rate limiter burst per IP (0 = default 60)
}

// Server is the webhook HTTP server.
type Server struct {
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Queue == nil {
		return nil, errors.New("debounce queue is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With("component", "api")

	mux := http.NewServeMux()

	wh := &webhookHandler{queue: cfg.Queue, dispatcher: cfg.Dispatcher, logger: logger}
	mux.HandleFunc("POST /api/v1/webhook/messages", wh.receive)
	mux.HandleFunc("GET /api/v1/webhook/messages/{id}", wh.status)

	hh := &healthHandler{pool: cfg.Pool, logger: logger}
	mux.HandleFunc("GET /healthz", hh.live)
	mux.HandleFunc("GET /readyz", hh.ready)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first: Recovery -> Logging -> RateLimit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{mux: mux, handler: handler}, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }
