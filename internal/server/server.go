// Package server exposes the engine over HTTP.
//
// Reads are public. Writes act on behalf of the account named by the
// subject of an HS256 JWT. Engine events are streamed to websocket clients
// at /v1/events.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth"

	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/oracle"
)

// Config configures a Server
type Config struct {
	Addr           string
	JWTSecret      string
	AllowedOrigins []string

	// RateLimit is the number of requests per minute allowed per client IP.
	// Zero disables rate limiting.
	RateLimit int

	// Mock enables POST /v1/oracle/fulfil so the owner can deliver random
	// words by hand
	Mock *oracle.Mock

	// Stats, when set, is served at /v1/history
	Stats func() any

	Logger *log.Logger
}

// Server is the HTTP front end of an engine
type Server struct {
	cfg    Config
	engine *game.Engine
	auth   *jwtauth.JWTAuth
	hub    *Hub
	router chi.Router
	logger *log.Logger
}

// New creates a server and subscribes its websocket hub to the engine's
// event bus
func New(engine *game.Engine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server: engine is required")
	}
	auth, err := NewTokenAuth(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		auth:   auth,
		logger: cfg.Logger.WithPrefix("server"),
	}
	s.hub = NewHub(cfg.Logger, s.checkOrigin)
	s.router = s.routes()
	engine.EventBus().Subscribe(s.hub)
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// TokenAuth returns the token signer used by the server
func (s *Server) TokenAuth() *jwtauth.JWTAuth {
	return s.auth
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		s.close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	s.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) close() {
	s.engine.EventBus().Unsubscribe(s.hub)
	s.hub.Close()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pool", s.handlePool)
		r.Get("/accounts", s.handleAccounts)
		r.Get("/accounts/{id}", s.handleAccount)
		r.Get("/events", s.hub.ServeHTTP)
		if s.cfg.Stats != nil {
			r.Get("/history", s.handleHistory)
		}

		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(s.auth))
			r.Use(jwtauth.Authenticator)

			r.Route("/game", func(r chi.Router) {
				r.Post("/fund", s.handleFund)
				r.Post("/start", s.handleStart)
				r.Post("/hit", s.handleHit)
				r.Post("/stand", s.handleStand)
				r.Post("/double", s.handleDouble)
				r.Post("/split", s.handleSplit)
				r.Post("/surrender", s.handleSurrender)
				r.Post("/withdraw", s.handleWithdraw)
			})
			r.Route("/owner", func(r chi.Router) {
				r.Post("/deposit", s.handleDeposit)
				r.Post("/withdraw", s.handleOwnerWithdraw)
			})
			if s.cfg.Mock != nil {
				r.Post("/oracle/fulfil", s.handleFulfil)
			}
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}
