package broker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/config"
	"github.com/keymq/keymq/internal/middleware"
)

// Server is the broker's HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	handlers   *Handlers
	logger     *zap.Logger
}

// NewServer wires the broker routes behind the middleware chain.
func NewServer(cfg config.ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	chain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
	)
	router.Use(func(next http.Handler) http.Handler { return chain(next) })

	router.HandleFunc("/store", handlers.HandleStore).Methods(http.MethodPost)
	router.HandleFunc("/replicate", handlers.HandleReplicate).Methods(http.MethodPost)
	router.HandleFunc("/fetch/{key}", handlers.HandleFetch).Methods(http.MethodGet)
	router.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/messages", handlers.HandleMessages).Methods(http.MethodGet)
	router.HandleFunc("/log", handlers.HandleLog).Methods(http.MethodGet)
	router.HandleFunc("/promote", handlers.HandlePromote).Methods(http.MethodPost)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		handlers:   handlers,
		logger:     logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting broker server", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("broker server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down broker server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
