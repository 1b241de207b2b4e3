package coordinator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/config"
	"github.com/keymq/keymq/internal/middleware"
)

// Server is the coordinator's HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer wires the coordinator routes behind the middleware chain.
func NewServer(cfg *config.CoordinatorConfig, handlers *Handlers, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
	}
	if cfg.RateLimiter.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimiter.RequestsPerSecond, cfg.RateLimiter.BurstSize, logger)
		chain = append(chain, limiter.Limit)
	}
	composed := middleware.Chain(chain...)
	router.Use(func(next http.Handler) http.Handler { return composed(next) })

	router.HandleFunc("/produce", handlers.HandleProduce).Methods(http.MethodPost)
	router.HandleFunc("/consume/{key}", handlers.HandleConsume).Methods(http.MethodGet)
	router.HandleFunc("/ring", handlers.HandleRing).Methods(http.MethodGet)
	router.HandleFunc("/route/{key}", handlers.HandleRoute).Methods(http.MethodGet)
	router.HandleFunc("/health/nodes", handlers.HandleNodeHealth).Methods(http.MethodGet)
	router.HandleFunc("/failover/status", handlers.HandleFailoverStatus).Methods(http.MethodGet)
	router.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		logger:     logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting coordinator server", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("coordinator server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down coordinator server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
