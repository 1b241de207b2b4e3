package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/config"
	"github.com/keymq/keymq/internal/coordinator"
	"github.com/keymq/keymq/internal/failover"
	"github.com/keymq/keymq/internal/health"
	"github.com/keymq/keymq/internal/metrics"
	"github.com/keymq/keymq/internal/ring"
)

var coordinatorConfigFile string

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Start the coordinator",
	Long:  "Start the coordinator: ring placement, replication routing, liveness detection and failover.",
	RunE:  runCoordinator,
}

func init() {
	coordinatorCmd.Flags().StringVarP(&coordinatorConfigFile, "conf", "f", os.Getenv("CONFIG_PATH"), "Path to the YAML config file")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadCoordinator(coordinatorConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting coordinator",
		zap.Int("port", cfg.Server.Port),
		zap.Int("brokers", len(cfg.Brokers)),
		zap.Int("replication_factor", cfg.Replication.Factor),
		zap.Int("virtual_nodes", cfg.Ring.VirtualNodes))

	registry := prometheus.NewRegistry()
	m := metrics.NewCoordinatorMetrics(registry)

	brokers := cfg.BrokerNodes()
	hashRing := ring.New(cfg.Ring.VirtualNodes)
	for _, b := range brokers {
		hashRing.AddNode(b.Name, b.URL)
		logger.Info("registered broker", zap.String("node", b.Name), zap.String("url", b.URL))
	}

	brokerClient := client.NewBrokerClient(cfg.Health.ProbeTimeout, logger)

	detector := health.NewDetector(
		brokers,
		brokerClient,
		cfg.Health.ProbeInterval,
		cfg.Health.FailureThreshold,
		cfg.Health.ProbeTimeout,
		m,
		logger,
	)
	controller := failover.NewController(brokers, brokerClient, detector, cfg.Health.ProbeTimeout, m, logger)

	service := coordinator.NewService(hashRing, cfg.Replication.Factor, brokerClient, detector, controller, m, logger)
	handlers := coordinator.NewHandlers(service, m, logger)
	server := coordinator.NewServer(cfg, handlers, logger)

	detector.Start()
	go controller.Run(detector.Events())

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(registry, cfg.Metrics.Port, cfg.Metrics.Path, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("received signal", zap.String("signal", sig.String()))
	}

	// Stop declaring failures before draining traffic so no failover fires
	// during shutdown.
	detector.Stop()
	controller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}

	logger.Info("coordinator stopped")
	return nil
}
