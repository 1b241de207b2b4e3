package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/broker"
	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/config"
	"github.com/keymq/keymq/internal/metrics"
)

var brokerConfigFile string

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Start a broker node",
	Long:  "Start a broker node: an in-memory keyed message store with replica fan-out.",
	RunE:  runBroker,
}

func init() {
	brokerCmd.Flags().StringVarP(&brokerConfigFile, "conf", "f", os.Getenv("CONFIG_PATH"), "Path to the YAML config file")
}

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadBroker(brokerConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting broker",
		zap.String("node", cfg.Server.NodeID),
		zap.Int("port", cfg.Server.Port))

	registry := prometheus.NewRegistry()
	m := metrics.NewBrokerMetrics(registry)

	// Replica fan-out reuses the same bounded HTTP client the coordinator
	// uses against brokers.
	brokerClient := client.NewBrokerClient(2*time.Second, logger)
	store := broker.NewStore(cfg.Server.NodeID, brokerClient, m, logger)
	handlers := broker.NewHandlers(store, logger)
	server := broker.NewServer(cfg.Server, handlers, logger)

	var gossip *broker.GossipService
	if cfg.Gossip.Enabled {
		gossip, err = broker.NewGossipService(cfg.Gossip, store, logger)
		if err != nil {
			return fmt.Errorf("failed to start gossip service: %w", err)
		}
		logger.Info("gossip membership enabled",
			zap.Int("bind_port", cfg.Gossip.BindPort),
			zap.Strings("seeds", cfg.Gossip.SeedNodes))
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}

	if gossip != nil {
		if err := gossip.Shutdown(); err != nil {
			logger.Warn("gossip shutdown failed", zap.Error(err))
		}
	}

	logger.Info("broker stopped")
	return nil
}
