// Package metrics defines the Prometheus instrumentation for both services.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CoordinatorMetrics holds the coordinator's Prometheus collectors.
type CoordinatorMetrics struct {
	RequestsTotal          *prometheus.CounterVec
	RequestDuration        *prometheus.HistogramVec
	RequestErrors          *prometheus.CounterVec
	ProbeFailures          *prometheus.CounterVec
	FailoversTotal         prometheus.Counter
	ReplicationDegradation prometheus.Counter
	BrokersHealthy         prometheus.Gauge
}

// NewCoordinatorMetrics creates and registers coordinator metrics on reg.
// Pass a fresh registry in tests to avoid duplicate registration.
func NewCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	factory := promauto.With(reg)
	return &CoordinatorMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"operation"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_request_duration_seconds",
				Help:    "Duration of request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_request_errors_total",
				Help: "Total number of request errors",
			},
			[]string{"operation", "error_type"},
		),
		ProbeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_probe_failures_total",
				Help: "Total number of failed broker health probes",
			},
			[]string{"node"},
		),
		FailoversTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coordinator_failovers_total",
				Help: "Total number of completed failover promotions",
			},
		),
		ReplicationDegradation: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coordinator_replication_degraded_total",
				Help: "Total number of produces with at least one failed replica write",
			},
		),
		BrokersHealthy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_brokers_healthy",
				Help: "Number of brokers currently considered healthy",
			},
		),
	}
}

// BrokerMetrics holds the broker's Prometheus collectors.
type BrokerMetrics struct {
	WritesTotal   *prometheus.CounterVec
	FetchesTotal  *prometheus.CounterVec
	MessagesHeld  prometheus.Gauge
	ReplicaErrors prometheus.Counter
}

// NewBrokerMetrics creates and registers broker metrics on reg.
func NewBrokerMetrics(reg prometheus.Registerer) *BrokerMetrics {
	factory := promauto.With(reg)
	return &BrokerMetrics{
		WritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_writes_total",
				Help: "Total number of writes accepted, by role",
			},
			[]string{"role"},
		),
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_fetches_total",
				Help: "Total number of fetch requests, by result",
			},
			[]string{"result"},
		),
		MessagesHeld: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "broker_messages_held",
				Help: "Number of distinct keys currently held",
			},
		),
		ReplicaErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "broker_replication_errors_total",
				Help: "Total number of failed replica writes issued by this node",
			},
		),
	}
}

// Serve starts the metrics HTTP endpoint. Blocks until the listener fails.
func Serve(reg *prometheus.Registry, port int, path string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting metrics server", zap.String("address", addr), zap.String("path", path))
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
