package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keymq/keymq/internal/model"
)

// CoordinatorConfig is the coordinator service configuration.
type CoordinatorConfig struct {
	Server      ServerConfig      `mapstructure:"server"`
	Brokers     []BrokerEndpoint  `mapstructure:"brokers"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Ring        RingConfig        `mapstructure:"ring"`
	Health      HealthConfig      `mapstructure:"health"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// BrokerConfig is the broker node configuration.
type BrokerConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Gossip  GossipConfig  `mapstructure:"gossip"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig covers the HTTP listener shared by both services.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	NodeID          string        `mapstructure:"node_id"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BrokerEndpoint is one entry of the static topology.
type BrokerEndpoint struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// ReplicationConfig controls copy count. Factor is the total number of
// copies including the primary.
type ReplicationConfig struct {
	Factor int `mapstructure:"factor"`
}

// RingConfig controls consistent-hash placement.
type RingConfig struct {
	VirtualNodes int `mapstructure:"virtual_nodes"`
}

// HealthConfig controls the liveness detector.
type HealthConfig struct {
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

// RateLimiterConfig controls the optional token-bucket limiter.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// GossipConfig controls the broker's optional memberlist membership.
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	JoinMaxElapsed time.Duration `mapstructure:"join_max_elapsed"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig controls zap setup.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultCoordinatorConfig returns coordinator defaults.
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            7000,
			NodeID:          "coordinator",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Replication: ReplicationConfig{Factor: 3},
		Ring:        RingConfig{VirtualNodes: 150},
		Health: HealthConfig{
			ProbeInterval:    5 * time.Second,
			FailureThreshold: 3,
			ProbeTimeout:     2 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9100, Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// DefaultBrokerConfig returns broker defaults.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			NodeID:          "node-1",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Gossip: GossipConfig{
			Enabled:        false,
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
			ProbeInterval:  time.Second,
			ProbeTimeout:   500 * time.Millisecond,
			JoinMaxElapsed: 30 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9101, Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate checks coordinator configuration.
func (c *CoordinatorConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if len(c.Brokers) == 0 {
		return errors.New("at least one broker is required (set BROKER_NODES or brokers in the config file)")
	}
	seen := make(map[string]bool, len(c.Brokers))
	for _, b := range c.Brokers {
		if b.Name == "" || b.URL == "" {
			return errors.New("every broker needs a name and a url")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate broker name %q", b.Name)
		}
		seen[b.Name] = true
	}
	if c.Replication.Factor < 1 {
		return errors.New("replication.factor must be >= 1")
	}
	if c.Ring.VirtualNodes <= 0 {
		return errors.New("ring.virtual_nodes must be positive")
	}
	if c.Health.ProbeInterval <= 0 {
		return errors.New("health.probe_interval must be positive")
	}
	if c.Health.FailureThreshold < 1 {
		return errors.New("health.failure_threshold must be >= 1")
	}
	if c.Health.ProbeTimeout <= 0 {
		return errors.New("health.probe_timeout must be positive")
	}
	return nil
}

// Validate checks broker configuration.
func (c *BrokerConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required (set NODE_ID)")
	}
	if c.Gossip.Enabled && (c.Gossip.BindPort <= 0 || c.Gossip.BindPort > 65535) {
		return errors.New("gossip.bind_port must be between 1 and 65535")
	}
	return nil
}

// BrokerNodes converts the configured topology to model records,
// preserving order.
func (c *CoordinatorConfig) BrokerNodes() []model.BrokerNode {
	nodes := make([]model.BrokerNode, 0, len(c.Brokers))
	for _, b := range c.Brokers {
		nodes = append(nodes, model.BrokerNode{Name: b.Name, URL: b.URL})
	}
	return nodes
}

// ParseBrokerNodes parses the BROKER_NODES format: comma-separated name=url
// pairs, e.g. "node-a=http://node-a:5000,node-b=http://node-b:5000".
func ParseBrokerNodes(raw string) ([]BrokerEndpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty broker list")
	}
	var endpoints []BrokerEndpoint
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("malformed broker entry %q, want name=url", pair)
		}
		endpoints = append(endpoints, BrokerEndpoint{
			Name: strings.TrimSpace(name),
			URL:  strings.TrimRight(strings.TrimSpace(url), "/"),
		})
	}
	if len(endpoints) == 0 {
		return nil, errors.New("empty broker list")
	}
	return endpoints, nil
}
