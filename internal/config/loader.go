package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// LoadCoordinator loads the coordinator configuration: defaults, then the
// optional YAML file, then environment overrides, then validation.
func LoadCoordinator(configPath string) (*CoordinatorConfig, error) {
	cfg := DefaultCoordinatorConfig()

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := applyCoordinatorEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadBroker loads the broker configuration with the same precedence.
func LoadBroker(configPath string) (*BrokerConfig, error) {
	cfg := DefaultBrokerConfig()

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyBrokerEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyCoordinatorEnv applies environment overrides. These take precedence
// over the config file.
func applyCoordinatorEnv(cfg *CoordinatorConfig) error {
	if raw := os.Getenv("BROKER_NODES"); raw != "" {
		brokers, err := ParseBrokerNodes(raw)
		if err != nil {
			return fmt.Errorf("invalid BROKER_NODES: %w", err)
		}
		cfg.Brokers = brokers
	}
	if raw := os.Getenv("REPLICATION_FACTOR"); raw != "" {
		factor, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid REPLICATION_FACTOR %q: %w", raw, err)
		}
		cfg.Replication.Factor = factor
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	return nil
}

func applyBrokerEnv(cfg *BrokerConfig) {
	if nodeID := os.Getenv("NODE_ID"); nodeID != "" {
		cfg.Server.NodeID = nodeID
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
