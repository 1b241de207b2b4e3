// Package broker implements a broker node: an in-memory keyed message store
// with role tags, sequential replica fan-out, an audit log, and the HTTP
// surface the coordinator drives.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/metrics"
	"github.com/keymq/keymq/internal/model"
)

// Store holds this node's message entries. Writes to the same key are
// serialized by the mutex; last writer wins.
type Store struct {
	node string

	mu      sync.RWMutex
	entries map[string]model.MessageEntry

	audit  *AuditLog
	client *client.BrokerClient

	logger  *zap.Logger
	metrics *metrics.BrokerMetrics
}

// NewStore creates an empty store for node.
func NewStore(node string, brokerClient *client.BrokerClient, m *metrics.BrokerMetrics, logger *zap.Logger) *Store {
	return &Store{
		node:    node,
		entries: make(map[string]model.MessageEntry),
		audit:   NewAuditLog(),
		client:  brokerClient,
		logger:  logger,
		metrics: m,
	}
}

// Node returns this broker's identifier.
func (s *Store) Node() string {
	return s.node
}

// Audit exposes the audit log for the /log endpoint.
func (s *Store) Audit() *AuditLog {
	return s.audit
}

// StorePrimary writes the entry locally with role primary, then replicates
// to each target sequentially. A replica failure is reported in the result
// list but neither rolls back the local write nor fails the operation.
func (s *Store) StorePrimary(ctx context.Context, key string, payload json.RawMessage, targets []model.ReplicaTarget) []model.ReplicationResult {
	s.mu.Lock()
	s.entries[key] = model.MessageEntry{
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Role:      model.RolePrimary,
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.audit.Append(model.AuditStoredAsPrimary, key, "")
	if s.metrics != nil {
		s.metrics.WritesTotal.WithLabelValues(string(model.RolePrimary)).Inc()
		s.metrics.MessagesHeld.Set(float64(count))
	}
	s.logger.Info("stored as primary", zap.String("key", key))

	results := make([]model.ReplicationResult, 0, len(targets))
	for _, target := range targets {
		_, err := s.client.Replicate(ctx, target.URL, &model.ReplicateRequest{
			Key:         key,
			Payload:     payload,
			PrimaryNode: s.node,
		})
		if err != nil {
			if s.metrics != nil {
				s.metrics.ReplicaErrors.Inc()
			}
			s.logger.Warn("replication to node failed",
				zap.String("key", key),
				zap.String("replica", target.Node),
				zap.Error(err))
			results = append(results, model.ReplicationResult{
				Node:   target.Node,
				Status: model.ReplicationFailed,
				Error:  err.Error(),
			})
			continue
		}
		results = append(results, model.ReplicationResult{
			Node:   target.Node,
			Status: model.ReplicationSuccess,
		})
	}
	return results
}

// StoreReplica writes the entry locally with role replica.
func (s *Store) StoreReplica(key string, payload json.RawMessage, primaryNode string) {
	s.mu.Lock()
	s.entries[key] = model.MessageEntry{
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Role:      model.RoleReplica,
		ReplicaOf: primaryNode,
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.audit.Append(model.AuditStoredAsReplica, key, primaryNode)
	if s.metrics != nil {
		s.metrics.WritesTotal.WithLabelValues(string(model.RoleReplica)).Inc()
		s.metrics.MessagesHeld.Set(float64(count))
	}
	s.logger.Info("stored as replica",
		zap.String("key", key),
		zap.String("primary", primaryNode))
}

// Fetch returns the entry for key, if held.
func (s *Store) Fetch(key string) (model.MessageEntry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if s.metrics != nil {
		result := "hit"
		if !ok {
			result = "miss"
		}
		s.metrics.FetchesTotal.WithLabelValues(result).Inc()
	}
	return entry, ok
}

// Promote marks the node as a writable primary. Existing replica entries are
// kept as-is; the coordinator routes future primary writes here.
func (s *Store) Promote() string {
	s.audit.Append(model.AuditPromotedToPrimary, "", "")
	s.logger.Info("promoted to primary")
	return "node promoted to primary"
}

// Count returns the number of distinct keys held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries for the /messages endpoint.
func (s *Store) Snapshot() map[string]model.MessageEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.MessageEntry, len(s.entries))
	for key, entry := range s.entries {
		out[key] = entry
	}
	return out
}
