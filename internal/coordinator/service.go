// Package coordinator implements the control plane's request router and HTTP
// surface. The router owns nothing mutable itself: placement comes from the
// ring, liveness from the health detector, and post-failover routing from the
// failover controller's override map. Every request snapshots the state it
// needs before doing any outbound I/O.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/failover"
	"github.com/keymq/keymq/internal/health"
	"github.com/keymq/keymq/internal/metrics"
	"github.com/keymq/keymq/internal/model"
	"github.com/keymq/keymq/internal/ring"
)

// ErrNotFound reports that no reachable broker holds the key.
var ErrNotFound = errors.New("key not found on any node")

// PrimaryUnreachableError reports a failed primary-side write.
type PrimaryUnreachableError struct {
	Node string
	Err  error
}

func (e *PrimaryUnreachableError) Error() string {
	return fmt.Sprintf("primary %s unreachable: %v", e.Node, e.Err)
}

func (e *PrimaryUnreachableError) Unwrap() error {
	return e.Err
}

// Route is the override-resolved placement for one key.
type Route struct {
	Key        string
	KeyHash    uint32
	RawPrimary string
	Primary    string
	Replicas   []string
}

// Service is the request router (C5).
type Service struct {
	ring              *ring.Ring
	replicationFactor int
	client            *client.BrokerClient
	detector          *health.Detector
	failover          *failover.Controller
	logger            *zap.Logger
	metrics           *metrics.CoordinatorMetrics
}

// NewService creates the router over its collaborators.
func NewService(
	r *ring.Ring,
	replicationFactor int,
	brokerClient *client.BrokerClient,
	detector *health.Detector,
	ctrl *failover.Controller,
	m *metrics.CoordinatorMetrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		ring:              r,
		replicationFactor: replicationFactor,
		client:            brokerClient,
		detector:          detector,
		failover:          ctrl,
		logger:            logger,
		metrics:           m,
	}
}

// ResolveRoute computes the effective placement for key: the ring's raw
// owners mapped through a single snapshot of the override map, with the
// effective primary removed from the replica list and duplicates collapsed.
func (s *Service) ResolveRoute(key string) (*Route, error) {
	rawPrimary, rawReplicas, keyHash, err := s.ring.GetNodesForKey(key, s.replicationFactor)
	if err != nil {
		return nil, err
	}

	overrides := s.failover.Overrides()
	resolve := func(name string) string {
		if promoted, ok := overrides[name]; ok {
			return promoted
		}
		return name
	}

	primary := resolve(rawPrimary)
	seen := map[string]bool{primary: true}
	replicas := make([]string, 0, len(rawReplicas))
	for _, raw := range rawReplicas {
		effective := resolve(raw)
		if !seen[effective] {
			seen[effective] = true
			replicas = append(replicas, effective)
		}
	}

	return &Route{
		Key:        key,
		KeyHash:    keyHash,
		RawPrimary: rawPrimary,
		Primary:    primary,
		Replicas:   replicas,
	}, nil
}

// Produce routes the write to the effective primary, which fans out to the
// effective replicas. Single attempt: a primary-side failure is surfaced,
// not retried.
func (s *Service) Produce(ctx context.Context, key string, payload []byte) (*ProduceResponse, error) {
	route, err := s.ResolveRoute(key)
	if err != nil {
		return nil, err
	}

	primaryURL, ok := s.ring.NodeURL(route.Primary)
	if !ok {
		return nil, fmt.Errorf("no URL registered for broker %s", route.Primary)
	}

	targets := make([]model.ReplicaTarget, 0, len(route.Replicas))
	for _, replica := range route.Replicas {
		url, ok := s.ring.NodeURL(replica)
		if !ok {
			continue
		}
		targets = append(targets, model.ReplicaTarget{Node: replica, URL: url})
	}

	resp, err := s.client.Store(ctx, primaryURL, &model.StoreRequest{
		Key:         key,
		Payload:     payload,
		ReplicateTo: targets,
	})
	if err != nil {
		s.logger.Error("primary store failed",
			zap.String("key", key),
			zap.String("primary", route.Primary),
			zap.Error(err))
		return nil, &PrimaryUnreachableError{Node: route.Primary, Err: err}
	}

	degraded := false
	for _, result := range resp.ReplicationResults {
		if result.Status == model.ReplicationFailed {
			degraded = true
			s.logger.Warn("replication degraded",
				zap.String("key", key),
				zap.String("replica", result.Node),
				zap.String("error", result.Error))
		}
	}
	if degraded && s.metrics != nil {
		s.metrics.ReplicationDegradation.Inc()
	}

	s.logger.Info("produce routed",
		zap.String("key", key),
		zap.Uint32("key_hash", route.KeyHash),
		zap.String("primary", route.Primary),
		zap.Strings("replicas", route.Replicas))

	return &ProduceResponse{
		Success:            true,
		Key:                key,
		KeyHash:            route.KeyHash,
		Primary:            route.Primary,
		Replicas:           route.Replicas,
		ReplicationResults: resp.ReplicationResults,
	}, nil
}

// Consume reads the key from the effective primary, falling back across the
// effective replicas in ring order. The first copy found wins.
func (s *Service) Consume(ctx context.Context, key string) (*ConsumeResponse, error) {
	route, err := s.ResolveRoute(key)
	if err != nil {
		return nil, err
	}

	failoverActive := s.failover.Active()
	candidates := append([]string{route.Primary}, route.Replicas...)

	for _, candidate := range candidates {
		url, ok := s.ring.NodeURL(candidate)
		if !ok {
			continue
		}

		resp, err := s.client.Fetch(ctx, url, key)
		if err != nil {
			if !errors.Is(err, client.ErrNotFound) {
				s.logger.Warn("fetch candidate unreachable",
					zap.String("key", key),
					zap.String("node", candidate),
					zap.Error(err))
			}
			continue
		}

		source := "replica"
		if candidate == route.RawPrimary {
			source = "primary"
		}

		s.logger.Info("consume served",
			zap.String("key", key),
			zap.String("served_by", candidate),
			zap.String("source", source))

		return &ConsumeResponse{
			Success:   true,
			Key:       key,
			Payload:   resp.Payload,
			Timestamp: resp.Timestamp,
			Role:      resp.Role,
			ServedBy:  candidate,
			Source:    source,
			Failover:  failoverActive,
		}, nil
	}

	return nil, ErrNotFound
}

// RingInfo snapshots ring placement for /ring.
func (s *Service) RingInfo() RingResponse {
	stats := s.ring.Stats()
	nodes := make(map[string]RingNodeInfo, len(stats))
	totalVirtual := 0
	for name, stat := range stats {
		nodes[name] = RingNodeInfo{
			URL:              stat.URL,
			VirtualNodeCount: stat.VirtualNodeCount,
			RingCoverage:     stat.RingCoverage,
		}
		totalVirtual += stat.VirtualNodeCount
	}
	return RingResponse{
		TotalNodes:        s.ring.NodeCount(),
		VirtualNodeCount:  s.ring.VirtualNodes(),
		TotalVirtualNodes: totalVirtual,
		HashSpace:         "2^32",
		Nodes:             nodes,
	}
}

// RouteInfo snapshots the effective route for /route/{key}.
func (s *Service) RouteInfo(key string) (*RouteResponse, error) {
	route, err := s.ResolveRoute(key)
	if err != nil {
		return nil, err
	}

	primaryURL, _ := s.ring.NodeURL(route.Primary)
	replicaURLs := make([]string, 0, len(route.Replicas))
	for _, replica := range route.Replicas {
		if url, ok := s.ring.NodeURL(replica); ok {
			replicaURLs = append(replicaURLs, url)
		}
	}

	return &RouteResponse{
		Key:            key,
		KeyHash:        route.KeyHash,
		Primary:        route.Primary,
		PrimaryURL:     primaryURL,
		Replicas:       route.Replicas,
		ReplicaURLs:    replicaURLs,
		FailoverActive: s.failover.Active(),
	}, nil
}

// NodeHealth snapshots every broker's health record for /health/nodes.
func (s *Service) NodeHealth() map[string]model.HealthRecord {
	return s.detector.Records()
}

// FailoverStatus snapshots the failover state for /failover/status.
func (s *Service) FailoverStatus() FailoverStatusResponse {
	events := s.failover.Events()
	return FailoverStatusResponse{
		TotalFailovers:   len(events),
		ActivePromotions: s.failover.Overrides(),
		Events:           events,
	}
}
