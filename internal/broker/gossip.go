package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/config"
)

// gossipMeta is the health snapshot a broker advertises to its peers.
type gossipMeta struct {
	Node         string `json:"node"`
	Status       string `json:"status"`
	MessageCount int    `json:"messageCount"`
	Timestamp    int64  `json:"timestamp"`
}

// GossipService gives brokers a peer-to-peer view of the fleet. It is
// observational only: the coordinator's probe loop stays the single source
// of failure declarations.
type GossipService struct {
	cfg        config.GossipConfig
	store      *Store
	memberlist *memberlist.Memberlist
	logger     *zap.Logger
}

// NewGossipService creates the memberlist instance and joins the seed nodes,
// retrying the join with exponential backoff.
func NewGossipService(cfg config.GossipConfig, store *Store, logger *zap.Logger) (*GossipService, error) {
	gs := &GossipService{cfg: cfg, store: store, logger: logger}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = store.Node()
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.GossipInterval = cfg.GossipInterval
	mlConfig.ProbeInterval = cfg.ProbeInterval
	mlConfig.ProbeTimeout = cfg.ProbeTimeout
	mlConfig.Delegate = gs
	mlConfig.Events = &gossipEvents{logger: logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	gs.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = cfg.JoinMaxElapsed
		err := backoff.Retry(func() error {
			_, joinErr := ml.Join(cfg.SeedNodes)
			return joinErr
		}, policy)
		if err != nil {
			logger.Warn("failed to join gossip seed nodes", zap.Error(err))
		}
	}

	return gs, nil
}

// Members returns the currently known peer names.
func (s *GossipService) Members() []string {
	members := s.memberlist.Members()
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

// Shutdown leaves the cluster.
func (s *GossipService) Shutdown() error {
	return s.memberlist.Shutdown()
}

// NodeMeta implements memberlist.Delegate.
func (s *GossipService) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(gossipMeta{
		Node:         s.store.Node(),
		Status:       "healthy",
		MessageCount: s.store.Count(),
		Timestamp:    time.Now().Unix(),
	})
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate.
func (s *GossipService) NotifyMsg(data []byte) {
	var meta gossipMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Warn("failed to unmarshal gossip message", zap.Error(err))
		return
	}
	s.logger.Debug("received peer state",
		zap.String("node", meta.Node),
		zap.Int("message_count", meta.MessageCount))
}

// GetBroadcasts implements memberlist.Delegate.
func (s *GossipService) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate.
func (s *GossipService) LocalState(join bool) []byte {
	return s.NodeMeta(1024)
}

// MergeRemoteState implements memberlist.Delegate.
func (s *GossipService) MergeRemoteState(buf []byte, join bool) {}

type gossipEvents struct {
	logger *zap.Logger
}

func (e *gossipEvents) NotifyJoin(node *memberlist.Node) {
	e.logger.Info("gossip peer joined",
		zap.String("node", node.Name),
		zap.String("addr", node.Addr.String()))
}

func (e *gossipEvents) NotifyLeave(node *memberlist.Node) {
	e.logger.Info("gossip peer left", zap.String("node", node.Name))
}

func (e *gossipEvents) NotifyUpdate(node *memberlist.Node) {
	e.logger.Debug("gossip peer updated", zap.String("node", node.Name))
}
