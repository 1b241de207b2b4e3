// Package failover implements the promotion protocol and owns post-failover
// routing state: the override map and the append-only failover event log.
package failover

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/health"
	"github.com/keymq/keymq/internal/metrics"
	"github.com/keymq/keymq/internal/model"
)

// StatusMarker lets the controller mark a failed broker as failed-over after
// a successful promotion. Satisfied by *health.Detector.
type StatusMarker interface {
	MarkFailedOver(node string)
}

// Controller drains health events and reacts to failures by promoting the
// first responsive broker clockwise from the failed one. Events are consumed
// by a single goroutine, so two failovers never run concurrently.
type Controller struct {
	brokers []model.BrokerNode
	client  *client.BrokerClient
	marker  StatusMarker
	timeout time.Duration

	mu        sync.RWMutex
	overrides map[string]string
	events    []model.FailoverEvent

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.CoordinatorMetrics
}

// NewController creates a controller over the static topology.
func NewController(
	brokers []model.BrokerNode,
	brokerClient *client.BrokerClient,
	marker StatusMarker,
	timeout time.Duration,
	m *metrics.CoordinatorMetrics,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		brokers:   brokers,
		client:    brokerClient,
		marker:    marker,
		timeout:   timeout,
		overrides: make(map[string]string),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    logger,
		metrics:   m,
	}
}

// Run consumes events until Stop is called or the channel closes. Call in a
// goroutine.
func (c *Controller) Run(events <-chan health.Event) {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case health.EventFailure:
				c.handleFailure(ev.Node)
			case health.EventRecovery:
				c.handleRecovery(ev.Node)
			}
		}
	}
}

// Stop terminates the event loop.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
		c.logger.Info("failover controller stopped")
	})
}

// Override resolves one broker name through the override map.
func (c *Controller) Override(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	promoted, ok := c.overrides[name]
	return promoted, ok
}

// Overrides returns a snapshot of the override map.
func (c *Controller) Overrides() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.overrides))
	for failed, promoted := range c.overrides {
		out[failed] = promoted
	}
	return out
}

// Active reports whether any failover has occurred.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.overrides) > 0
}

// Events returns a copy of the failover event log, oldest first.
func (c *Controller) Events() []model.FailoverEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.FailoverEvent, len(c.events))
	copy(out, c.events)
	return out
}

// handleFailure walks the broker list clockwise from the failed node and
// promotes the first candidate that answers a health probe. If the promote
// call fails, no override is inserted; the next failure event retries the
// selection. No lock is held across the outbound calls.
func (c *Controller) handleFailure(failed string) {
	c.logger.Warn("handling broker failure", zap.String("node", failed))

	idx := -1
	for i, b := range c.brokers {
		if b.Name == failed {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.logger.Error("failure event for unknown broker", zap.String("node", failed))
		return
	}

	for i := 1; i < len(c.brokers); i++ {
		candidate := c.brokers[(idx+i)%len(c.brokers)]

		probeCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		_, err := c.client.Health(probeCtx, candidate.URL)
		cancel()
		if err != nil {
			c.logger.Warn("promotion candidate unresponsive",
				zap.String("candidate", candidate.Name),
				zap.Error(err))
			continue
		}

		promoteCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		_, err = c.client.Promote(promoteCtx, candidate.URL)
		cancel()
		if err != nil {
			c.logger.Error("promote call failed, override not inserted",
				zap.String("candidate", candidate.Name),
				zap.Error(err))
			return
		}

		event := model.FailoverEvent{
			ID:           uuid.New().String(),
			FailedNode:   failed,
			PromotedNode: candidate.Name,
			Timestamp:    time.Now().UTC(),
		}

		c.mu.Lock()
		c.overrides[failed] = candidate.Name
		c.events = append(c.events, event)
		c.mu.Unlock()

		c.marker.MarkFailedOver(failed)
		if c.metrics != nil {
			c.metrics.FailoversTotal.Inc()
		}
		c.logger.Info("failover completed",
			zap.String("failed", failed),
			zap.String("promoted", candidate.Name))
		return
	}

	// Degraded: every candidate was unresponsive. Writes whose raw primary
	// is the failed node will keep failing until a later failure event
	// finds a responsive candidate.
	c.logger.Error("no responsive promotion candidate, entering degraded mode",
		zap.String("node", failed))
}

// handleRecovery logs the recovery. The override stays: the promoted broker
// remains the effective primary until an operator intervenes.
func (c *Controller) handleRecovery(node string) {
	c.logger.Info("broker recovered, retaining current topology",
		zap.String("node", node))
}
