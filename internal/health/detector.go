// Package health implements the coordinator's broker liveness detector.
//
// One periodic tick drives a round of concurrent probes against every broker.
// A broker that fails FailureThreshold consecutive probes is declared FAILED;
// a single successful probe after a failure episode moves it to RECOVERED and
// resets the counter. Transitions are emitted as events on a channel drained
// by the failover controller, which keeps the two concerns from reentering
// each other.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/metrics"
	"github.com/keymq/keymq/internal/model"
)

// EventType classifies a detector event.
type EventType string

const (
	EventFailure  EventType = "failure"
	EventRecovery EventType = "recovery"
)

// Event is a finalized state transition for one broker.
type Event struct {
	Type EventType
	Node string
}

// Detector probes the broker fleet and maintains per-broker health records.
type Detector struct {
	brokers   []model.BrokerNode
	client    *client.BrokerClient
	interval  time.Duration
	threshold int
	timeout   time.Duration

	mu      sync.RWMutex
	records map[string]*model.HealthRecord

	events   chan Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.CoordinatorMetrics
}

// NewDetector creates a detector for the given static topology. All brokers
// start HEALTHY with a zero fail count.
func NewDetector(
	brokers []model.BrokerNode,
	brokerClient *client.BrokerClient,
	interval time.Duration,
	threshold int,
	timeout time.Duration,
	m *metrics.CoordinatorMetrics,
	logger *zap.Logger,
) *Detector {
	records := make(map[string]*model.HealthRecord, len(brokers))
	for _, b := range brokers {
		records[b.Name] = &model.HealthRecord{Status: model.StateHealthy}
	}
	return &Detector{
		brokers:   brokers,
		client:    brokerClient,
		interval:  interval,
		threshold: threshold,
		timeout:   timeout,
		records:   records,
		events:    make(chan Event, len(brokers)*2),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    logger,
		metrics:   m,
	}
}

// Events returns the channel on which finalized transitions are delivered.
func (d *Detector) Events() <-chan Event {
	return d.events
}

// Start launches the probe loop. Rounds run synchronously inside the ticker
// loop: if a round overruns the interval, the missed tick is dropped rather
// than queued, so a slow fleet never piles up rounds.
func (d *Detector) Start() {
	go func() {
		defer close(d.doneCh)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.runRound()
				// The ticker buffers one tick during an overrun; discard it.
				select {
				case <-ticker.C:
				default:
				}
			}
		}
	}()
	d.logger.Info("health detector started",
		zap.Duration("interval", d.interval),
		zap.Int("threshold", d.threshold),
		zap.Duration("probe_timeout", d.timeout))
}

// Stop cancels the probe loop. In-flight probes finish or time out; no
// events are emitted afterwards.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		<-d.doneCh
		d.logger.Info("health detector stopped")
	})
}

// MarkFailedOver records that a promotion completed for node. Called by the
// failover controller; a later successful probe still moves the node to
// RECOVERED.
func (d *Detector) MarkFailedOver(node string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[node]; ok {
		rec.Status = model.StateFailedOver
	}
}

// Records returns a snapshot of every broker's health record.
func (d *Detector) Records() map[string]model.HealthRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]model.HealthRecord, len(d.records))
	for name, rec := range d.records {
		out[name] = *rec
	}
	return out
}

// runRound probes every broker concurrently, waits for all probes to finish,
// then finalizes and emits this round's transitions.
func (d *Detector) runRound() {
	results := make([]bool, len(d.brokers))

	g, ctx := errgroup.WithContext(context.Background())
	for i, b := range d.brokers {
		i, b := i, b
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			_, err := d.client.Health(probeCtx, b.URL)
			results[i] = err == nil
			return nil
		})
	}
	g.Wait()

	now := time.Now().UTC()
	var transitions []Event

	d.mu.Lock()
	healthy := 0
	for i, b := range d.brokers {
		rec := d.records[b.Name]
		rec.LastCheck = &now

		if results[i] {
			if rec.Status == model.StateFailed || rec.Status == model.StateFailedOver {
				rec.Status = model.StateRecovered
				transitions = append(transitions, Event{Type: EventRecovery, Node: b.Name})
				d.logger.Info("broker recovered", zap.String("node", b.Name))
			}
			rec.FailCount = 0
			ts := now
			rec.LastSuccess = &ts
			healthy++
			continue
		}

		rec.FailCount++
		if d.metrics != nil {
			d.metrics.ProbeFailures.WithLabelValues(b.Name).Inc()
		}
		d.logger.Warn("broker probe failed",
			zap.String("node", b.Name),
			zap.Int("fail_count", rec.FailCount),
			zap.String("status", string(rec.Status)))

		if (rec.Status == model.StateHealthy || rec.Status == model.StateRecovered) &&
			rec.FailCount >= d.threshold {
			rec.Status = model.StateFailed
			ts := now
			rec.FailedAt = &ts
			transitions = append(transitions, Event{Type: EventFailure, Node: b.Name})
			d.logger.Error("broker declared failed",
				zap.String("node", b.Name),
				zap.Int("fail_count", rec.FailCount))
		}
	}
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.BrokersHealthy.Set(float64(healthy))
	}

	for _, event := range transitions {
		select {
		case d.events <- event:
		case <-d.stopCh:
			return
		}
	}
}
