package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/model"
)

// fakeBroker is an httptest-backed broker whose /health endpoint can be
// toggled down.
type fakeBroker struct {
	server *httptest.Server
	down   atomic.Bool
}

func newFakeBroker(t *testing.T, name string) *fakeBroker {
	t.Helper()
	fb := &fakeBroker{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if fb.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.BrokerHealthResponse{
			Status: "healthy", Node: name, Timestamp: time.Now().UTC(),
		})
	})
	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func newTestDetector(t *testing.T, brokers []model.BrokerNode, threshold int) *Detector {
	t.Helper()
	bc := client.NewBrokerClient(200*time.Millisecond, zap.NewNop())
	d := NewDetector(brokers, bc, 20*time.Millisecond, threshold, 200*time.Millisecond, nil, zap.NewNop())
	t.Cleanup(d.Stop)
	return d
}

func waitForEvent(t *testing.T, d *Detector, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-d.Events():
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for detector event")
		return Event{}
	}
}

func TestDetector_AllHealthy(t *testing.T) {
	a := newFakeBroker(t, "node-a")
	b := newFakeBroker(t, "node-b")
	d := newTestDetector(t, []model.BrokerNode{
		{Name: "node-a", URL: a.server.URL},
		{Name: "node-b", URL: b.server.URL},
	}, 3)
	d.Start()

	assert.Eventually(t, func() bool {
		rec := d.Records()["node-a"]
		return rec.LastSuccess != nil && rec.Status == model.StateHealthy
	}, time.Second, 10*time.Millisecond)

	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestDetector_FailureAfterThreshold(t *testing.T) {
	a := newFakeBroker(t, "node-a")
	d := newTestDetector(t, []model.BrokerNode{{Name: "node-a", URL: a.server.URL}}, 3)
	a.down.Store(true)
	d.Start()

	ev := waitForEvent(t, d, 2*time.Second)
	assert.Equal(t, EventFailure, ev.Type)
	assert.Equal(t, "node-a", ev.Node)

	rec := d.Records()["node-a"]
	assert.Equal(t, model.StateFailed, rec.Status)
	assert.GreaterOrEqual(t, rec.FailCount, 3)
	require.NotNil(t, rec.FailedAt)
}

func TestDetector_NoFailureBelowThreshold(t *testing.T) {
	a := newFakeBroker(t, "node-a")
	d := newTestDetector(t, []model.BrokerNode{{Name: "node-a", URL: a.server.URL}}, 100)
	a.down.Store(true)
	d.Start()

	assert.Eventually(t, func() bool {
		return d.Records()["node-a"].FailCount >= 2
	}, 2*time.Second, 10*time.Millisecond)

	rec := d.Records()["node-a"]
	assert.Equal(t, model.StateHealthy, rec.Status)
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestDetector_RecoveryResetsFailCount(t *testing.T) {
	a := newFakeBroker(t, "node-a")
	d := newTestDetector(t, []model.BrokerNode{{Name: "node-a", URL: a.server.URL}}, 2)
	a.down.Store(true)
	d.Start()

	ev := waitForEvent(t, d, 2*time.Second)
	require.Equal(t, EventFailure, ev.Type)

	a.down.Store(false)
	ev = waitForEvent(t, d, 2*time.Second)
	assert.Equal(t, EventRecovery, ev.Type)

	rec := d.Records()["node-a"]
	assert.Equal(t, model.StateRecovered, rec.Status)
	assert.Equal(t, 0, rec.FailCount)
	assert.NotNil(t, rec.LastSuccess)
}

func TestDetector_FailedOverRecovers(t *testing.T) {
	a := newFakeBroker(t, "node-a")
	d := newTestDetector(t, []model.BrokerNode{{Name: "node-a", URL: a.server.URL}}, 2)
	a.down.Store(true)
	d.Start()

	require.Equal(t, EventFailure, waitForEvent(t, d, 2*time.Second).Type)
	d.MarkFailedOver("node-a")
	assert.Equal(t, model.StateFailedOver, d.Records()["node-a"].Status)

	a.down.Store(false)
	ev := waitForEvent(t, d, 2*time.Second)
	assert.Equal(t, EventRecovery, ev.Type)
	assert.Equal(t, model.StateRecovered, d.Records()["node-a"].Status)
}

func TestDetector_RefailsAfterRecovery(t *testing.T) {
	a := newFakeBroker(t, "node-a")
	d := newTestDetector(t, []model.BrokerNode{{Name: "node-a", URL: a.server.URL}}, 2)
	a.down.Store(true)
	d.Start()

	require.Equal(t, EventFailure, waitForEvent(t, d, 2*time.Second).Type)
	a.down.Store(false)
	require.Equal(t, EventRecovery, waitForEvent(t, d, 2*time.Second).Type)

	a.down.Store(true)
	ev := waitForEvent(t, d, 2*time.Second)
	assert.Equal(t, EventFailure, ev.Type)
}

func TestDetector_StopEmitsNothing(t *testing.T) {
	a := newFakeBroker(t, "node-a")
	d := newTestDetector(t, []model.BrokerNode{{Name: "node-a", URL: a.server.URL}}, 1)
	d.Start()
	d.Stop()

	a.down.Store(true)
	time.Sleep(100 * time.Millisecond)
	select {
	case ev := <-d.Events():
		t.Fatalf("event emitted after stop: %+v", ev)
	default:
	}
}
