package broker

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/client"
	"github.com/keymq/keymq/internal/model"
)

func newTestStore(t *testing.T, node string) *Store {
	t.Helper()
	bc := client.NewBrokerClient(200*time.Millisecond, zap.NewNop())
	return NewStore(node, bc, nil, zap.NewNop())
}

// startBroker runs a full broker (store + handlers + router) on httptest.
func startBroker(t *testing.T, node string) (*Store, *httptest.Server) {
	t.Helper()
	store := newTestStore(t, node)
	handlers := NewHandlers(store, zap.NewNop())
	server := NewServer(testServerConfig(), handlers, zap.NewNop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return store, ts
}

func TestStorePrimary_WritesLocallyAndReplicates(t *testing.T) {
	primary := newTestStore(t, "node-a")
	replicaStore, replicaServer := startBroker(t, "node-b")

	payload := json.RawMessage(`{"event":"order_placed","userId":42}`)
	results := primary.StorePrimary(context.Background(), "order_1", payload, []model.ReplicaTarget{
		{Node: "node-b", URL: replicaServer.URL},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "node-b", results[0].Node)
	assert.Equal(t, model.ReplicationSuccess, results[0].Status)

	entry, ok := primary.Fetch("order_1")
	require.True(t, ok)
	assert.Equal(t, model.RolePrimary, entry.Role)
	assert.JSONEq(t, string(payload), string(entry.Payload))

	replicated, ok := replicaStore.Fetch("order_1")
	require.True(t, ok)
	assert.Equal(t, model.RoleReplica, replicated.Role)
	assert.Equal(t, "node-a", replicated.ReplicaOf)
	assert.JSONEq(t, string(payload), string(replicated.Payload))
}

func TestStorePrimary_ReplicaFailureDoesNotFailWrite(t *testing.T) {
	primary := newTestStore(t, "node-a")
	_, liveServer := startBroker(t, "node-b")

	deadServer := httptest.NewServer(nil)
	deadURL := deadServer.URL
	deadServer.Close()

	payload := json.RawMessage(`{"v":1}`)
	results := primary.StorePrimary(context.Background(), "order_1", payload, []model.ReplicaTarget{
		{Node: "node-dead", URL: deadURL},
		{Node: "node-b", URL: liveServer.URL},
	})

	require.Len(t, results, 2)
	assert.Equal(t, model.ReplicationFailed, results[0].Status)
	assert.NotEmpty(t, results[0].Error)
	assert.Equal(t, model.ReplicationSuccess, results[1].Status)

	_, ok := primary.Fetch("order_1")
	assert.True(t, ok, "local write must survive replica failure")
}

func TestStore_LastWriterWins(t *testing.T) {
	store := newTestStore(t, "node-a")

	store.StorePrimary(context.Background(), "k", json.RawMessage(`{"v":1}`), nil)
	store.StorePrimary(context.Background(), "k", json.RawMessage(`{"v":2}`), nil)

	entry, ok := store.Fetch("k")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(entry.Payload))
	assert.Equal(t, 1, store.Count())
}

func TestStoreReplica_OverwritesPrimaryEntry(t *testing.T) {
	store := newTestStore(t, "node-a")

	store.StorePrimary(context.Background(), "k", json.RawMessage(`{"v":1}`), nil)
	store.StoreReplica("k", json.RawMessage(`{"v":2}`), "node-b")

	entry, ok := store.Fetch("k")
	require.True(t, ok)
	assert.Equal(t, model.RoleReplica, entry.Role)
	assert.Equal(t, "node-b", entry.ReplicaOf)
}

func TestAuditClassification(t *testing.T) {
	store := newTestStore(t, "node-a")

	store.StorePrimary(context.Background(), "p1", json.RawMessage(`{}`), nil)
	store.StorePrimary(context.Background(), "p2", json.RawMessage(`{}`), nil)
	store.StoreReplica("r1", json.RawMessage(`{}`), "node-b")
	store.Promote()

	summary := store.Audit().Summary()
	assert.Equal(t, 2, summary.StoredAsPrimary)
	assert.Equal(t, 1, summary.StoredAsReplica)
	assert.Equal(t, 1, summary.PromotedToPrimary)

	asReplica := store.Audit().ByKind(model.AuditStoredAsReplica)
	require.Len(t, asReplica, 1)
	assert.Equal(t, "r1", asReplica[0].Key)
	assert.Equal(t, "node-b", asReplica[0].ReplicaOf)
}

func TestFetch_Missing(t *testing.T) {
	store := newTestStore(t, "node-a")
	_, ok := store.Fetch("missing_42")
	assert.False(t, ok)
}
