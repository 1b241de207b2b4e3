package ring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(names ...string) *Ring {
	r := New(150)
	for _, name := range names {
		r.AddNode(name, "http://"+name+":5000")
	}
	return r
}

func TestGetNodesForKey_DistinctOwners(t *testing.T) {
	r := newTestRing("node-a", "node-b", "node-c")

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("order_%d", i)
		primary, replicas, _, err := r.GetNodesForKey(key, 3)
		require.NoError(t, err)

		seen := map[string]bool{primary: true}
		for _, rep := range replicas {
			assert.False(t, seen[rep], "duplicate owner %s for key %s", rep, key)
			seen[rep] = true
		}
		assert.Len(t, replicas, 2)
	}
}

func TestGetNodesForKey_Deterministic(t *testing.T) {
	r := newTestRing("node-a", "node-b", "node-c")

	p1, reps1, h1, err := r.GetNodesForKey("order_1", 3)
	require.NoError(t, err)
	p2, reps2, h2, err := r.GetNodesForKey("order_1", 3)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, reps1, reps2)
	assert.Equal(t, h1, h2)
}

func TestGetNodesForKey_FactorExceedsNodeCount(t *testing.T) {
	r := newTestRing("node-a", "node-b")

	primary, replicas, _, err := r.GetNodesForKey("order_1", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, primary)
	assert.Len(t, replicas, 1)
}

func TestGetNodesForKey_EmptyRing(t *testing.T) {
	r := New(150)

	_, _, _, err := r.GetNodesForKey("order_1", 3)
	assert.ErrorIs(t, err, ErrEmptyRing)
}

func TestRemoveAndReAddIsDeterministic(t *testing.T) {
	r := newTestRing("node-a", "node-b", "node-c")

	before := map[string]string{}
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key_%d", i)
		primary, _, _, err := r.GetNodesForKey(key, 1)
		require.NoError(t, err)
		before[key] = primary
	}

	r.RemoveNode("node-b")
	r.AddNode("node-b", "http://node-b:5000")

	for key, want := range before {
		primary, _, _, err := r.GetNodesForKey(key, 1)
		require.NoError(t, err)
		assert.Equal(t, want, primary, "placement moved for %s after remove/re-add", key)
	}
}

func TestRemoveNodeDropsOwnership(t *testing.T) {
	r := newTestRing("node-a", "node-b", "node-c")
	r.RemoveNode("node-b")

	assert.Equal(t, 2, r.NodeCount())
	for i := 0; i < 100; i++ {
		primary, replicas, _, err := r.GetNodesForKey(fmt.Sprintf("key_%d", i), 3)
		require.NoError(t, err)
		assert.NotEqual(t, "node-b", primary)
		assert.NotContains(t, replicas, "node-b")
	}
}

func TestStatsCoverageSumsToFullCircle(t *testing.T) {
	r := newTestRing("node-a", "node-b", "node-c")

	stats := r.Stats()
	require.Len(t, stats, 3)

	var total float64
	for name, stat := range stats {
		assert.Equal(t, 150, stat.VirtualNodeCount, name)
		assert.Greater(t, stat.RingCoverage, 10.0, "coverage badly skewed for %s", name)
		total += stat.RingCoverage
	}
	assert.InDelta(t, 100.0, total, 0.001)
}

func TestNodeNamesKeepRegistrationOrder(t *testing.T) {
	r := newTestRing("node-c", "node-a", "node-b")
	assert.Equal(t, []string{"node-c", "node-a", "node-b"}, r.NodeNames())
}

func TestNodeURL(t *testing.T) {
	r := newTestRing("node-a")

	url, ok := r.NodeURL("node-a")
	assert.True(t, ok)
	assert.Equal(t, "http://node-a:5000", url)

	_, ok = r.NodeURL("node-x")
	assert.False(t, ok)
}

func TestLookupWrapsPastMaximumPosition(t *testing.T) {
	r := New(1)
	r.AddNode("node-a", "http://node-a:5000")
	r.AddNode("node-b", "http://node-b:5000")

	maxPos := r.positions[len(r.positions)-1]
	wrapOwner := r.owners[r.positions[0]]

	var key string
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("wrap_%d", i)
		if Hash(candidate) > maxPos {
			key = candidate
			break
		}
	}

	primary, _, _, err := r.GetNodesForKey(key, 1)
	require.NoError(t, err)
	assert.Equal(t, wrapOwner, primary)
}

func TestHashIsStable(t *testing.T) {
	assert.Equal(t, Hash("order_1"), Hash("order_1"))
	assert.NotEqual(t, Hash("order_1"), Hash("order_2"))
}
