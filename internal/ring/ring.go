// Package ring implements consistent hashing with virtual nodes. Positions
// live in [0, 2^32); each broker owns a configurable number of virtual nodes
// labelled "<name>:vnode<i>". Keys and labels share the same hash function so
// they share the same space.
package ring

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrEmptyRing is returned when a lookup hits a ring with no nodes. Routing
// against an unconfigured ring is a programmer error; callers surface it.
var ErrEmptyRing = errors.New("ring: no nodes configured")

const hashSpace = uint64(1) << 32

type nodeEntry struct {
	url       string
	positions []uint32
}

// Ring is safe for concurrent use. In the base design it is built once from
// configuration and only read afterwards.
type Ring struct {
	mu           sync.RWMutex
	positions    []uint32 // sorted, strictly increasing
	owners       map[uint32]string
	nodes        map[string]*nodeEntry
	order        []string // registration order
	virtualNodes int
}

// New creates an empty ring with virtualNodes positions per broker.
func New(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = 150
	}
	return &Ring{
		owners:       make(map[uint32]string),
		nodes:        make(map[string]*nodeEntry),
		virtualNodes: virtualNodes,
	}
}

// Hash maps a label or key onto the ring: SHA-256 over the UTF-8 bytes,
// first 4 bytes big-endian, reduced mod 2^32.
func Hash(label string) uint32 {
	sum := sha256.Sum256([]byte(label))
	return binary.BigEndian.Uint32(sum[:4])
}

// AddNode inserts the broker's virtual positions. Position collisions are
// resolved by linear probing (+1 mod 2^32) so every position maps to exactly
// one broker.
func (r *Ring) AddNode(name, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[name]; exists {
		return
	}

	positions := make([]uint32, 0, r.virtualNodes)
	for i := 0; i < r.virtualNodes; i++ {
		pos := Hash(fmt.Sprintf("%s:vnode%d", name, i))
		for {
			if _, taken := r.owners[pos]; !taken {
				break
			}
			pos++ // wraps at 2^32 by uint32 arithmetic
		}
		r.owners[pos] = name
		r.positions = append(r.positions, pos)
		positions = append(positions, pos)
	}

	r.nodes[name] = &nodeEntry{url: url, positions: positions}
	r.order = append(r.order, name)
	sort.Slice(r.positions, func(i, j int) bool { return r.positions[i] < r.positions[j] })
}

// RemoveNode deletes every virtual position owned by name.
func (r *Ring) RemoveNode(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.nodes[name]
	if !exists {
		return
	}

	drop := make(map[uint32]bool, len(entry.positions))
	for _, pos := range entry.positions {
		drop[pos] = true
		delete(r.owners, pos)
	}

	kept := make([]uint32, 0, len(r.positions)-len(entry.positions))
	for _, pos := range r.positions {
		if !drop[pos] {
			kept = append(kept, pos)
		}
	}
	r.positions = kept

	delete(r.nodes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// GetNodesForKey returns the ordered owner list for key: the primary, then
// up to replicationFactor-1 distinct replicas in clockwise ring order. If
// fewer distinct brokers exist than requested, all of them are returned.
func (r *Ring) GetNodesForKey(key string, replicationFactor int) (primary string, replicas []string, keyHash uint32, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keyHash = Hash(key)
	if len(r.positions) == 0 {
		return "", nil, keyHash, ErrEmptyRing
	}

	// Smallest position >= hash, wrapping to 0 past the maximum.
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= keyHash
	})
	if idx == len(r.positions) {
		idx = 0
	}

	seen := make(map[string]bool, replicationFactor)
	owners := make([]string, 0, replicationFactor)
	for i := 0; i < len(r.positions) && len(owners) < replicationFactor; i++ {
		name := r.owners[r.positions[(idx+i)%len(r.positions)]]
		if !seen[name] {
			seen[name] = true
			owners = append(owners, name)
		}
	}

	return owners[0], owners[1:], keyHash, nil
}

// NodeURL resolves a broker name to its URL.
func (r *Ring) NodeURL(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.nodes[name]
	if !ok {
		return "", false
	}
	return entry.url, true
}

// NodeNames returns all broker names in registration order.
func (r *Ring) NodeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// NodeCount returns the number of physical brokers.
func (r *Ring) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// VirtualNodes returns the configured virtual-node count per broker.
func (r *Ring) VirtualNodes() int {
	return r.virtualNodes
}

// NodeStat describes one broker's footprint on the ring.
type NodeStat struct {
	URL              string
	VirtualNodeCount int
	RingCoverage     float64 // percent of the hash space owned
}

// Stats returns per-broker placement statistics. Coverage is the summed arc
// length ending at each of the broker's positions.
func (r *Ring) Stats() map[string]NodeStat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coverage := make(map[string]uint64, len(r.nodes))
	n := len(r.positions)
	for i, pos := range r.positions {
		var arc uint64
		if i == 0 {
			// Wraps around from the highest position through zero.
			arc = uint64(pos) + hashSpace - uint64(r.positions[n-1])
		} else {
			arc = uint64(pos) - uint64(r.positions[i-1])
		}
		coverage[r.owners[pos]] += arc
	}

	stats := make(map[string]NodeStat, len(r.nodes))
	for name, entry := range r.nodes {
		stats[name] = NodeStat{
			URL:              entry.url,
			VirtualNodeCount: len(entry.positions),
			RingCoverage:     float64(coverage[name]) / float64(hashSpace) * 100,
		}
	}
	return stats
}
