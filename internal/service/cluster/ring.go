package cluster

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const defaultVirtualNodes = 128

type ringEntry struct {
	hash   uint64
	nodeID string
}

// Ring is a consistent-hash ring keyed by player id. Lookups read an
// immutable snapshot swapped atomically on topology changes, so a
// failover in progress can never expose a half-updated ring.
type Ring struct {
	replicas int

	mu    sync.Mutex // serializes rebuilds
	nodes map[string]struct{}
	snap  atomic.Value // []ringEntry, sorted by hash
}

func NewRing(replicas int) *Ring {
	if replicas <= 0 {
		replicas = defaultVirtualNodes
	}
	r := &Ring{
		replicas: replicas,
		nodes:    make(map[string]struct{}),
	}
	r.snap.Store([]ringEntry{})
	return r
}

func (r *Ring) Add(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeID]; exists {
		return
	}
	r.nodes[nodeID] = struct{}{}
	r.rebuild()
}

// Remove drops a node from the ring. Removing an absent node is a
// no-op, which keeps failover retries idempotent.
func (r *Ring) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeID]; !exists {
		return
	}
	delete(r.nodes, nodeID)
	r.rebuild()
}

func (r *Ring) Contains(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.nodes[nodeID]
	return exists
}

func (r *Ring) Nodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Locate returns the node owning the key: the first virtual node
// clockwise from the key's hash.
func (r *Ring) Locate(key string) (string, bool) {
	entries := r.snapshot()
	if len(entries) == 0 {
		return "", false
	}
	return entries[r.search(entries, key)].nodeID, true
}

// LocateBackup returns the next distinct node clockwise from the
// key's owner: the deterministic failover target for the key.
func (r *Ring) LocateBackup(key string) (string, bool) {
	entries := r.snapshot()
	if len(entries) == 0 {
		return "", false
	}

	start := r.search(entries, key)
	primary := entries[start].nodeID
	for i := 1; i < len(entries); i++ {
		entry := entries[(start+i)%len(entries)]
		if entry.nodeID != primary {
			return entry.nodeID, true
		}
	}
	return "", false
}

func (r *Ring) snapshot() []ringEntry {
	return r.snap.Load().([]ringEntry)
}

func (r *Ring) search(entries []ringEntry, key string) int {
	h := xxhash.Sum64String(key)
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].hash >= h
	})
	if idx == len(entries) {
		idx = 0
	}
	return idx
}

// rebuild recomputes the snapshot under r.mu and publishes it.
func (r *Ring) rebuild() {
	entries := make([]ringEntry, 0, len(r.nodes)*r.replicas)
	for nodeID := range r.nodes {
		for i := 0; i < r.replicas; i++ {
			entries = append(entries, ringEntry{
				hash:   xxhash.Sum64String(fmt.Sprintf("%s#%d", nodeID, i)),
				nodeID: nodeID,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].hash < entries[j].hash
	})
	r.snap.Store(entries)
}
