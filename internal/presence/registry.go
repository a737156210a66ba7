// Package presence tracks which identity owns which live connection.
//
// Registry is the in-process map used for delivery on this node. Directory is
// the shared Redis view that lets nodes find each other's connections.
package presence

import (
	"hash/fnv"
	"sync"
)

// Handle is a live connection as far as the registry is concerned.
type Handle interface {
	GetConnID() string
}

const shardCount = 32

type shard[H Handle] struct {
	mu      sync.RWMutex
	entries map[string]H
}

// Registry maps an identity to at most one handle. Writes to the same identity
// are serialized; different identities proceed in parallel.
type Registry[H Handle] struct {
	shards [shardCount]*shard[H]
}

func NewRegistry[H Handle]() *Registry[H] {
	r := &Registry[H]{}
	for i := range r.shards {
		r.shards[i] = &shard[H]{entries: make(map[string]H)}
	}
	return r
}

func (r *Registry[H]) shardFor(identity string) *shard[H] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return r.shards[h.Sum32()%shardCount]
}

// Register stores h for identity, replacing any earlier handle. The replaced
// handle is returned so the caller can close it; the registry never does.
func (r *Registry[H]) Register(identity string, h H) (prev H, replaced bool) {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, replaced = s.entries[identity]
	if replaced && prev.GetConnID() == h.GetConnID() {
		replaced = false
	}
	s.entries[identity] = h
	return prev, replaced
}

// Lookup returns the live handle for identity.
func (r *Registry[H]) Lookup(identity string) (H, bool) {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.entries[identity]
	return h, ok
}

// Unregister removes the entry only while it still points at h, so a late
// disconnect from a superseded connection leaves the newer one in place.
func (r *Registry[H]) Unregister(identity string, h H) bool {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[identity]
	if !ok || cur.GetConnID() != h.GetConnID() {
		return false
	}
	delete(s.entries, identity)
	return true
}

// Snapshot copies all entries.
func (r *Registry[H]) Snapshot() map[string]H {
	out := make(map[string]H)
	for _, s := range r.shards {
		s.mu.RLock()
		for id, h := range s.entries {
			out[id] = h
		}
		s.mu.RUnlock()
	}
	return out
}

// Count returns the number of registered identities.
func (r *Registry[H]) Count() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
