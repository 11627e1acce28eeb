// Package registry provides a sharded, concurrency-safe store for live
// session state keyed by session ID.
//
// The store is sharded so that unrelated sessions never contend on the same
// lock: each key hashes to one of a fixed number of shards, and all
// operations on that key lock only its shard. Close of a stored entry runs
// exactly once no matter how many callers race to delete it.
package registry

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// Session is the minimal contract the registry requires from stored
// entries. Close releases whatever resources the entry holds; the registry
// guarantees it is invoked at most once per entry.
type Session interface {
	Close() error
}

type entry[T Session] struct {
	value T
	once  sync.Once
}

func (e *entry[T]) close() error {
	var err error
	e.once.Do(func() {
		err = e.value.Close()
	})
	return err
}

type shard[T Session] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]
}

// Registry is a sharded map from session ID to session state.
// The zero value is not usable; construct with [New].
type Registry[T Session] struct {
	shards [shardCount]*shard[T]
}

// New returns an empty registry.
func New[T Session]() *Registry[T] {
	r := &Registry[T]{}
	for i := range r.shards {
		r.shards[i] = &shard[T]{entries: make(map[string]*entry[T])}
	}
	return r
}

func (r *Registry[T]) shardFor(id string) *shard[T] {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Get returns the session stored under id, if any.
func (r *Registry[T]) Get(id string) (T, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetOrCreate returns the session stored under id, creating it with create
// if absent. It reports whether the returned session already existed.
// create runs under the shard lock, so it must not call back into the
// registry.
func (r *Registry[T]) GetOrCreate(id string, create func() T) (T, bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.value, true
	}
	e := &entry[T]{value: create()}
	s.entries[id] = e
	return e.value, false
}

// Put stores value under id, replacing any existing entry without closing
// it. Most callers want [Registry.GetOrCreate] instead.
func (r *Registry[T]) Put(id string, value T) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry[T]{value: value}
}

// Delete removes the session stored under id and closes it. Deleting an
// absent id is a no-op returning (false, nil); concurrent deletes of the
// same id close the entry once, with every caller observing the same error.
func (r *Registry[T]) Delete(id string) (bool, error) {
	s := r.shardFor(id)
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, e.close()
}

// Range calls fn for every stored session until fn returns false. Each
// shard is read-locked only while its own entries are visited; sessions
// added or removed concurrently may or may not be observed.
func (r *Registry[T]) Range(fn func(id string, value T) bool) {
	for _, s := range r.shards {
		s.mu.RLock()
		for id, e := range s.entries {
			if !fn(id, e.value) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Len returns the number of stored sessions.
func (r *Registry[T]) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// CloseAll removes and closes every stored session, returning the first
// close error encountered.
func (r *Registry[T]) CloseAll() error {
	var first error
	for _, s := range r.shards {
		s.mu.Lock()
		entries := s.entries
		s.entries = make(map[string]*entry[T])
		s.mu.Unlock()
		for _, e := range entries {
			if err := e.close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
