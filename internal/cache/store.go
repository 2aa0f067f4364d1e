// Package cache keeps query results keyed by their parameters and drops
// them when the underlying rows change.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"co2-monitor/internal/metrics"
)

// Backend is an optional shared tier behind the in-process map
type Backend interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// generation identifies the state of one key; any invalidation changes it
type generation struct {
	epoch uint64
	key   uint64
}

// Store caches values of type V by key. A fetch that resolves after its key
// was invalidated is returned to its caller but never stored. Failed
// fetches are never stored.
type Store[V any] struct {
	name    string
	ttl     time.Duration
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex
	entries map[string]entry[V]
	gens    map[string]uint64
	epoch   uint64

	now func() time.Time
}

type Option[V any] func(*Store[V])

// WithBackend adds a shared tier consulted on local misses
func WithBackend[V any](b Backend) Option[V] {
	return func(s *Store[V]) { s.backend = b }
}

func WithLogger[V any](logger *slog.Logger) Option[V] {
	return func(s *Store[V]) { s.log = logger }
}

// NewStore creates a store; ttl <= 0 keeps entries until invalidated
func NewStore[V any](name string, ttl time.Duration, opts ...Option[V]) *Store[V] {
	s := &Store[V]{
		name:    name,
		ttl:     ttl,
		log:     slog.Default(),
		entries: make(map[string]entry[V]),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "cache", "cache", name)
	return s
}

// Get returns the cached value for key or calls fetch and caches its result
func (s *Store[V]) Get(ctx context.Context, key string, fetch func(context.Context) (V, error)) (V, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && (e.expires.IsZero() || s.now().Before(e.expires)) {
		s.mu.Unlock()
		metrics.CacheLookups.WithLabelValues(s.name, "hit").Inc()
		return e.value, nil
	}
	gen := s.generationLocked(key)
	s.mu.Unlock()

	if s.backend != nil {
		var v V
		found, err := s.backend.Get(ctx, key, &v)
		if err != nil {
			s.log.Warn("shared cache read failed", "key", key, "error", err)
		} else if found {
			metrics.CacheLookups.WithLabelValues(s.name, "shared_hit").Inc()
			s.commit(key, gen, v)
			return v, nil
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(s.name, "error").Inc()
		return v, err
	}

	if !s.commit(key, gen, v) {
		metrics.CacheLookups.WithLabelValues(s.name, "stale").Inc()
		return v, nil
	}
	metrics.CacheLookups.WithLabelValues(s.name, "miss").Inc()

	if s.backend != nil {
		if err := s.backend.Set(ctx, key, v); err != nil {
			s.log.Warn("shared cache write failed", "key", key, "error", err)
		} else if !s.current(key, gen) {
			// invalidated while writing
			if err := s.backend.Delete(ctx, key); err != nil {
				s.log.Warn("shared cache delete failed", "key", key, "error", err)
			}
		}
	}
	return v, nil
}

// commit stores v if key has not been invalidated since gen was taken
func (s *Store[V]) commit(key string, gen generation, v V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generationLocked(key) != gen {
		return false
	}
	e := entry[V]{value: v}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.entries[key] = e
	return true
}

func (s *Store[V]) current(key string, gen generation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generationLocked(key) == gen
}

func (s *Store[V]) generationLocked(key string) generation {
	return generation{epoch: s.epoch, key: s.gens[key]}
}

// Invalidate drops key and discards any fetch for it still in flight
func (s *Store[V]) Invalidate(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.gens[key]++
	s.mu.Unlock()

	metrics.CacheInvalidations.WithLabelValues(s.name).Inc()
	if s.backend != nil {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.log.Warn("shared cache delete failed", "key", key, "error", err)
		}
	}
}

// InvalidateAll drops every key and discards every fetch in flight
func (s *Store[V]) InvalidateAll(ctx context.Context) {
	s.mu.Lock()
	clear(s.entries)
	clear(s.gens)
	s.epoch++
	s.mu.Unlock()

	metrics.CacheInvalidations.WithLabelValues(s.name).Inc()
	if s.backend != nil {
		if err := s.backend.Clear(ctx); err != nil {
			s.log.Warn("shared cache clear failed", "error", err)
		}
	}
}

// Len reports the number of locally cached keys, expired ones included
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
