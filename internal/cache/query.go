package cache

import (
	"context"
	"sync"
)

// Fetcher loads the value for one query key
type Fetcher[V any] func(ctx context.Context, key string) (V, error)

// Query tracks the value of one view whose key can change over time.
// Each fetch captures the key and generation it was issued for and commits
// only when both are still current, so a slow response for an old key
// never replaces data for the active one.
type Query[V any] struct {
	fetch    Fetcher[V]
	onChange func(key string, value V)

	mu      sync.Mutex
	active  string
	gen     uint64
	value   V
	hasData bool

	// notifyMu keeps onChange calls in commit order
	notifyMu sync.Mutex
}

// NewQuery creates a query; onChange (optional) runs after each commit
func NewQuery[V any](fetch Fetcher[V], onChange func(key string, value V)) *Query[V] {
	return &Query[V]{fetch: fetch, onChange: onChange}
}

// SetKey makes key active and fetches it. It reports whether the result
// was committed. Data for the previous key is dropped immediately.
func (q *Query[V]) SetKey(ctx context.Context, key string) (bool, error) {
	q.mu.Lock()
	if key != q.active {
		var zero V
		q.value, q.hasData = zero, false
	}
	q.active = key
	q.gen++
	gen := q.gen
	q.mu.Unlock()

	return q.run(ctx, key, gen)
}

// Revalidate refetches the active key. It is a no-op before the first SetKey.
func (q *Query[V]) Revalidate(ctx context.Context) (bool, error) {
	q.mu.Lock()
	if q.active == "" {
		q.mu.Unlock()
		return false, nil
	}
	key := q.active
	q.gen++
	gen := q.gen
	q.mu.Unlock()

	return q.run(ctx, key, gen)
}

func (q *Query[V]) run(ctx context.Context, key string, gen uint64) (bool, error) {
	v, err := q.fetch(ctx, key)
	if err != nil {
		return false, err
	}

	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	if key != q.active || gen != q.gen {
		q.mu.Unlock()
		return false, nil
	}
	q.value, q.hasData = v, true
	q.mu.Unlock()

	if q.onChange != nil {
		q.onChange(key, v)
	}
	return true, nil
}

// Key returns the active key
func (q *Query[V]) Key() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Data returns the committed value for the active key, if any
func (q *Query[V]) Data() (V, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.value, q.hasData
}
