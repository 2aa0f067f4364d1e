// Package observer provides an ordered listener registry with idempotent
// removal, shared by the live bus and the last-update broadcaster.
package observer

import (
	"iter"
	"sync"
)

type node[T any] struct {
	value   T
	prev    *node[T]
	next    *node[T]
	removed bool
}

// Registry keeps values in insertion order. Removal is O(1) and safe to
// call more than once or while the registry is being iterated.
type Registry[T any] struct {
	mu    sync.RWMutex
	first *node[T]
	last  *node[T]
	size  int
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Add appends value and returns the function that removes it again
func (r *Registry[T]) Add(value T) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := &node[T]{value: value, prev: r.last}
	if r.last == nil {
		r.first = n
	} else {
		r.last.next = n
	}
	r.last = n
	r.size++

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if n == nil {
			// already removed
			return
		}

		if n.prev == nil {
			r.first = n.next
		} else {
			n.prev.next = n.next
		}
		if n.next == nil {
			r.last = n.prev
		} else {
			n.next.prev = n.prev
		}
		r.size--

		n.removed = true
		n = nil
	}
}

func (r *Registry[T]) nodes() []*node[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*node[T], 0, r.size)
	for curr := r.first; curr != nil; curr = curr.next {
		out = append(out, curr)
	}
	return out
}

// All yields the entries present when iteration starts. The loop body may
// add or remove entries; an entry removed before its turn is skipped and
// one added during the loop is not yielded.
func (r *Registry[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, n := range r.nodes() {
			r.mu.RLock()
			removed := n.removed
			r.mu.RUnlock()
			if removed {
				continue
			}
			if !yield(n.value) {
				return
			}
		}
	}
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
