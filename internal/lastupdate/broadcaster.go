// Package lastupdate holds the timestamp of the most recently observed
// reading and notifies listeners when it changes.
package lastupdate

import (
	"sync"

	"github.com/guregu/null"

	"co2-monitor/internal/observer"
)

// Listener receives the current value; an invalid value means unknown
type Listener func(null.Time)

// Broadcaster is constructed once in main and shared by reference.
// Listeners run synchronously, one at a time, in registration order.
// A listener must not call Set or OnChange.
type Broadcaster struct {
	mu    sync.RWMutex
	value null.Time

	// emitMu serialises broadcasts and first calls so listeners see
	// values in order
	emitMu    sync.Mutex
	listeners *observer.Registry[*Listener]
}

func New() *Broadcaster {
	return &Broadcaster{listeners: observer.NewRegistry[*Listener]()}
}

// Set records v and then invokes every listener with it
func (b *Broadcaster) Set(v null.Time) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	b.value = v
	b.mu.Unlock()

	for l := range b.listeners.All() {
		(*l)(v)
	}
}

func (b *Broadcaster) Get() null.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

// OnChange registers l and immediately invokes it with the current value.
// The returned function unregisters it and may be called more than once.
func (b *Broadcaster) OnChange(l Listener) (unregister func()) {
	// pointer identity keeps two registrations of the same func distinct
	entry := &l

	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.RLock()
	remove := b.listeners.Add(entry)
	current := b.value
	b.mu.RUnlock()

	l(current)
	return remove
}

// Listeners reports how many listeners are registered
func (b *Broadcaster) Listeners() int {
	return b.listeners.Len()
}
