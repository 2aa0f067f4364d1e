// Package live fans row change notifications out to independent subscribers.
package live

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"co2-monitor/internal/metrics"
	"co2-monitor/internal/models"
	"co2-monitor/internal/observer"
)

// Transport delivers change events for the raw reading table. The returned
// function tears the subscription down.
type Transport interface {
	SubscribeChanges(handler func(models.ChangeEvent)) (unsubscribe func() error, err error)
}

// RowHandler is invoked for every inserted or updated reading
type RowHandler func(models.Reading)

// Bus holds exactly one transport subscription and multiplexes it to any
// number of subscribers, which run synchronously in registration order.
type Bus struct {
	transport Transport
	log       *slog.Logger

	mu          sync.Mutex
	unsubscribe func() error
	subscribers *observer.Registry[*RowHandler]
}

func NewBus(transport Transport, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		transport:   transport,
		log:         logger.With("component", "live"),
		subscribers: observer.NewRegistry[*RowHandler](),
	}
}

// Start opens the transport subscription. Calling it again is a no-op.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsubscribe != nil {
		return nil
	}
	unsubscribe, err := b.transport.SubscribeChanges(b.dispatch)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to change notifications")
	}
	b.unsubscribe = unsubscribe
	b.log.Info("subscribed to change notifications")
	return nil
}

// Subscribe registers onRowChange. The returned function is idempotent and
// never blocks on the transport.
func (b *Bus) Subscribe(onRowChange RowHandler) (unsubscribe func()) {
	remove := b.subscribers.Add(&onRowChange)
	metrics.LiveSubscribers.Inc()

	return sync.OnceFunc(func() {
		remove()
		metrics.LiveSubscribers.Dec()
	})
}

// Subscribers reports how many callbacks are registered
func (b *Bus) Subscribers() int {
	return b.subscribers.Len()
}

// Dispatch delivers an event as if it came from the transport
func (b *Bus) Dispatch(event models.ChangeEvent) {
	b.dispatch(event)
}

func (b *Bus) dispatch(event models.ChangeEvent) {
	metrics.ChangeEvents.WithLabelValues(event.Type).Inc()
	b.log.Debug("row change", "type", event.Type, "id", event.Record.ID)

	for handler := range b.subscribers.All() {
		(*handler)(event.Record)
	}
}

// Close tears the transport subscription down without waiting for it
func (b *Bus) Close() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	if unsubscribe == nil {
		return
	}
	go func() {
		if err := unsubscribe(); err != nil {
			b.log.Warn("failed to unsubscribe from change notifications", "error", err)
		}
	}()
}
