// Package broker fans committed mutation events out to subscribed sessions.
//
// The broker holds no authoritative state: every subscriber owns a bounded queue, a slow
// subscriber is switched to resync mode instead of slowing anyone else down, and lost
// deliveries are recovered through CatchUp.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/journal"
	"github.com/google/uuid"
)

const DefaultQueueSize = 256

var (
	// ErrBrokerOverflow is reported by a subscription whose queue exceeded its bound.
	ErrBrokerOverflow = errors.New("subscriber queue overflow")
	// ErrEventGap is reported by a subscription that saw an entity skip a version.
	ErrEventGap = errors.New("event stream skipped a version")

	ErrBrokerClosed        = errors.New("broker closed")
	ErrInvalidFilter       = errors.New("subscription filter needs a workflow or organization id")
	ErrSnapshotUnavailable = errors.New("no snapshot provider configured")
)

// Broker distributes events to subscriptions. It implements events.Sink.
type Broker struct {
	logger    *slog.Logger
	journal   journal.Journal
	snapshots SnapshotProvider
	queueSize int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

type Option func(*Broker)

// WithQueueSize bounds every subscriber queue.
func WithQueueSize(size int) Option {
	return func(b *Broker) {
		if size > 0 {
			b.queueSize = size
		}
	}
}

// WithJournal enables replay during catch-up.
func WithJournal(j journal.Journal) Option {
	return func(b *Broker) {
		b.journal = j
	}
}

// WithSnapshots sets the state source used for resync and non-contiguous catch-up.
func WithSnapshots(provider SnapshotProvider) Option {
	return func(b *Broker) {
		b.snapshots = provider
	}
}

func New(logger *slog.Logger, opts ...Option) *Broker {
	b := &Broker{
		logger:    logger.With("module", "broker"),
		queueSize: DefaultQueueSize,
		subs:      make(map[string]*Subscription),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// SetSnapshots replaces the snapshot provider. It exists because the provider is usually
// built after the broker it emits to.
func (b *Broker) SetSnapshots(provider SnapshotProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snapshots = provider
}

func (b *Broker) snapshotProvider() SnapshotProvider {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.snapshots
}

// Subscribe registers a subscription for the events passing filter.
func (b *Broker) Subscribe(filter Filter) (*Subscription, error) {
	if filter.WorkflowID == "" && filter.OrganizationID == "" {
		return nil, ErrInvalidFilter
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := &Subscription{
		ID:            uuid.NewString(),
		filter:        filter,
		broker:        b,
		ch:            make(chan events.Event, b.queueSize),
		lastDelivered: make(map[string]int64),
	}

	b.subs[sub.ID] = sub

	b.logger.Debug("subscription added", "subscription_id", sub.ID, "workflow_id", filter.WorkflowID,
		"organization_id", filter.OrganizationID)

	return sub, nil
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, id)
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Emit offers every event to every subscription without blocking. Delivery problems stay
// with the affected subscriber, so Emit only fails once the broker is closed.
func (b *Broker) Emit(ctx context.Context, evts ...events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for _, event := range evts {
		for _, sub := range b.subs {
			err := sub.deliver(event)
			switch {
			case errors.Is(err, ErrBrokerOverflow):
				b.logger.WarnContext(ctx, "subscriber queue overflowed, resync required",
					"subscription_id", sub.ID, "queue_size", b.queueSize)
			case errors.Is(err, ErrEventGap):
				b.logger.WarnContext(ctx, "event version gap, resync required",
					"subscription_id", sub.ID, "entity_id", event.EntityID, "version", event.Version)
			}
		}
	}

	return nil
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return
	}

	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}
