package broker

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/journal"
	"github.com/google/uuid"
)

// Filter selects the events a session receives.
type Filter struct {
	WorkflowID     string              `json:"workflow_id,omitempty"`
	OrganizationID string              `json:"organization_id,omitempty"`
	EntityTypes    []events.EntityType `json:"entity_types,omitempty"`
}

// Matches reports whether event passes every non-empty criterion of the filter.
func (f Filter) Matches(event events.Event) bool {
	if f.WorkflowID != "" && event.WorkflowID != f.WorkflowID {
		return false
	}

	if f.OrganizationID != "" && event.OrganizationID != f.OrganizationID {
		return false
	}

	if len(f.EntityTypes) > 0 && !slices.Contains(f.EntityTypes, event.EntityType) {
		return false
	}

	return true
}

// Scope returns the journal stream covering the filter.
func (f Filter) Scope() journal.Scope {
	return journal.Scope{WorkflowID: f.WorkflowID, OrganizationID: f.OrganizationID}
}

// Subscription is one session's ordered view of the event stream.
//
// Events of one entity are delivered in strictly increasing version order. Stale versions
// are dropped. A version that skips ahead means events were lost upstream and is treated
// like an overflow: the queue holds a single resync_required event and nothing else is
// delivered until Resync is called.
type Subscription struct {
	ID string

	filter Filter
	broker *Broker
	ch     chan events.Event

	mu            sync.Mutex
	lastDelivered map[string]int64
	overflowed    bool
	closed        bool
	err           error
}

// Events is closed when the subscription or the broker is closed.
func (s *Subscription) Events() <-chan events.Event {
	return s.ch
}

func (s *Subscription) Filter() Filter {
	return s.filter
}

// Err returns ErrBrokerOverflow or ErrEventGap while the subscription waits for a resync.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// deliver enqueues event. It returns the reason when this call forced a resync.
func (s *Subscription) deliver(event events.Event) error {
	if !s.filter.Matches(event) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.overflowed {
		return nil
	}

	if last, ok := s.lastDelivered[event.EntityID]; ok {
		if event.Version <= last {
			return nil
		}

		if event.Version > last+1 {
			s.overflow(ErrEventGap)

			return ErrEventGap
		}
	}

	select {
	case s.ch <- event:
		s.lastDelivered[event.EntityID] = event.Version

		return nil
	default:
	}

	s.overflow(ErrBrokerOverflow)

	return ErrBrokerOverflow
}

// overflow replaces the queued backlog with a single resync marker.
func (s *Subscription) overflow(reason error) {
	for drained := false; !drained; {
		select {
		case <-s.ch:
		default:
			drained = true
		}
	}

	s.overflowed = true
	s.err = reason

	marker := events.Event{
		ID:             uuid.NewString(),
		Type:           events.ResyncRequiredEvent,
		WorkflowID:     s.filter.WorkflowID,
		OrganizationID: s.filter.OrganizationID,
		Timestamp:      time.Now().UTC(),
	}

	select {
	case s.ch <- marker:
	default:
	}
}

// Resync re-enables live delivery and returns a snapshot of the subscribed state.
// Live delivery resumes before the snapshot is taken, so the client must ignore queued
// events whose version is not newer than the snapshot's. Version tracking restarts from
// the first event delivered after the resync.
func (s *Subscription) Resync(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil, ErrBrokerClosed
	}

	s.overflowed = false
	s.err = nil
	clear(s.lastDelivered)
	s.mu.Unlock()

	provider := s.broker.snapshotProvider()
	if provider == nil {
		return nil, ErrSnapshotUnavailable
	}

	return provider.Snapshot(ctx, s.filter)
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s.ID)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.ch)
}
