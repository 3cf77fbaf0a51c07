package journal

import (
	"context"
	"sync"
	"time"

	"github.com/advisoros/taskcore/pkg/events"
)

const (
	DefaultEntityCapacity = 256
	DefaultScopeCapacity  = 4096
)

// ring keeps the newest events up to a capacity.
type ring struct {
	events  []events.Event
	evicted bool
}

func (r *ring) push(event events.Event, capacity int) {
	r.events = append(r.events, event)

	if len(r.events) > capacity {
		drop := len(r.events) - capacity
		r.events = append(r.events[:0:0], r.events[drop:]...)
		r.evicted = true
	}
}

// Memory is an in-process Journal. History is lost on restart, which only costs
// reconnecting sessions a snapshot instead of a replay.
type Memory struct {
	mu             sync.RWMutex
	entityCapacity int
	scopeCapacity  int
	entities       map[string]*ring
	scopes         map[string]*ring
	started        time.Time
}

// NewMemory creates a journal retaining up to entityCapacity events per entity and
// scopeCapacity events per workflow and per organization. Non-positive values use defaults.
func NewMemory(entityCapacity, scopeCapacity int) *Memory {
	if entityCapacity <= 0 {
		entityCapacity = DefaultEntityCapacity
	}

	if scopeCapacity <= 0 {
		scopeCapacity = DefaultScopeCapacity
	}

	return &Memory{
		entityCapacity: entityCapacity,
		scopeCapacity:  scopeCapacity,
		entities:       make(map[string]*ring),
		scopes:         make(map[string]*ring),
		started:        time.Now().UTC(),
	}
}

// Append records events. An event whose version does not advance its entity is ignored.
func (m *Memory) Append(_ context.Context, evts ...events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, event := range evts {
		entity, ok := m.entities[event.EntityID]
		if !ok {
			entity = &ring{}
			m.entities[event.EntityID] = entity
		}

		if n := len(entity.events); n > 0 && entity.events[n-1].Version >= event.Version {
			continue
		}

		entity.push(event, m.entityCapacity)

		for _, scope := range []Scope{{WorkflowID: event.WorkflowID}, {OrganizationID: event.OrganizationID}} {
			key := scope.Key()
			if key == "" {
				continue
			}

			stream, ok := m.scopes[key]
			if !ok {
				stream = &ring{}
				m.scopes[key] = stream
			}

			stream.push(event, m.scopeCapacity)
		}
	}

	return nil
}

func (m *Memory) After(_ context.Context, entityID string, version int64) ([]events.Event, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[entityID]
	if !ok || len(entity.events) == 0 {
		return nil, false, nil
	}

	first := entity.events[0].Version
	latest := entity.events[len(entity.events)-1].Version

	result := make([]events.Event, 0)

	for _, event := range entity.events {
		if event.Version > version {
			result = append(result, event)
		}
	}

	return result, Contiguous(version, first, latest), nil
}

func (m *Memory) Since(_ context.Context, scope Scope, since time.Time) ([]events.Event, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Nothing recorded before the journal started.
	covered := !since.Before(m.started)

	stream, ok := m.scopes[scope.Key()]
	if !ok {
		return nil, covered, nil
	}

	complete := covered && (!stream.evicted || !stream.events[0].Timestamp.After(since))

	result := make([]events.Event, 0)

	for _, event := range stream.events {
		if !event.Timestamp.Before(since) {
			result = append(result, event)
		}
	}

	return result, complete, nil
}

func (m *Memory) Close() error {
	return nil
}
