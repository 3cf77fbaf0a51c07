package broker

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/models"
)

// Snapshot is the authoritative current state of the workflows matched by a filter.
type Snapshot struct {
	Workflows []*models.Workflow `json:"workflows"`
	Tasks     []*models.Task     `json:"tasks"`
	TakenAt   time.Time          `json:"taken_at"`
}

// SnapshotProvider reads current state from the store.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, filter Filter) (*Snapshot, error)
}

// CatchUpRequest describes what a reconnecting session already has: the last version it
// observed per entity, a point in time, or neither.
type CatchUpRequest struct {
	Filter   Filter           `json:"filter"`
	LastSeen map[string]int64 `json:"last_seen,omitempty"`
	Since    *time.Time       `json:"since,omitempty"`
}

// CatchUpResponse holds either the missed events or, when history is not available, a
// snapshot that supersedes them.
type CatchUpResponse struct {
	Snapshot *Snapshot      `json:"snapshot,omitempty"`
	Events   []events.Event `json:"events"`
}

// CatchUp replays missed events from the journal when the retained history is contiguous
// and falls back to a snapshot otherwise. Sessions should subscribe before catching up
// so nothing committed in between is lost.
func (b *Broker) CatchUp(ctx context.Context, req CatchUpRequest) (*CatchUpResponse, error) {
	if req.Filter.WorkflowID == "" && req.Filter.OrganizationID == "" {
		return nil, ErrInvalidFilter
	}

	replay, complete, err := b.replay(ctx, req)
	if err != nil {
		return nil, err
	}

	if complete {
		b.logger.DebugContext(ctx, "catch-up served from journal", "events", len(replay))

		return &CatchUpResponse{Events: replay}, nil
	}

	provider := b.snapshotProvider()
	if provider == nil {
		return nil, ErrSnapshotUnavailable
	}

	snapshot, err := provider.Snapshot(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to take snapshot: %w", err)
	}

	b.logger.DebugContext(ctx, "catch-up served from snapshot",
		"workflows", len(snapshot.Workflows), "tasks", len(snapshot.Tasks))

	return &CatchUpResponse{Snapshot: snapshot, Events: []events.Event{}}, nil
}

func (b *Broker) replay(ctx context.Context, req CatchUpRequest) ([]events.Event, bool, error) {
	if b.journal == nil || (len(req.LastSeen) == 0 && req.Since == nil) {
		return nil, false, nil
	}

	seen := make(map[string]int64)
	replay := make([]events.Event, 0)

	add := func(event events.Event) {
		if !req.Filter.Matches(event) || event.Version <= seen[event.EntityID] {
			return
		}

		replay = append(replay, event)
	}

	for _, entityID := range slices.Sorted(maps.Keys(req.LastSeen)) {
		version := req.LastSeen[entityID]

		evts, complete, err := b.journal.After(ctx, entityID, version)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read journal for %s: %w", entityID, err)
		}

		if !complete {
			return nil, false, nil
		}

		seen[entityID] = version

		for _, event := range evts {
			add(event)
		}
	}

	if req.Since != nil {
		evts, complete, err := b.journal.Since(ctx, req.Filter.Scope(), *req.Since)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read journal since %s: %w", req.Since, err)
		}

		if !complete {
			return nil, false, nil
		}

		for _, event := range evts {
			add(event)
		}
	}

	return dedupe(replay), true, nil
}

// dedupe orders events by entity and version and drops repeats.
func dedupe(evts []events.Event) []events.Event {
	sort.SliceStable(evts, func(i, j int) bool {
		if evts[i].EntityID != evts[j].EntityID {
			return evts[i].EntityID < evts[j].EntityID
		}

		return evts[i].Version < evts[j].Version
	})

	result := make([]events.Event, 0, len(evts))

	for i, event := range evts {
		if i > 0 && evts[i-1].EntityID == event.EntityID && evts[i-1].Version == event.Version {
			continue
		}

		result = append(result, event)
	}

	return result
}
