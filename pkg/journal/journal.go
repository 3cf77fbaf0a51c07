// Package journal retains recent mutation events so reconnecting sessions can catch up
// without a full state replay.
package journal

import (
	"context"
	"time"

	"github.com/advisoros/taskcore/pkg/events"
)

// Journal is a bounded, append-only history of committed events.
//
// Retention is bounded, so reads report whether the returned history is complete.
// An incomplete read means the caller must fall back to a snapshot.
type Journal interface {
	Append(ctx context.Context, evts ...events.Event) error

	// After returns the events of entityID with a version greater than version, in version
	// order. complete is false when events in that range may have been evicted.
	After(ctx context.Context, entityID string, version int64) (evts []events.Event, complete bool, err error)

	// Since returns the events of a workflow or organization recorded at or after since.
	Since(ctx context.Context, scope Scope, since time.Time) (evts []events.Event, complete bool, err error)

	Close() error
}

// Scope selects a workflow or an organization stream. WorkflowID wins when both are set.
type Scope struct {
	WorkflowID     string
	OrganizationID string
}

// Key returns the stream name of the scope, or "" for an empty scope.
func (s Scope) Key() string {
	switch {
	case s.WorkflowID != "":
		return "workflow:" + s.WorkflowID
	case s.OrganizationID != "":
		return "organization:" + s.OrganizationID
	default:
		return ""
	}
}

// Contiguous reports whether history that starts at firstRetained covers every version
// after lastSeen up to latest.
func Contiguous(lastSeen, firstRetained, latest int64) bool {
	if latest <= lastSeen {
		return true
	}

	return firstRetained <= lastSeen+1
}
