// Package store is the document store for client records: one root document
// per client plus two ordered sub-collections (plans, events). Backed by
// LevelDB; an in-memory implementation backs package tests.
//
// Key scheme — uses "|" as separator so slashes in ids stay inert:
//
//	c|<clientID>                      → Client JSON (profile + summary)
//	p|<clientID>|<startDate>|<planID> → Plan JSON    (scan order = start date)
//	e|<clientID>|<time>|<eventID>     → Event JSON   (scan order = event time)
//
// The time component is fixed-width UTC nanoseconds so lexicographic key
// order is chronological order.
package store

import (
	"errors"

	"github.com/mtredway/coachpilot/internal/types"
)

// ErrNotFound reports a missing client root document. Absent plans or events
// are empty results, not errors — only the client itself is load-bearing.
var ErrNotFound = errors.New("store: client not found")

// Store is the persistence surface the pipeline depends on. Implementations:
// LevelStore (production), MemStore (tests).
type Store interface {
	// GetClient returns the client root document or ErrNotFound.
	GetClient(clientID string) (types.Client, error)
	// PutClient inserts or replaces the client root document.
	PutClient(c types.Client) error

	// Plans returns all plans for the client ordered by start date.
	Plans(clientID string) ([]types.Plan, error)
	// PutPlan inserts or replaces one plan.
	PutPlan(clientID string, p types.Plan) error

	// Events returns up to limit events, newest first. limit <= 0 means all.
	Events(clientID string, limit int) ([]types.Event, error)
	// EventsByType returns all events of one type, newest first.
	EventsByType(clientID, eventType string) ([]types.Event, error)
	// InsertEvent appends one event, assigning an ID if absent, and returns
	// the event ID.
	InsertEvent(clientID string, ev types.Event) (string, error)
	// DeleteEvents removes the identified events in a single atomic batch.
	DeleteEvents(clientID string, ids []string) error

	Close() error
}
