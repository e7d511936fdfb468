// Package suggest writes the pipeline's outcomes back to the event log: plan
// update suggestions (append-only) and draft reply suggestions (single active
// draft per client).
package suggest

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtredway/coachpilot/internal/reconcile"
	"github.com/mtredway/coachpilot/internal/store"
	"github.com/mtredway/coachpilot/internal/types"
)

// suggestionOffset orders a suggestion just after the message that caused it.
const suggestionOffset = 10 * time.Millisecond

// Emitter writes suggestion events. Draft replacement is serialized per
// client so overlapping runs still converge to exactly one draft.
type Emitter struct {
	store store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex // clientID -> draft-replacement lock
}

// NewEmitter creates an Emitter over the given store.
func NewEmitter(st store.Store) *Emitter {
	return &Emitter{store: st, locks: make(map[string]*sync.Mutex)}
}

// clientLock returns the draft-replacement lock for clientID, creating it on
// first use.
func (e *Emitter) clientLock(clientID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[clientID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[clientID] = l
	}
	return l
}

// EmitPlanSuggestion appends one plan_update_suggestion event carrying the
// validation outcome. Timestamped 10ms after the trigger so the suggestion
// sorts immediately after the message that caused it.
//
// Expectations:
//   - Event type is plan_update_suggestion, inbound false
//   - Time is trigger time + 10ms
//   - RelatedEventID is the trigger event id; ActivityID is a fresh UUID
//   - llm_response_valid and llm_validation_error mirror the outcome
//   - The (possibly invalid) api_call is carried as-is
func (e *Emitter) EmitPlanSuggestion(clientID string, trigger types.Event, o reconcile.Outcome) (string, error) {
	valid := o.Valid
	ev := types.Event{
		Type:             types.EventPlanUpdateSuggestion,
		Content:          o.Description,
		Inbound:          false,
		Time:             trigger.Time.Add(suggestionOffset),
		RelatedEventID:   trigger.ID,
		ActivityID:       uuid.New().String(),
		APICall:          o.Call,
		LLMResponseValid: &valid,
		LLMValidationErr: o.Reason,
	}
	id, err := e.store.InsertEvent(clientID, ev)
	if err != nil {
		return "", fmt.Errorf("suggest: insert plan suggestion: %w", err)
	}
	slog.Info("[EMIT] plan update suggestion", "client_id", clientID,
		"event_id", id, "valid", valid, "reason", o.Reason)
	return id, nil
}

// ReplaceDraft enforces the single-active-draft invariant: under the
// per-client lock it deletes every existing draft_reply_suggestion in one
// batch, then inserts the new draft. The lock is in-process only — two
// separate processes over the same store can still race; deployments that
// fan out across processes need an external serialization point.
//
// Expectations:
//   - Exactly one draft exists after any number of sequential calls
//   - Concurrent calls within one process serialize per client
//   - The new draft carries RelatedEventID and a fresh ActivityID
func (e *Emitter) ReplaceDraft(clientID string, trigger types.Event, text string) (string, error) {
	l := e.clientLock(clientID)
	l.Lock()
	defer l.Unlock()

	existing, err := e.store.EventsByType(clientID, types.EventDraftReplySuggestion)
	if err != nil {
		return "", fmt.Errorf("suggest: list drafts: %w", err)
	}
	if len(existing) > 0 {
		ids := make([]string, 0, len(existing))
		for _, ev := range existing {
			ids = append(ids, ev.ID)
		}
		if err := e.store.DeleteEvents(clientID, ids); err != nil {
			return "", fmt.Errorf("suggest: delete stale drafts: %w", err)
		}
		slog.Debug("[EMIT] superseded drafts", "client_id", clientID, "count", len(ids))
	}

	ev := types.Event{
		Type:           types.EventDraftReplySuggestion,
		Content:        text,
		Inbound:        false,
		Time:           trigger.Time.Add(suggestionOffset),
		RelatedEventID: trigger.ID,
		ActivityID:     uuid.New().String(),
	}
	id, err := e.store.InsertEvent(clientID, ev)
	if err != nil {
		return "", fmt.Errorf("suggest: insert draft: %w", err)
	}
	slog.Info("[EMIT] draft reply suggestion", "client_id", clientID, "event_id", id)
	return id, nil
}
