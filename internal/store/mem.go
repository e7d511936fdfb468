package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtredway/coachpilot/internal/types"
)

// MemStore is a map-backed Store for tests. Semantics match LevelStore:
// plans ordered by start date, events newest first, atomic-enough deletes.
type MemStore struct {
	mu      sync.Mutex
	clients map[string]types.Client
	plans   map[string][]types.Plan
	events  map[string][]types.Event
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		clients: make(map[string]types.Client),
		plans:   make(map[string][]types.Plan),
		events:  make(map[string][]types.Event),
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) GetClient(clientID string) (types.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return types.Client{}, ErrNotFound
	}
	return c, nil
}

func (s *MemStore) PutClient(c types.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ClientID] = c
	return nil
}

func (s *MemStore) Plans(clientID string) ([]types.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plans := append([]types.Plan(nil), s.plans[clientID]...)
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].StartDate < plans[j].StartDate
	})
	return plans, nil
}

func (s *MemStore) PutPlan(clientID string, p types.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PlanID == "" {
		p.PlanID = uuid.New().String()
	}
	for i, existing := range s.plans[clientID] {
		if existing.PlanID == p.PlanID {
			s.plans[clientID][i] = p
			return nil
		}
	}
	s.plans[clientID] = append(s.plans[clientID], p)
	return nil
}

func (s *MemStore) Events(clientID string, limit int) ([]types.Event, error) {
	return s.scan(clientID, limit, "")
}

func (s *MemStore) EventsByType(clientID, eventType string) ([]types.Event, error) {
	return s.scan(clientID, 0, eventType)
}

func (s *MemStore) scan(clientID string, limit int, eventType string) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append([]types.Event(nil), s.events[clientID]...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.After(events[j].Time)
	})
	if eventType != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Type == eventType {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *MemStore) InsertEvent(clientID string, ev types.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	s.events[clientID] = append(s.events[clientID], ev)
	return ev.ID, nil
}

func (s *MemStore) DeleteEvents(clientID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	kept := s.events[clientID][:0]
	for _, ev := range s.events[clientID] {
		if !want[ev.ID] {
			kept = append(kept, ev)
		}
	}
	s.events[clientID] = kept
	return nil
}
