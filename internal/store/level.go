package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mtredway/coachpilot/internal/types"
)

const (
	prefixClient = "c|"
	prefixPlan   = "p|"
	prefixEvent  = "e|"
)

// eventTimeLayout is fixed-width so key order equals chronological order.
const eventTimeLayout = "2006-01-02T15:04:05.000000000Z"

// LevelStore is the LevelDB-backed Store. LevelDB is single-writer: one
// process owns the database directory at a time.
type LevelStore struct {
	db *leveldb.DB
}

// Open opens (or creates) the LevelDB database at dbPath.
func Open(dbPath string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb at %s: %w", dbPath, err)
	}
	return &LevelStore{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// GetClient returns the client root document or ErrNotFound.
//
// Expectations:
//   - ErrNotFound for an unknown clientID
//   - Round-trips the document written by PutClient
func (s *LevelStore) GetClient(clientID string) (types.Client, error) {
	raw, err := s.db.Get([]byte(prefixClient+clientID), nil)
	if err == leveldb.ErrNotFound {
		return types.Client{}, ErrNotFound
	}
	if err != nil {
		return types.Client{}, fmt.Errorf("store: get client %s: %w", clientID, err)
	}
	var c types.Client
	if err := json.Unmarshal(raw, &c); err != nil {
		return types.Client{}, fmt.Errorf("store: decode client %s: %w", clientID, err)
	}
	return c, nil
}

// PutClient inserts or replaces the client root document.
func (s *LevelStore) PutClient(c types.Client) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: encode client %s: %w", c.ClientID, err)
	}
	return s.db.Put([]byte(prefixClient+c.ClientID), raw, nil)
}

// Plans returns all plans for the client ordered by start date. The key
// embeds the start date, so a forward prefix scan is already ordered.
func (s *LevelStore) Plans(clientID string) ([]types.Plan, error) {
	prefix := prefixPlan + clientID + "|"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var plans []types.Plan
	for iter.Next() {
		var p types.Plan
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("store: decode plan at %s: %w", iter.Key(), err)
		}
		plans = append(plans, p)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: scan plans for %s: %w", clientID, err)
	}
	return plans, nil
}

// PutPlan inserts or replaces one plan. A changed start date writes under a
// new key; the caller owns removing the stale one (plans are external data
// this pipeline only reads).
func (s *LevelStore) PutPlan(clientID string, p types.Plan) error {
	if p.PlanID == "" {
		p.PlanID = uuid.New().String()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode plan %s: %w", p.PlanID, err)
	}
	key := prefixPlan + clientID + "|" + p.StartDate + "|" + p.PlanID
	return s.db.Put([]byte(key), raw, nil)
}

// Events returns up to limit events newest first, walking the time-ordered
// keys backwards.
func (s *LevelStore) Events(clientID string, limit int) ([]types.Event, error) {
	return s.scanEvents(clientID, limit, "")
}

// EventsByType returns all events of one type, newest first.
func (s *LevelStore) EventsByType(clientID, eventType string) ([]types.Event, error) {
	return s.scanEvents(clientID, 0, eventType)
}

func (s *LevelStore) scanEvents(clientID string, limit int, eventType string) ([]types.Event, error) {
	prefix := prefixEvent + clientID + "|"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var events []types.Event
	for ok := iter.Last(); ok; ok = iter.Prev() {
		var ev types.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("store: decode event at %s: %w", iter.Key(), err)
		}
		if eventType != "" && ev.Type != eventType {
			continue
		}
		events = append(events, ev)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: scan events for %s: %w", clientID, err)
	}
	return events, nil
}

// InsertEvent appends one event. Events are immutable once written; only
// DeleteEvents (draft replacement) ever removes them.
//
// Expectations:
//   - Assigns a UUID when ev.ID is empty
//   - Defaults ev.Time to now when zero
//   - Returned ID matches the stored event's ID
func (s *LevelStore) InsertEvent(clientID string, ev types.Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("store: encode event %s: %w", ev.ID, err)
	}
	key := eventKey(clientID, ev)
	if err := s.db.Put([]byte(key), raw, nil); err != nil {
		return "", fmt.Errorf("store: put event %s: %w", ev.ID, err)
	}
	return ev.ID, nil
}

// DeleteEvents removes the identified events in one atomic WriteBatch.
// Unknown ids are ignored.
func (s *LevelStore) DeleteEvents(clientID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	prefix := prefixEvent + clientID + "|"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		key := string(iter.Key())
		// Event id is the final "|"-separated key component.
		if idx := strings.LastIndex(key, "|"); idx != -1 && want[key[idx+1:]] {
			batch.Delete(iter.Key())
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("store: scan events for delete: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: batch delete events: %w", err)
	}
	return nil
}

func eventKey(clientID string, ev types.Event) string {
	return prefixEvent + clientID + "|" + ev.Time.UTC().Format(eventTimeLayout) + "|" + ev.ID
}
