// Package clientctx aggregates a client's live context ahead of a pipeline
// run: profile, rolling summary, plans, and a bounded recent-event window.
package clientctx

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mtredway/coachpilot/internal/store"
	"github.com/mtredway/coachpilot/internal/types"
)

// DefaultEventWindow is the number of recent events fetched when the caller
// passes n <= 0.
const DefaultEventWindow = 5

// Bundle is everything one pipeline run reads about a client.
type Bundle struct {
	ClientID string
	Profile  types.Profile
	Summary  types.Summary
	Plans    []types.Plan  // ordered by start date
	Recent   []types.Event // newest first, bounded window
}

// Aggregate fetches the client's context. The reads are independent, so all
// of them run concurrently and the call blocks until the slowest completes.
// The client root document (profile + summary) is load-bearing: a missing
// client is store.ErrNotFound and fatal. Absent plans or events degrade to
// empty slices — callers must tolerate missing sub-objects.
//
// Expectations:
//   - Returns store.ErrNotFound when the client root document is missing
//   - Empty plans/events degrade to empty slices, not errors
//   - Recent holds at most n events (DefaultEventWindow when n <= 0), newest first
func Aggregate(st store.Store, clientID string, n int) (Bundle, error) {
	if n <= 0 {
		n = DefaultEventWindow
	}

	b := Bundle{ClientID: clientID}

	var g errgroup.Group
	g.Go(func() error {
		client, err := st.GetClient(clientID)
		if err != nil {
			return fmt.Errorf("clientctx: %w", err)
		}
		b.Profile = client.Profile
		b.Summary = client.Summary
		return nil
	})
	g.Go(func() error {
		plans, err := st.Plans(clientID)
		if err != nil {
			return fmt.Errorf("clientctx: plans: %w", err)
		}
		b.Plans = plans
		return nil
	})
	g.Go(func() error {
		events, err := st.Events(clientID, n)
		if err != nil {
			return fmt.Errorf("clientctx: events: %w", err)
		}
		b.Recent = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return Bundle{}, err
	}

	if len(b.Plans) == 0 {
		slog.Debug("[CONTEXT] client has no plans", "client_id", clientID)
	}
	return b, nil
}
