// Package pipeline wires the reconciliation and draft-reply flow: aggregate
// client context, select the active plan, build grounded oracle requests,
// validate the oracle's proposal, and emit suggestion events. One inbound
// message triggers exactly one independent run; runs share no state beyond
// the store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mtredway/coachpilot/internal/clientctx"
	"github.com/mtredway/coachpilot/internal/llm"
	"github.com/mtredway/coachpilot/internal/plan"
	"github.com/mtredway/coachpilot/internal/prompt"
	"github.com/mtredway/coachpilot/internal/reconcile"
	"github.com/mtredway/coachpilot/internal/store"
	"github.com/mtredway/coachpilot/internal/suggest"
	"github.com/mtredway/coachpilot/internal/types"
)

// Oracle is the reasoning-oracle capability the pipeline depends on.
// *llm.Client satisfies it; tests substitute stubs.
type Oracle interface {
	Chat(ctx context.Context, system, user string) (string, error)
	ChatJSON(ctx context.Context, system, user string) (string, error)
	SubmitRun(ctx context.Context, instruction string) (llm.RunHandle, error)
	AwaitRun(ctx context.Context, h llm.RunHandle) (string, error)
}

// Pipeline is one configured instance of the reconciliation flow. Collaborators
// are injected; there is no package-level state.
type Pipeline struct {
	store   store.Store
	oracle  Oracle
	emitter *suggest.Emitter
	rules   prompt.Rules
	window  int
	async   bool // use submit-then-poll for the reconciliation call
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the active-plan evaluation clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRules replaces the draft-reply rulebook.
func WithRules(r prompt.Rules) Option {
	return func(p *Pipeline) { p.rules = r }
}

// WithEventWindow sets the recent-event window size.
func WithEventWindow(n int) Option {
	return func(p *Pipeline) { p.window = n }
}

// WithAsyncOracle switches the reconciliation call to the asynchronous
// submit-then-poll oracle mode.
func WithAsyncOracle(enabled bool) Option {
	return func(p *Pipeline) { p.async = enabled }
}

// New creates a Pipeline over the given store and oracle.
func New(st store.Store, oracle Oracle, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   st,
		oracle:  oracle,
		emitter: suggest.NewEmitter(st),
		rules:   prompt.DefaultRules(),
		window:  clientctx.DefaultEventWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleEvent processes one stored event. It no-ops unless the event is an
// inbound client message. A fatal error (missing client, oracle failure or
// timeout, unparseable oracle output) aborts the run with nothing emitted for
// the failing leg; validation failures are recorded on the suggestion instead
// of erroring. The draft-reply leg runs whether or not reconciliation
// produced (or skipped) a suggestion.
func (p *Pipeline) HandleEvent(ctx context.Context, clientID, eventID string, ev types.Event) error {
	if ev.Type != types.EventMessage || !ev.Inbound {
		slog.Debug("[PIPELINE] not an inbound client message, skipping",
			"client_id", clientID, "event_id", eventID, "type", ev.Type)
		return nil
	}
	if ev.ID == "" {
		ev.ID = eventID
	}

	bundle, err := clientctx.Aggregate(p.store, clientID, p.window)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	active, hasPlan := plan.SelectActive(bundle.Plans, p.now())
	if hasPlan {
		if err := p.reconcile(ctx, clientID, ev, bundle, active); err != nil {
			return fmt.Errorf("pipeline: reconcile: %w", err)
		}
	} else {
		slog.Info("[PIPELINE] no active plan, skipping reconciliation", "client_id", clientID)
	}

	if err := p.draftReply(ctx, clientID, ev, bundle, active, hasPlan); err != nil {
		return fmt.Errorf("pipeline: draft reply: %w", err)
	}
	return nil
}

// reconcile runs the plan-suggestion leg against the active plan.
func (p *Pipeline) reconcile(ctx context.Context, clientID string, trigger types.Event, bundle clientctx.Bundle, active types.Plan) error {
	system, user := prompt.BuildReconcile(bundle.Recent, active)

	var raw string
	var err error
	if p.async {
		var h llm.RunHandle
		h, err = p.oracle.SubmitRun(ctx, system+"\n\n"+user)
		if err == nil {
			raw, err = p.oracle.AwaitRun(ctx, h)
		}
	} else {
		raw, err = p.oracle.ChatJSON(ctx, system, user)
	}
	if err != nil {
		return err
	}

	analysis, err := reconcile.Parse(raw)
	if err != nil {
		return err
	}
	if !analysis.ActionRequired {
		slog.Info("[PIPELINE] no relevant action identified", "client_id", clientID)
		return nil
	}

	reconcile.Normalize(&analysis, clientID, active.PlanID)
	outcome := reconcile.Validate(analysis, clientID, active.PlanID, active)
	_, err = p.emitter.EmitPlanSuggestion(clientID, trigger, outcome)
	return err
}

// draftReply runs the reply leg. A blank oracle reply leaves any existing
// draft in place rather than superseding it with nothing.
func (p *Pipeline) draftReply(ctx context.Context, clientID string, trigger types.Event, bundle clientctx.Bundle, active types.Plan, hasPlan bool) error {
	system, user := prompt.BuildDraftReply(bundle, active, hasPlan, p.rules)
	text, err := p.oracle.Chat(ctx, system, user)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Warn("[PIPELINE] oracle returned empty reply, keeping existing draft", "client_id", clientID)
		return nil
	}
	_, err = p.emitter.ReplaceDraft(clientID, trigger, text)
	return err
}
