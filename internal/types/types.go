// Package types defines the shared domain model: the coaching plan schema
// (plans, goals, tactics, measurements and their histories), the append-only
// event log records, and the static client context (profile, summary).
package types

import (
	"strings"
	"time"
)

// Event type identifiers
const (
	EventMessage              = "message"
	EventPlanUpdateSuggestion = "plan_update_suggestion"
	EventDraftReplySuggestion = "draft_reply_suggestion"
)

// Summary relationship states
const (
	StateOnboarding = "Onboarding"
	StateEngaged    = "Engaged"
	StateAtRisk     = "At-Risk"
	StateRenewal    = "Renewal"
)

// Coaching styles supported by the draft-reply rulebook
const (
	StyleMotivational = "Motivational"
	StyleAnalytical   = "Analytical"
	StyleToughLove    = "Tough Love"
	StyleSupportive   = "Supportive"
)

// Plan is one coaching plan. Its validity interval is [StartDate, EndDate],
// both inclusive at date granularity.
type Plan struct {
	PlanID    string `json:"planId"`
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`   // YYYY-MM-DD
	Goals     []Goal `json:"goals"`
}

// Goal groups tactics and measurements under a natural-language title.
// The title is the key — there is no surrogate id.
type Goal struct {
	Title        string        `json:"title"`
	Tactics      []Tactic      `json:"tactics,omitempty"`
	Measurements []Measurement `json:"measurements,omitempty"`
}

// Tactic is a repeatable action with a completion history.
type Tactic struct {
	Title       string       `json:"title"`
	Frequency   string       `json:"frequency,omitempty"`
	Completions []Completion `json:"completions,omitempty"`
}

// Completion records one tactic execution.
type Completion struct {
	Timestamp   string `json:"timestamp"`
	SourceEvent string `json:"sourceEvent,omitempty"`
}

// Measurement is a tracked quantity with a recording history.
type Measurement struct {
	Title      string      `json:"title"`
	Unit       string      `json:"unit,omitempty"`
	Start      float64     `json:"start,omitempty"`
	Goal       float64     `json:"goal,omitempty"`
	Recordings []Recording `json:"recordings,omitempty"`
}

// Recording records one measurement observation.
type Recording struct {
	Date        string  `json:"date"`
	Value       float64 `json:"value"`
	SourceEvent string  `json:"sourceEvent,omitempty"`
}

// APICall describes a proposed plan mutation. It is never executed by this
// system — only recorded on a suggestion event for the coach to review.
type APICall struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Body   map[string]any `json:"body,omitempty"`
}

// Event is one record in a client's append-only event log.
type Event struct {
	ID               string    `json:"id,omitempty"`
	Type             string    `json:"type"`
	Content          string    `json:"content,omitempty"`
	Inbound          bool      `json:"inbound"`
	Time             time.Time `json:"time"`
	RelatedEventID   string    `json:"relatedEventId,omitempty"`
	ActivityID       string    `json:"activity_id,omitempty"`
	APICall          *APICall  `json:"api_call,omitempty"`
	LLMResponseValid *bool     `json:"llm_response_valid,omitempty"`
	LLMValidationErr string    `json:"llm_validation_error,omitempty"`
}

// Profile is static client context. Never mutated by the pipeline.
type Profile struct {
	Name          string `json:"name"`
	CoachingStyle string `json:"coaching_style,omitempty"`
	GoalText      string `json:"goal_text,omitempty"`
}

// Summary is the coach's coarse read of the relationship.
type Summary struct {
	State    string `json:"state,omitempty"` // Onboarding | Engaged | At-Risk | Renewal
	Synopsis string `json:"synopsis,omitempty"`
}

// Client is the root document for one client: profile + rolling summary.
type Client struct {
	ClientID string  `json:"clientId"`
	Profile  Profile `json:"profile"`
	Summary  Summary `json:"summary"`
}

// FindGoal returns the goal whose title matches case-insensitively.
//
// Expectations:
//   - Matches regardless of letter case ("lose weight" finds "Lose Weight")
//   - Returns false when no goal matches
func (p Plan) FindGoal(title string) (Goal, bool) {
	for _, g := range p.Goals {
		if strings.EqualFold(g.Title, title) {
			return g, true
		}
	}
	return Goal{}, false
}

// FindTactic returns the tactic whose title matches case-insensitively.
func (g Goal) FindTactic(title string) (Tactic, bool) {
	for _, t := range g.Tactics {
		if strings.EqualFold(t.Title, title) {
			return t, true
		}
	}
	return Tactic{}, false
}

// FindMeasurement returns the measurement whose title matches case-insensitively.
func (g Goal) FindMeasurement(title string) (Measurement, bool) {
	for _, m := range g.Measurements {
		if strings.EqualFold(m.Title, title) {
			return m, true
		}
	}
	return Measurement{}, false
}

// Slug converts a title to its path-segment form: lowercase, spaces as
// underscores. "Lose Weight" → "lose_weight".
func Slug(title string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

// Unslug reverses Slug's space transform. Case is not restored — callers
// compare case-insensitively against real titles.
func Unslug(segment string) string {
	return strings.ReplaceAll(segment, "_", " ")
}
