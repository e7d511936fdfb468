// Package prompt renders the grounded oracle instructions: the reconciliation
// request (message window + plan snapshot + path templates + worked examples)
// and the draft-reply request (profile + summary + recent events + tone
// rulebook).
package prompt

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mtredway/coachpilot/internal/clientctx"
	"github.com/mtredway/coachpilot/internal/plan"
	"github.com/mtredway/coachpilot/internal/types"
)

// Canonical path templates for the two supported mutation kinds. The oracle
// fills {goal}/{tactic}/{measurement}; {userId} and {planId} are substituted
// by the normalizer after the fact.
const (
	TemplateTacticCompletion = "/clients/{userId}/plans/{planId}/goals/{goal}/tactics/{tactic}/completions"
	TemplateMeasurementLog   = "/clients/{userId}/plans/{planId}/goals/{goal}/measurements/{measurement}/recordings"
)

// Reply word budget range. A run picks a target uniformly within it so
// replies vary naturally; the exact number is presentation, not correctness.
const (
	replyWordsMin = 15
	replyWordsMax = 35
)

const reconcileSystem = `You help fitness coaches track progress from client messages.
Given recent messages and the client's active plan, determine whether the most
recent inbound message implies a completed tactic or a new measurement value.

Rules:
- Only reference goals, tactics, and measurements that appear verbatim in the plan below.
- Path segments use lowercase with underscores for spaces: "Lose Weight" -> lose_weight.
- Tactic completion path template:   ` + TemplateTacticCompletion + `
- Measurement recording path template: ` + TemplateMeasurementLog + `
- If nothing in the message maps onto the plan, set actionRequired to false.

Respond with ONLY a JSON object, no markdown:
{
  "actionRequired": true|false,
  "description": "<one-sentence instruction or summary>",
  "api_path": "<filled path template, or empty when actionRequired is false>",
  "api_payload": { ... },
  "api_call": {"method": "POST", "path": "<same as api_path>", "body": { ... }}
}

Example 1 — message: "I just got home from my workout!"
Plan has goal "Lose Weight" with tactic "Do 4 workouts per week".
{
  "actionRequired": true,
  "description": "Log a completed workout against the Lose Weight goal.",
  "api_path": "/clients/{userId}/plans/{planId}/goals/lose_weight/tactics/do_4_workouts_per_week/completions",
  "api_payload": {"timestamp": "2024-03-20T10:00:00Z"},
  "api_call": {"method": "POST", "path": "/clients/{userId}/plans/{planId}/goals/lose_weight/tactics/do_4_workouts_per_week/completions", "body": {"timestamp": "2024-03-20T10:00:00Z"}}
}

Example 2 — message: "Weighed in at 81.4 this morning"
Plan has goal "Lose Weight" with measurement "Weight" (unit kg).
{
  "actionRequired": true,
  "description": "Record a weight of 81.4 kg.",
  "api_path": "/clients/{userId}/plans/{planId}/goals/lose_weight/measurements/weight/recordings",
  "api_payload": {"date": "2024-03-20", "value": 81.4},
  "api_call": {"method": "POST", "path": "/clients/{userId}/plans/{planId}/goals/lose_weight/measurements/weight/recordings", "body": {"date": "2024-03-20", "value": 81.4}}
}`

// BuildReconcile renders the reconciliation instruction pair for the oracle.
// The recent-message window goes in raw (newest first, as fetched); the plan
// snapshot omits histories to bound prompt size.
func BuildReconcile(recent []types.Event, p types.Plan) (system, user string) {
	msgs, _ := json.MarshalIndent(recent, "", "  ")
	user = fmt.Sprintf("MESSAGES (latest first):\n%s\n\nCLIENT PLAN:\n%s", msgs, plan.Snapshot(p))
	return reconcileSystem, user
}

const draftReplySystem = `You draft a short reply from a fitness coach to their client's latest message.
Write as the coach, first person, ready to send. No signature, no preamble, no markdown.
Target about %d words.

Relationship state — %s: %s
Coaching style — %s: %s`

// BuildDraftReply renders the draft-reply instruction pair. It embeds the
// profile, summary, the last three events (formatted "[timestamp] type:
// content"), and the plan's goal/tactic titles when a plan is active. The
// word budget is drawn uniformly from [15,35] per call.
//
// Expectations:
//   - System prompt names the summary state's directive and the style's tone directive
//   - Unknown state or style degrades to a generic directive, never an error
//   - User prompt contains at most the 3 newest events
//   - Plan titles block is omitted when hasPlan is false
func BuildDraftReply(b clientctx.Bundle, p types.Plan, hasPlan bool, r Rules) (system, user string) {
	state := b.Summary.State
	if state == "" {
		state = types.StateEngaged
	}
	stateRule, ok := r.States[state]
	if !ok {
		stateRule = "Respond naturally and helpfully to their latest message."
	}
	style := b.Profile.CoachingStyle
	if style == "" {
		style = types.StyleSupportive
	}
	styleRule, ok := r.Styles[style]
	if !ok {
		styleRule = "Write in a friendly, professional tone."
	}

	words := replyWordsMin + rand.Intn(replyWordsMax-replyWordsMin+1)
	system = fmt.Sprintf(draftReplySystem, words, state, stateRule, style, styleRule)

	var sb strings.Builder
	fmt.Fprintf(&sb, "CLIENT: %s\n", b.Profile.Name)
	if b.Profile.GoalText != "" {
		fmt.Fprintf(&sb, "STATED GOAL: %s\n", b.Profile.GoalText)
	}
	if b.Summary.Synopsis != "" {
		fmt.Fprintf(&sb, "RELATIONSHIP SYNOPSIS: %s\n", b.Summary.Synopsis)
	}
	if hasPlan {
		fmt.Fprintf(&sb, "\nCURRENT PLAN GOALS:\n%s", plan.Titles(p))
	}
	sb.WriteString("\nRECENT EVENTS (latest first):\n")
	sb.WriteString(FormatEventWindow(b.Recent, 3))
	return system, sb.String()
}

// FormatEventWindow renders up to n events as "[timestamp] type: content"
// lines, preserving input (newest-first) order.
func FormatEventWindow(events []types.Event, n int) string {
	if n > 0 && len(events) > n {
		events = events[:n]
	}
	var sb strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", ev.Time.UTC().Format(time.RFC3339), ev.Type, ev.Content)
	}
	return sb.String()
}
