// Package plan selects the authoritative active plan and renders the compact
// plan snapshot embedded in oracle instructions.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/mtredway/coachpilot/internal/types"
)

const dateLayout = "2006-01-02"

// SelectActive returns the first plan, in input order, whose validity
// interval contains now (inclusive at date granularity), and false when no
// plan qualifies.
//
// Among overlapping intervals the first match wins — plans are meant to be
// mutually exclusive by date, and callers receive them ordered by start date,
// so overlap resolves to the earliest-starting plan. Preserved as-is for
// behavioral compatibility.
//
// Expectations:
//   - Returns a plan only when start_date <= now <= end_date
//   - Start and end dates are inclusive
//   - Given multiple qualifying plans, returns the first in input order
//   - Plans with malformed dates never qualify
//   - Returns false for an empty input
func SelectActive(plans []types.Plan, now time.Time) (types.Plan, bool) {
	day := now.UTC().Format(dateLayout)
	for _, p := range plans {
		if p.StartDate == "" || p.EndDate == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, p.StartDate); err != nil {
			continue
		}
		if _, err := time.Parse(dateLayout, p.EndDate); err != nil {
			continue
		}
		// YYYY-MM-DD compares correctly as a string
		if p.StartDate <= day && day <= p.EndDate {
			return p, true
		}
	}
	return types.Plan{}, false
}

// Snapshot renders the plan's goals, tactics, and measurements as the compact
// block embedded in oracle instructions. Completion and recording histories
// are omitted to bound prompt size.
//
// Expectations:
//   - Contains every goal, tactic, and measurement title
//   - Contains tactic frequencies and measurement units/start/goal values
//   - Contains no completion or recording history entries
func Snapshot(p types.Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan %s (%s to %s)\n", p.PlanID, p.StartDate, p.EndDate)
	for _, g := range p.Goals {
		fmt.Fprintf(&sb, "Goal: %s\n", g.Title)
		for _, t := range g.Tactics {
			if t.Frequency != "" {
				fmt.Fprintf(&sb, "  Tactic: %s (frequency: %s)\n", t.Title, t.Frequency)
			} else {
				fmt.Fprintf(&sb, "  Tactic: %s\n", t.Title)
			}
		}
		for _, m := range g.Measurements {
			fmt.Fprintf(&sb, "  Measurement: %s (unit: %s, start: %g, goal: %g)\n",
				m.Title, m.Unit, m.Start, m.Goal)
		}
	}
	return sb.String()
}

// Titles returns the plan's goal and tactic titles as one line per goal, for
// the draft-reply instruction.
func Titles(p types.Plan) string {
	var sb strings.Builder
	for _, g := range p.Goals {
		var tactics []string
		for _, t := range g.Tactics {
			tactics = append(tactics, t.Title)
		}
		if len(tactics) > 0 {
			fmt.Fprintf(&sb, "- %s (tactics: %s)\n", g.Title, strings.Join(tactics, "; "))
		} else {
			fmt.Fprintf(&sb, "- %s\n", g.Title)
		}
	}
	return sb.String()
}
