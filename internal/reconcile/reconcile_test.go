package reconcile

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mtredway/coachpilot/internal/types"
)

var activePlan = types.Plan{
	PlanID: "plan-123",
	Goals: []types.Goal{
		{
			Title:   "Lose Weight",
			Tactics: []types.Tactic{{Title: "Do 4 workouts per week"}},
			Measurements: []types.Measurement{
				{Title: "Weight", Unit: "kg"},
			},
		},
	},
}

// --- Parse ---

func TestParse_PlainObject(t *testing.T) {
	// Decodes a bare JSON object
	a, err := Parse(`{"actionRequired": true, "description": "log it", "api_path": "/x", "api_payload": {"k": 1}}`)
	if err != nil {
		t.Fatal(err)
	}
	if !a.ActionRequired || a.Description != "log it" || a.Path != "/x" {
		t.Errorf("unexpected analysis: %+v", a)
	}
}

func TestParse_ToleratesFences(t *testing.T) {
	// Strips a ```json fence before decoding
	a, err := Parse("```json\n{\"actionRequired\": false}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if a.ActionRequired {
		t.Error("expected actionRequired false")
	}
}

func TestParse_NonJSONIsErrParse(t *testing.T) {
	// Wraps ErrParse for non-JSON output
	_, err := Parse("I could not determine anything useful.")
	if !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestParse_PrefersFlatFields(t *testing.T) {
	// api_path/api_payload win over nested api_call fields
	a, err := Parse(`{
		"actionRequired": true,
		"api_path": "/flat",
		"api_payload": {"from": "flat"},
		"api_call": {"method": "PUT", "path": "/nested", "body": {"from": "nested"}}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if a.Path != "/flat" {
		t.Errorf("expected flat path, got %q", a.Path)
	}
	var body map[string]any
	_ = json.Unmarshal(a.Payload, &body)
	if body["from"] != "flat" {
		t.Errorf("expected flat payload, got %v", body)
	}
	if a.Method != "PUT" {
		t.Errorf("expected method from api_call, got %q", a.Method)
	}
}

func TestParse_FallsBackToAPICall(t *testing.T) {
	// api_call.path/api_call.body fill in when the flat fields are absent
	a, err := Parse(`{
		"actionRequired": true,
		"api_call": {"method": "POST", "path": "/nested", "body": {"k": 1}}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if a.Path != "/nested" {
		t.Errorf("expected nested path, got %q", a.Path)
	}
	var body map[string]any
	_ = json.Unmarshal(a.Payload, &body)
	if body["k"] != float64(1) {
		t.Errorf("expected nested body, got %v", body)
	}
}

func TestParse_DefaultsMethodToPost(t *testing.T) {
	// The method defaults to POST when no api_call is present
	a, err := Parse(`{"actionRequired": true, "api_path": "/x", "api_payload": {}}`)
	if err != nil {
		t.Fatal(err)
	}
	if a.Method != "POST" {
		t.Errorf("expected POST, got %q", a.Method)
	}
}

// --- Normalize ---

func TestNormalize_SubstitutesPlaceholdersOnce(t *testing.T) {
	// After substitution the path contains each literal id exactly once
	a := Analysis{Path: "/clients/{userId}/plans/{planId}/goals/lose_weight/tactics/do_4_workouts_per_week/completions"}
	Normalize(&a, "client123", "plan-123")
	if strings.Count(a.Path, "client123") != 1 {
		t.Errorf("expected exactly one client id, got %q", a.Path)
	}
	if strings.Count(a.Path, "plan-123") != 1 {
		t.Errorf("expected exactly one plan id, got %q", a.Path)
	}
	if strings.Contains(a.Path, "{") {
		t.Errorf("placeholder survived substitution: %q", a.Path)
	}
}

func TestNormalize_EscapesClientID(t *testing.T) {
	// The client id is URL-escaped into the path
	a := Analysis{Path: "/clients/{userId}/plans/{planId}"}
	Normalize(&a, "client/123", "plan-123")
	if !strings.Contains(a.Path, "client%2F123") {
		t.Errorf("expected escaped client id, got %q", a.Path)
	}
}

func TestNormalize_NoPlaceholdersUnchanged(t *testing.T) {
	// A path with no placeholders is unchanged
	a := Analysis{Path: "/clients/client123/plans/plan-123"}
	Normalize(&a, "client123", "plan-123")
	if a.Path != "/clients/client123/plans/plan-123" {
		t.Errorf("path changed unexpectedly: %q", a.Path)
	}
}

// --- ParseTarget ---

func TestParseTarget_TacticCompletion(t *testing.T) {
	// .../goals/g/tactics/t/completions yields a tactic-completion target
	target, ok := ParseTarget("/clients/client123/plans/plan-123/goals/lose_weight/tactics/do_4_workouts_per_week/completions")
	if !ok {
		t.Fatal("expected a target")
	}
	if target.Kind != KindTacticCompletion || target.Goal != "lose weight" || target.Tactic != "do 4 workouts per week" {
		t.Errorf("unexpected target: %+v", target)
	}
}

func TestParseTarget_MeasurementLog(t *testing.T) {
	// .../goals/g/measurements/m/recordings yields a measurement-log target
	target, ok := ParseTarget("/clients/client123/plans/plan-123/goals/lose_weight/measurements/weight/recordings")
	if !ok {
		t.Fatal("expected a target")
	}
	if target.Kind != KindMeasurementLog || target.Measurement != "weight" {
		t.Errorf("unexpected target: %+v", target)
	}
}

func TestParseTarget_NoGoalSegment(t *testing.T) {
	// Paths without a goals segment return false
	if _, ok := ParseTarget("/clients/client123/plans/plan-123"); ok {
		t.Error("expected no target for a path without goals")
	}
}

// --- Validate ---

func validAnalysis() Analysis {
	return Analysis{
		ActionRequired: true,
		Description:    "Log a completed workout.",
		Method:         "POST",
		Path:           "/clients/client123/plans/plan-123/goals/lose_weight/tactics/do_4_workouts_per_week/completions",
		Payload:        json.RawMessage(`{"timestamp": "2026-02-01T10:00:00Z"}`),
	}
}

func TestValidate_NoActionShortCircuits(t *testing.T) {
	// actionRequired=false produces no call and no validation reason
	o := Validate(Analysis{ActionRequired: false}, "client123", "plan-123", activePlan)
	if o.ActionRequired || o.Call != nil || o.Reason != "" {
		t.Errorf("expected empty outcome, got %+v", o)
	}
}

func TestValidate_FullyValidProposal(t *testing.T) {
	// The workout scenario: matching goal and tactic validate cleanly
	o := Validate(validAnalysis(), "client123", "plan-123", activePlan)
	if !o.Valid {
		t.Fatalf("expected valid, got reason %q", o.Reason)
	}
	if o.Call == nil || !strings.Contains(o.Call.Path, "client123") || !strings.Contains(o.Call.Path, "plan-123") {
		t.Errorf("call path missing ids: %+v", o.Call)
	}
	if o.Target == nil || o.Target.Kind != KindTacticCompletion {
		t.Errorf("expected tactic-completion target, got %+v", o.Target)
	}
}

func TestValidate_MissingPath(t *testing.T) {
	// A missing path invalidates with a reason but keeps the outcome emittable
	a := validAnalysis()
	a.Path = ""
	o := Validate(a, "client123", "plan-123", activePlan)
	if o.Valid || !strings.Contains(o.Reason, "path") {
		t.Errorf("expected path reason, got %+v", o)
	}
}

func TestValidate_PathMissingClientID(t *testing.T) {
	// The path must reference the triggering client
	a := validAnalysis()
	a.Path = "/clients/someone-else/plans/plan-123/goals/lose_weight/tactics/do_4_workouts_per_week/completions"
	o := Validate(a, "client123", "plan-123", activePlan)
	if o.Valid || !strings.Contains(o.Reason, "client123") {
		t.Errorf("expected client mismatch reason, got %+v", o)
	}
}

func TestValidate_PathMissingPlanID(t *testing.T) {
	// The path must reference the active plan
	a := validAnalysis()
	a.Path = "/clients/client123/plans/other-plan/goals/lose_weight/tactics/do_4_workouts_per_week/completions"
	o := Validate(a, "client123", "plan-123", activePlan)
	if o.Valid || !strings.Contains(o.Reason, "plan-123") {
		t.Errorf("expected plan mismatch reason, got %+v", o)
	}
}

func TestValidate_PayloadMustBeObject(t *testing.T) {
	// Absent, null, scalar, and array payloads all invalidate
	for _, payload := range []string{"", "null", `"a string"`, "42", `[1,2]`} {
		a := validAnalysis()
		a.Payload = json.RawMessage(payload)
		o := Validate(a, "client123", "plan-123", activePlan)
		if o.Valid {
			t.Errorf("payload %q should invalidate", payload)
		}
		if !strings.Contains(o.Reason, "payload") {
			t.Errorf("payload %q: expected payload reason, got %q", payload, o.Reason)
		}
	}
}

func TestValidate_HallucinatedGoal(t *testing.T) {
	// A goal absent from the plan invalidates, naming the missing title
	a := validAnalysis()
	a.Path = "/clients/client123/plans/plan-123/goals/build_strength/tactics/lift/completions"
	o := Validate(a, "client123", "plan-123", activePlan)
	if o.Valid {
		t.Fatal("expected invalid outcome")
	}
	if !strings.Contains(o.Reason, "build strength") {
		t.Errorf("reason should name the missing goal, got %q", o.Reason)
	}
	if o.Call == nil {
		t.Error("invalid proposal should still carry its call for review")
	}
}

func TestValidate_HallucinatedTactic(t *testing.T) {
	// A tactic absent under the matched goal invalidates, naming it
	a := validAnalysis()
	a.Path = "/clients/client123/plans/plan-123/goals/lose_weight/tactics/run_a_marathon/completions"
	o := Validate(a, "client123", "plan-123", activePlan)
	if o.Valid || !strings.Contains(o.Reason, "run a marathon") {
		t.Errorf("expected tactic reason, got %+v", o)
	}
}

func TestValidate_HallucinatedMeasurement(t *testing.T) {
	// A measurement absent under the matched goal invalidates, naming it
	a := validAnalysis()
	a.Path = "/clients/client123/plans/plan-123/goals/lose_weight/measurements/body_fat/recordings"
	o := Validate(a, "client123", "plan-123", activePlan)
	if o.Valid || !strings.Contains(o.Reason, "body fat") {
		t.Errorf("expected measurement reason, got %+v", o)
	}
}

func TestValidate_CaseInsensitiveTitleMatch(t *testing.T) {
	// "Lose Weight" in the plan matches the path segment lose_weight
	a := validAnalysis()
	a.Path = "/clients/client123/plans/plan-123/goals/LOSE_WEIGHT/measurements/Weight/recordings"
	o := Validate(a, "client123", "plan-123", activePlan)
	if !o.Valid {
		t.Errorf("expected case-insensitive match, got reason %q", o.Reason)
	}
}

func TestValidate_NoGoalSegmentPassesStructuralOnly(t *testing.T) {
	// A structurally sound path without a goals segment skips referential checks
	a := validAnalysis()
	a.Path = "/clients/client123/plans/plan-123/notes"
	o := Validate(a, "client123", "plan-123", activePlan)
	if !o.Valid {
		t.Errorf("expected valid, got reason %q", o.Reason)
	}
	if o.Target != nil {
		t.Errorf("expected no target, got %+v", o.Target)
	}
}
