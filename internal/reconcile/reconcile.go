// Package reconcile converts raw oracle output into a trustworthy mutation
// proposal: parse (tolerant of fence noise), normalize identifiers, then
// validate structurally and referentially against the active plan. Validation
// failure is data, not an error — an invalid proposal is still recorded for
// the coach to review and discard.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mtredway/coachpilot/internal/llm"
	"github.com/mtredway/coachpilot/internal/types"
)

// ErrParse reports oracle output that is not a JSON object even after fence
// stripping. Parse failure is fatal for the invocation: there is nothing
// reviewable to record.
var ErrParse = errors.New("reconcile: oracle output is not a JSON object")

// Analysis is the parsed oracle output, after the schema fallback but before
// validation. Payload stays raw so shape checking happens in Validate.
type Analysis struct {
	ActionRequired bool
	Description    string
	Method         string
	Path           string
	Payload        json.RawMessage
}

// rawAnalysis mirrors both generations of the oracle output schema: flat
// api_path/api_payload fields and the older nested api_call object.
type rawAnalysis struct {
	ActionRequired bool            `json:"actionRequired"`
	Description    string          `json:"description"`
	APIPath        string          `json:"api_path"`
	APIPayload     json.RawMessage `json:"api_payload"`
	APICall        *struct {
		Method string          `json:"method"`
		Path   string          `json:"path"`
		Body   json.RawMessage `json:"body"`
	} `json:"api_call"`
}

// Parse strips fence markup and decodes the oracle's JSON object. The output
// schema evolved across oracle prompt versions; api_path/api_payload are
// preferred, with api_call.path/api_call.body as the fallback.
//
// Expectations:
//   - Tolerates a ```json fence around the object
//   - Wraps ErrParse for non-JSON and for JSON that is not an object
//   - Prefers api_path/api_payload over nested api_call fields
//   - Falls back to api_call.path/api_call.body when the flat fields are absent
//   - Defaults the method to POST
func Parse(raw string) (Analysis, error) {
	stripped := llm.StripFences(raw)
	var ra rawAnalysis
	if err := json.Unmarshal([]byte(stripped), &ra); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	a := Analysis{
		ActionRequired: ra.ActionRequired,
		Description:    ra.Description,
		Method:         "POST",
		Path:           ra.APIPath,
		Payload:        ra.APIPayload,
	}
	if ra.APICall != nil {
		if ra.APICall.Method != "" {
			a.Method = ra.APICall.Method
		}
		if a.Path == "" {
			a.Path = ra.APICall.Path
		}
		if len(a.Payload) == 0 || string(a.Payload) == "null" {
			a.Payload = ra.APICall.Body
		}
	}
	return a, nil
}

// Normalize substitutes the {userId} and {planId} placeholder tokens with the
// actual identifiers. The client id is URL-escaped; the plan id is trusted
// (it is store-assigned).
//
// Expectations:
//   - {userId} becomes the URL-escaped client id
//   - {planId} becomes the plan id
//   - A path with no placeholders is unchanged
func Normalize(a *Analysis, clientID, planID string) {
	a.Path = strings.ReplaceAll(a.Path, "{userId}", url.PathEscape(clientID))
	a.Path = strings.ReplaceAll(a.Path, "{planId}", planID)
}

// Kind of mutation a proposal targets.
const (
	KindTacticCompletion = "tactic-completion"
	KindMeasurementLog   = "measurement-log"
)

// Target is the structured mutation target parsed once from the wire path,
// so validation reasons and downstream consumers never re-parse strings.
type Target struct {
	Kind        string
	Goal        string // unslugged path segment, original casing lost
	Tactic      string // set for tactic-completion
	Measurement string // set for measurement-log
}

// ParseTarget extracts the goal and tactic-or-measurement segments from a
// normalized path. Returns false when the path encodes no goal segment (a
// path without one skips semantic validation entirely).
//
// Expectations:
//   - .../goals/g/tactics/t/completions yields a tactic-completion target
//   - .../goals/g/measurements/m/recordings yields a measurement-log target
//   - Underscores in segments become spaces
//   - Paths without a goals segment return false
func ParseTarget(path string) (Target, bool) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	gi := -1
	for i, s := range segs {
		if s == "goals" {
			gi = i
			break
		}
	}
	if gi == -1 || gi+1 >= len(segs) {
		return Target{}, false
	}
	t := Target{Goal: types.Unslug(segs[gi+1])}
	if gi+3 < len(segs) {
		switch segs[gi+2] {
		case "tactics":
			t.Kind = KindTacticCompletion
			t.Tactic = types.Unslug(segs[gi+3])
		case "measurements":
			t.Kind = KindMeasurementLog
			t.Measurement = types.Unslug(segs[gi+3])
		}
	}
	return t, true
}

// Outcome is the typed result of validating one proposal. Valid=false never
// aborts the pipeline; the reason travels on the emitted record.
type Outcome struct {
	ActionRequired bool
	Valid          bool
	Reason         string
	Description    string
	Call           *types.APICall
	Target         *Target
}

// Validate cross-checks a parsed, normalized analysis against the active
// plan. Structural checks first (path present and anchored to this client and
// plan; payload a JSON object), then referential checks on the goal and
// tactic/measurement segments. The first failing check wins; the proposal is
// still materialized into Outcome.Call either way so it can be recorded.
//
// Expectations:
//   - Missing path invalidates with a reason
//   - Path lacking the client id or plan id invalidates
//   - Payload absent, null, scalar, or array invalidates
//   - Goal segment not in the plan invalidates, naming the missing title
//   - Tactic/measurement segment not under the matched goal invalidates, naming it
//   - Title matching is case-insensitive with underscores read as spaces
//   - A fully matching proposal yields Valid=true with an empty reason
func Validate(a Analysis, clientID, planID string, p types.Plan) Outcome {
	o := Outcome{
		ActionRequired: a.ActionRequired,
		Description:    a.Description,
	}
	if !a.ActionRequired {
		return o
	}

	// Materialize the call regardless of validity — invalid proposals are
	// persisted for review, not dropped.
	var body map[string]any
	bodyIsObject := len(a.Payload) > 0 && json.Unmarshal(a.Payload, &body) == nil && body != nil
	if a.Path != "" || bodyIsObject {
		o.Call = &types.APICall{Method: a.Method, Path: a.Path, Body: body}
	}

	switch {
	case a.Path == "":
		o.Reason = "api path is missing"
		return o
	case !strings.Contains(a.Path, url.PathEscape(clientID)):
		o.Reason = fmt.Sprintf("api path does not reference client %s", clientID)
		return o
	case !strings.Contains(a.Path, planID):
		o.Reason = fmt.Sprintf("api path does not reference plan %s", planID)
		return o
	case !bodyIsObject:
		o.Reason = "api payload is missing or not an object"
		return o
	}

	target, ok := ParseTarget(a.Path)
	if !ok {
		// No goal segment to check referentially; structure already passed.
		o.Valid = true
		return o
	}
	o.Target = &target

	goal, found := p.FindGoal(target.Goal)
	if !found {
		o.Reason = fmt.Sprintf("goal %q not found in plan", target.Goal)
		return o
	}
	switch target.Kind {
	case KindTacticCompletion:
		if _, found := goal.FindTactic(target.Tactic); !found {
			o.Reason = fmt.Sprintf("tactic %q not found under goal %q", target.Tactic, goal.Title)
			return o
		}
	case KindMeasurementLog:
		if _, found := goal.FindMeasurement(target.Measurement); !found {
			o.Reason = fmt.Sprintf("measurement %q not found under goal %q", target.Measurement, goal.Title)
			return o
		}
	}

	o.Valid = true
	return o
}
