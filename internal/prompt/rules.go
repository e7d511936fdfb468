package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the draft-reply behavior table: one directive per summary state
// and one tone directive per coaching style. Ships with embedded defaults;
// operators can override with a YAML file.
type Rules struct {
	States map[string]string `yaml:"states"`
	Styles map[string]string `yaml:"styles"`
}

// defaultRulesYAML is the built-in rulebook. Keys match the canonical summary
// states and coaching styles in types.
const defaultRulesYAML = `
states:
  Onboarding: "Welcome them warmly. Reinforce that starting is the hardest part and point at the very next small step in their plan."
  Engaged: "Acknowledge their momentum concretely. Reference a specific goal or tactic they are working on."
  At-Risk: "Re-engage gently. No guilt. Lower the bar: suggest the smallest possible next action."
  Renewal: "Reflect on progress made over the plan period and open the conversation about what comes next."
styles:
  Motivational: "High energy, affirming, exclamation-friendly. Celebrate effort over outcome."
  Analytical: "Calm and precise. Reference numbers, frequencies, and trends from their plan."
  "Tough Love": "Direct and challenging. Hold them to their stated commitments, but never demean."
  Supportive: "Soft, empathetic, patient. Validate feelings before suggesting anything."
`

// DefaultRules returns the embedded rulebook.
func DefaultRules() Rules {
	var r Rules
	// The embedded YAML is a compile-time constant; a parse failure here is a
	// programmer error.
	if err := yaml.Unmarshal([]byte(defaultRulesYAML), &r); err != nil {
		panic(fmt.Sprintf("prompt: embedded rulebook: %v", err))
	}
	return r
}

// LoadRules reads a rulebook from a YAML file, filling any missing state or
// style entries from the embedded defaults.
//
// Expectations:
//   - A file overriding one state keeps default directives for the rest
//   - Unknown keys in the file are carried as-is (custom styles are allowed)
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("prompt: read rules %s: %w", path, err)
	}
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Rules{}, fmt.Errorf("prompt: parse rules %s: %w", path, err)
	}
	def := DefaultRules()
	if r.States == nil {
		r.States = map[string]string{}
	}
	if r.Styles == nil {
		r.Styles = map[string]string{}
	}
	for k, v := range def.States {
		if _, ok := r.States[k]; !ok {
			r.States[k] = v
		}
	}
	for k, v := range def.Styles {
		if _, ok := r.Styles[k]; !ok {
			r.Styles[k] = v
		}
	}
	return r, nil
}
