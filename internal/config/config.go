// Package config resolves runtime configuration from the environment. The
// oracle's own credentials stay in internal/llm (tiered ORACLE_* vars); this
// package covers everything else.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config is the resolved runtime configuration.
type Config struct {
	StorePath   string // LevelDB directory
	EventWindow int    // recent-event window for context aggregation
	AsyncOracle bool   // use submit-then-poll for reconciliation calls
	RulesPath   string // optional YAML rulebook override; empty uses defaults
}

// Load reads configuration from the environment with defaults:
//
//	COACHPILOT_STORE   — LevelDB directory  (default ~/.cache/coachpilot/store)
//	COACHPILOT_WINDOW  — recent-event window (default 5)
//	COACHPILOT_ASYNC   — "true" enables the asynchronous oracle mode
//	COACHPILOT_RULES   — path to a YAML rulebook override
//
// Expectations:
//   - Missing vars resolve to defaults
//   - A non-numeric window falls back to the default
func Load() Config {
	cfg := Config{
		EventWindow: 5,
	}
	if v := os.Getenv("COACHPILOT_STORE"); v != "" {
		cfg.StorePath = v
	} else {
		home, _ := os.UserHomeDir()
		cfg.StorePath = filepath.Join(home, ".cache", "coachpilot", "store")
	}
	if v := os.Getenv("COACHPILOT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EventWindow = n
		}
	}
	cfg.AsyncOracle = os.Getenv("COACHPILOT_ASYNC") == "true"
	cfg.RulesPath = os.Getenv("COACHPILOT_RULES")
	return cfg
}
