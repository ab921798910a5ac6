// Package config loads and validates the odavl.json CI/autopilot
// configuration: which detectors run, workspace state paths, and the CI
// mode thresholds that gate `ci verify`/`autopilot run`.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Mode selects which CI failure policy applies.
type Mode string

const (
	ModePR      Mode = "pr"
	ModeMain    Mode = "main"
	ModeNightly Mode = "nightly"
)

// Config is the odavl.json document.
type Config struct {
	Version       string        `json:"version"`
	WorkspaceRoot string        `json:"workspace_root"`
	StateDir      string        `json:"state_dir"`
	Detectors     []string      `json:"detectors"`
	Baseline      string        `json:"baseline"`
	Mode          Mode          `json:"mode"`
	Autopilot     AutopilotSpec `json:"autopilot"`
	Policy        PolicySpec    `json:"policy"`
}

// AutopilotSpec carries the Self-Heal Session Controller's tuning knobs.
type AutopilotSpec struct {
	MaxFiles           int     `json:"max_files"`
	MaxLOC             int     `json:"max_loc"`
	MaxWorkers         int     `json:"max_workers"`
	MinMLScore         float64 `json:"min_ml_score"`
	MinTrustScore      float64 `json:"min_trust_score"`
	MinFusionScore     float64 `json:"min_fusion_score"`
	MaxRecipes         int     `json:"max_recipes"`
	DryRun             bool    `json:"dry_run"`
	NonInteractive     bool    `json:"non_interactive"`
	FailFast           bool    `json:"fail_fast"`
}

// PolicySpec points at the policy rule file used for recipe approval.
type PolicySpec struct {
	RulesPath string `json:"rules_path"`
}

// GenerateDefault returns the configuration used when no odavl.json is
// present.
func GenerateDefault() *Config {
	return &Config{
		Version:       "1.0",
		WorkspaceRoot: ".",
		StateDir:      ".odavl",
		Detectors:     []string{"todo-scanner", "secret-scanner"},
		Baseline:      "main",
		Mode:          ModePR,
		Autopilot: AutopilotSpec{
			MaxFiles:       10,
			MaxLOC:         40,
			MaxWorkers:     0, // 0 means max(1, CPU/2)
			MinMLScore:     0,
			MinTrustScore:  0,
			MinFusionScore: 0,
			MaxRecipes:     10,
			FailFast:       true,
		},
		Policy: PolicySpec{
			RulesPath: ".odavl/policy.yaml",
		},
	}
}

// Validate checks the configuration for errors and returns user-friendly
// error messages with hints.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if len(c.Detectors) == 0 {
		return fmt.Errorf("configuration error: 'detectors' must list at least one detector id\n\nHint: Add a detectors list:\n  \"detectors\": [\"todo-scanner\"]")
	}

	switch c.Mode {
	case ModePR, ModeMain, ModeNightly, "":
	default:
		return fmt.Errorf("configuration error: invalid 'mode' value: %q\n\nHint: mode must be one of pr, main, nightly", c.Mode)
	}

	if c.Autopilot.MaxFiles <= 0 {
		return fmt.Errorf("configuration error: 'autopilot.max_files' must be positive\n\nHint: Use the default:\n  \"autopilot\": {\n    \"max_files\": 10\n  }")
	}

	if c.Autopilot.MaxLOC <= 0 {
		return fmt.Errorf("configuration error: 'autopilot.max_loc' must be positive\n\nHint: Use the default:\n  \"autopilot\": {\n    \"max_loc\": 40\n  }")
	}

	return nil
}

// LoadFromFile loads a configuration from a JSON file. Unknown keys are
// rejected rather than silently ignored, so a typo in odavl.json surfaces as
// a ConfigError instead of silently falling back to a default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// DetectCIMode inspects well-known CI environment
// variables and reports whether the process is running in CI.
func DetectCIMode(lookupEnv func(string) (string, bool)) bool {
	for _, key := range []string{"GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_HOME"} {
		if _, ok := lookupEnv(key); ok {
			return true
		}
	}
	return false
}
