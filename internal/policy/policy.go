// Package policy implements Policy & Approval (C8): the YAML rule file,
// allow/deny/default evaluation, protected-path checks, and the append-only
// audit log.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrDenied is the sentinel error for a deny verdict, for callers that want a
// single error to check. Evaluate itself reports its verdict as a Decision
// and does not return this error.
var ErrDenied = errors.New("policy: denied")

// ErrInvalidConfig is returned when a rule file violates a hard invariant.
var ErrInvalidConfig = errors.New("policy: invalid configuration")

// SafetyReason classifies why a policy evaluation produced its verdict.
type SafetyReason string

const (
	SafetyAllow   SafetyReason = "allow"
	SafetyDeny    SafetyReason = "deny"
	SafetyUnknown SafetyReason = "unknown"
)

// Rule is a single allow/deny pattern match against a command string.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// DefaultAction is applied when neither deny nor allow rules match.
type DefaultAction struct {
	Action          string `yaml:"action"` // "allow" | "deny"
	Reason          string `yaml:"reason"`
	SafetyLevel     string `yaml:"safety_level"`
	RequireApproval bool   `yaml:"require_approval"`
}

// LoggingConfig controls audit log verbosity.
type LoggingConfig struct {
	IncludeReason bool   `yaml:"include_reason"`
	LogLevel      string `yaml:"log_level"`
	AuditTrail    bool   `yaml:"audit_trail"`
}

// MainConfig and AntiPatternsConfig hold the hard-invariant flags validated
// at load time: main-branch mode never fails on quality issues, and the
// anti-pattern escape hatches stay off.
type MainConfig struct {
	BlockOnQuality bool `yaml:"block_on_quality"`
}

type AntiPatternsConfig struct {
	FailOnLegacy            bool `yaml:"fail_on_legacy"`
	FailOnMediumOrLow        bool `yaml:"fail_on_medium_or_low"`
	AutoUploadWithoutConsent bool `yaml:"auto_upload_without_consent"`
}

// Config is the parsed policy rule file.
type Config struct {
	Version       string             `yaml:"version"`
	SafetyLevel   string             `yaml:"safety_level"`
	Allow         []Rule             `yaml:"allow"`
	Deny          []Rule             `yaml:"deny"`
	Default       DefaultAction      `yaml:"default"`
	Logging       LoggingConfig      `yaml:"logging"`
	Main          MainConfig         `yaml:"main"`
	AntiPatterns  AntiPatternsConfig `yaml:"anti_patterns"`
	ProtectedPaths []string          `yaml:"protected_paths"`
}

// LoadConfig reads and validates a YAML policy rule file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the hard invariants that reject
// non-conformant configs at load time.
func (c *Config) Validate() error {
	if c.Main.BlockOnQuality {
		return fmt.Errorf("%w: main.block_on_quality must be false", ErrInvalidConfig)
	}
	if c.AntiPatterns.FailOnLegacy {
		return fmt.Errorf("%w: anti_patterns.fail_on_legacy must be false", ErrInvalidConfig)
	}
	if c.AntiPatterns.FailOnMediumOrLow {
		return fmt.Errorf("%w: anti_patterns.fail_on_medium_or_low must be false", ErrInvalidConfig)
	}
	if c.AntiPatterns.AutoUploadWithoutConsent {
		return fmt.Errorf("%w: anti_patterns.auto_upload_without_consent must be false", ErrInvalidConfig)
	}

	required := map[string]bool{"rm": false, "delete": false, "format": false}
	for _, rule := range c.Deny {
		for guarded := range required {
			if strings.Contains(strings.ToLower(rule.Pattern), guarded) {
				required[guarded] = true
			}
		}
	}
	for guarded, present := range required {
		if !present {
			return fmt.Errorf("%w: at least one deny rule must guard %q", ErrInvalidConfig, guarded)
		}
	}

	return nil
}

// Decision is the result of evaluating a command or file path set.
type Decision struct {
	Approved              bool         `json:"approved"`
	SafetyReason          SafetyReason `json:"safety_reason"`
	Rule                  string       `json:"rule,omitempty"`
	DefaultApplied        bool         `json:"default_applied"`
	RequiresManualApproval bool        `json:"requires_manual_approval"`
}

// Evaluate checks a command string against deny rules first, then allow
// rules, then the default action. Deny rules win over allow rules; within
// each list the first match wins.
func (c *Config) Evaluate(command string) Decision {
	for _, rule := range c.Deny {
		if matches(command, rule.Pattern) {
			return Decision{
				Approved:     false,
				SafetyReason: SafetyDeny,
				Rule:         rule.Pattern,
			}
		}
	}

	for _, rule := range c.Allow {
		if matches(command, rule.Pattern) {
			return Decision{
				Approved:     true,
				SafetyReason: SafetyAllow,
				Rule:         rule.Pattern,
			}
		}
	}

	return Decision{
		Approved:               c.Default.Action == "allow",
		SafetyReason:           SafetyUnknown,
		DefaultApplied:         true,
		RequiresManualApproval: c.Default.RequireApproval,
	}
}

// matches reports whether pattern matches command, supporting "*" wildcards
// at either end ("rm *" is a prefix match, "*.sh" a suffix match, "*delete*"
// a substring match, "*" matches everything) in addition to plain substring
// match.
func matches(command, pattern string) bool {
	if pattern == "*" {
		return true
	}
	leading := strings.HasPrefix(pattern, "*")
	trailing := strings.HasSuffix(pattern, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")
	switch {
	case leading && trailing:
		return strings.Contains(command, core)
	case leading:
		return strings.HasSuffix(command, core)
	case trailing:
		return strings.HasPrefix(command, core)
	}
	return strings.Contains(command, pattern)
}

// IsProtectedPath reports whether a normalized, workspace-relative path
// matches any protected-path glob. Recipes touching a protected file
// are always skipped.
func IsProtectedPath(normalizedPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, normalizedPath); ok {
			return true
		}
		// filepath.Match does not support "**"; fall back to a prefix/substring
		// check for doubled-star globs.
		if strings.Contains(pattern, "**") {
			prefix := strings.SplitN(pattern, "**", 2)[0]
			suffix := strings.SplitN(pattern, "**", 2)[1]
			if strings.HasPrefix(normalizedPath, prefix) && strings.HasSuffix(normalizedPath, strings.TrimPrefix(suffix, "/")) {
				return true
			}
		}
	}
	return false
}

// DefaultProtectedPaths guards the paths a recipe must never touch.
var DefaultProtectedPaths = []string{
	"security/**",
	"auth/**",
	"**/*.test.*",
}

// DefaultConfig returns a minimal policy rule file that satisfies every
// hard invariant in Validate, used to bootstrap a workspace that has not
// yet been given a policy.yaml.
func DefaultConfig() *Config {
	return &Config{
		Version:     "1.0.0",
		SafetyLevel: "standard",
		Deny: []Rule{
			{Pattern: "rm -rf*", Reason: "destructive filesystem operation"},
			{Pattern: "*delete*", Reason: "destructive data operation"},
			{Pattern: "*format*", Reason: "destructive filesystem operation"},
		},
		Allow: []Rule{
			{Pattern: "fix-*", Reason: "recipe execution within budget constraints"},
		},
		Default: DefaultAction{
			Action:          "deny",
			Reason:          "no matching allow rule",
			SafetyLevel:     "standard",
			RequireApproval: true,
		},
		Logging: LoggingConfig{
			IncludeReason: true,
			LogLevel:      "info",
			AuditTrail:    true,
		},
		ProtectedPaths: DefaultProtectedPaths,
	}
}

// SaveConfig writes a policy rule file as YAML.
func SaveConfig(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: marshaling: %v", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: creating directory: %v", ErrInvalidConfig, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}
