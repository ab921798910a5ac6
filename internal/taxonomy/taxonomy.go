// Package taxonomy holds the fixed lookup tables Intake (C3) uses to assign
// risk weight, severity/category scores, and estimated LOC change to a
// Finding before it becomes a FixCandidate.
package taxonomy

import (
	"sort"
	"strings"

	"github.com/odavl/autopilot/internal/model"
)

// RiskWeightRule is one entry of the risk-weight taxonomy table, matched by
// longest glob prefix against a normalized file path.
type RiskWeightRule struct {
	Pattern string
	Weight  float64
}

// DefaultRiskWeights is the built-in taxonomy table: security-ish
// paths are high risk, test files are low risk, everything else is neutral.
var DefaultRiskWeights = []RiskWeightRule{
	{Pattern: "security/", Weight: 0.9},
	{Pattern: "auth/", Weight: 0.9},
	{Pattern: "payments/", Weight: 0.85},
	{Pattern: "infra/", Weight: 0.75},
	{Pattern: "migrations/", Weight: 0.7},
	{Pattern: "config/", Weight: 0.6},
}

const defaultRiskWeight = 0.5

// isTestLike reports whether a normalized path looks like a test file
// (the "**/*.test.*" glob, expressed as a suffix/substring check
// since Go has no native glob-matching over path segments).
func isTestLike(normalizedPath string) bool {
	base := normalizedPath
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.Contains(base, ".test.") || strings.HasSuffix(base, "_test.go") ||
		strings.Contains(normalizedPath, "/test/") || strings.HasPrefix(normalizedPath, "test/")
}

// RiskWeight returns the risk weight for a normalized, workspace-relative
// path using longest-prefix match against rules, with the test-file carve-out
// applied first (it always wins, since it is more specific than any
// prefix rule) and the unmatched default of 0.5 last.
func RiskWeight(normalizedPath string, rules []RiskWeightRule) float64 {
	if isTestLike(normalizedPath) {
		return 0.2
	}

	best := -1
	bestLen := -1
	for i, rule := range rules {
		if strings.HasPrefix(normalizedPath, rule.Pattern) && len(rule.Pattern) > bestLen {
			best = i
			bestLen = len(rule.Pattern)
		}
	}

	if best < 0 {
		return defaultRiskWeight
	}
	return rules[best].Weight
}

// SeverityScore maps a Severity to the weight used in priority calculation.
var SeverityScore = map[model.Severity]float64{
	model.SeverityCritical: 40,
	model.SeverityHigh:     30,
	model.SeverityMedium:   20,
	model.SeverityLow:      10,
	model.SeverityInfo:     5,
}

// CategoryScore maps a Category to the weight used in priority calculation.
// Categories with a wider blast radius (circular, security, build) score
// higher than cosmetic ones.
var CategoryScore = map[model.Category]float64{
	model.CategorySecurity:     40,
	model.CategoryCircular:     35,
	model.CategoryBuild:        30,
	model.CategoryNetwork:      25,
	model.CategoryIsolation:    25,
	model.CategoryPerformance:  20,
	model.CategoryImport:       15,
	model.CategoryPackageDrift: 15,
	model.CategorySyntax:       10,
}

// EstimatedLOC maps a Category to the estimated lines-of-change table.
var EstimatedLOC = map[model.Category]int{
	model.CategorySyntax:       5,
	model.CategoryImport:       3,
	model.CategorySecurity:     15,
	model.CategoryCircular:     25,
	model.CategoryPerformance:  20,
	model.CategoryIsolation:    15,
	model.CategoryNetwork:      10,
	model.CategoryBuild:        10,
	model.CategoryPackageDrift: 5,
}

// categoryKeywords drives inferCategory's keyword match, longest
// keyword first so more specific terms ("package-drift") beat generic ones.
var categoryKeywords = []struct {
	keyword  string
	category model.Category
}{
	{"package-drift", model.CategoryPackageDrift},
	{"circular", model.CategoryCircular},
	{"security", model.CategorySecurity},
	{"isolation", model.CategoryIsolation},
	{"network", model.CategoryNetwork},
	{"performance", model.CategoryPerformance},
	{"import", model.CategoryImport},
	{"build", model.CategoryBuild},
}

func init() {
	sort.Slice(categoryKeywords, func(i, j int) bool {
		return len(categoryKeywords[i].keyword) > len(categoryKeywords[j].keyword)
	})
}

// InferCategory performs the keyword match over detector id, rule id, and
// message, defaulting to syntax when nothing matches.
func InferCategory(detectorID, ruleID, message string) model.Category {
	haystack := strings.ToLower(detectorID + " " + ruleID + " " + message)
	for _, kw := range categoryKeywords {
		if strings.Contains(haystack, kw.keyword) {
			return kw.category
		}
	}
	return model.CategorySyntax
}

// NormalizeSeverity accepts numeric or textual severity input and maps it to
// the canonical Severity enum.
func NormalizeSeverity(raw string) model.Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "4", "fatal":
		return model.SeverityCritical
	case "error", "high", "3":
		return model.SeverityHigh
	case "warning", "warn", "medium", "2":
		return model.SeverityMedium
	case "low", "minor", "1":
		return model.SeverityLow
	case "info", "note", "0", "":
		return model.SeverityInfo
	default:
		return model.SeverityMedium
	}
}
