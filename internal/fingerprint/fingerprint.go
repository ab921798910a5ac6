// Package fingerprint implements the deterministic, three-tier Finding
// identity scheme.
package fingerprint

import (
	"path/filepath"
	"strconv"

	"github.com/odavl/autopilot/internal/checksum"
	"github.com/odavl/autopilot/internal/model"
)

// Tier records which matching tier produced a fingerprint, useful for
// diagnostics and for the fuzzy-match step in baseline comparison.
type Tier int

const (
	TierContent Tier = iota + 1
	TierLocation
	TierMessage
)

// NormalizeFile converts a path to forward-slash, workspace-relative form,
// matching the normalization the Fingerprint and Baseline Store both assume.
func NormalizeFile(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// Generate computes a Finding's fingerprint using the three-tier strategy in
// priority order: content hash when both RuleID and Snippet are present,
// location hash when RuleID is present but Snippet is not, and message hash
// as the last resort. The result is always non-empty.
func Generate(f model.Finding) (string, Tier) {
	normalizedFile := NormalizeFile(f.File)

	if f.RuleID != "" && f.Snippet != "" {
		input := f.RuleID + ":" + f.DetectorID + ":" + string(f.Severity) + ":" + f.Snippet
		return checksum.SHA256String(input), TierContent
	}

	if f.RuleID != "" {
		input := normalizedFile + ":" + strconv.Itoa(f.Line) + ":" + f.DetectorID + ":" + f.RuleID
		return checksum.SHA256Hex([]byte(input))[:16], TierLocation
	}

	input := normalizedFile + ":" + strconv.Itoa(f.Line) + ":" + f.Message
	return checksum.SHA256Hex([]byte(input))[:16], TierMessage
}
