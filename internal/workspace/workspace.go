// Package workspace manages the `.odavl/` state directory layout:
// baselines, trust store, session reports, the policy audit log, and the
// trust/telemetry brain-history streams.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDirName is the default top-level state directory name.
const StateDirName = ".odavl"

// GetRequiredDirectories returns the list of directories that must exist
// under a workspace's state directory.
func GetRequiredDirectories() []string {
	return []string{
		"baselines",
		"reports/autopilot",
		"audit",
		"brain-history/telemetry/autopilot",
		"brain-history/telemetry/insight",
		"brain-history/telemetry/guardian",
		"brain-history/adaptive",
	}
}

// Initialize creates all required state directories with owner-only
// permissions. Idempotent - safe to call multiple times.
func Initialize(stateDir string) error {
	for _, dir := range GetRequiredDirectories() {
		path := filepath.Join(stateDir, dir)
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// IsInitialized checks if a state directory has all required subdirectories.
func IsInitialized(stateDir string) (bool, error) {
	for _, dir := range GetRequiredDirectories() {
		path := filepath.Join(stateDir, dir)

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check directory %s: %w", path, err)
		}
		if !info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}

// BaselinePath returns the canonical path for a named baseline document.
func BaselinePath(stateDir, name string) string {
	return filepath.Join(stateDir, "baselines", name+".json")
}

// TrustStorePath returns the canonical path for the recipe trust store.
func TrustStorePath(stateDir string) string {
	return filepath.Join(stateDir, "recipes-trust.json")
}

// SessionReportDir returns the directory session reports are written into.
func SessionReportDir(stateDir string) string {
	return filepath.Join(stateDir, "reports", "autopilot")
}

// AuditLogPath returns the canonical path for the policy audit log.
func AuditLogPath(stateDir string) string {
	return filepath.Join(stateDir, "audit", "autoapproval.jsonl")
}

// TelemetryPath returns the canonical path for a product's telemetry stream.
func TelemetryPath(stateDir, product string) string {
	return filepath.Join(stateDir, "brain-history", "telemetry", product, "events.jsonl")
}

// AdaptiveStatePath returns the canonical path for the adaptive learning
// rate file.
func AdaptiveStatePath(stateDir string) string {
	return filepath.Join(stateDir, "brain-history", "adaptive", "state.json")
}
