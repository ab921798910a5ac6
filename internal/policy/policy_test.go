package policy

import (
	"log/slog"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Version: "1.0.0",
		Deny: []Rule{
			{Pattern: "rm -rf", Reason: "destructive"},
			{Pattern: "format", Reason: "destructive"},
			{Pattern: "delete", Reason: "destructive"},
		},
		Allow: []Rule{
			{Pattern: "go test*", Reason: "safe"},
		},
		Default: DefaultAction{Action: "deny", RequireApproval: true},
	}
}

func TestValidateAcceptsMinimalValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBlockOnQuality(t *testing.T) {
	cfg := validConfig()
	cfg.Main.BlockOnQuality = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsEachAntiPatternFlag(t *testing.T) {
	base := validConfig()

	withLegacy := base
	withLegacy.AntiPatterns.FailOnLegacy = true
	assert.ErrorIs(t, withLegacy.Validate(), ErrInvalidConfig)

	withMediumLow := base
	withMediumLow.AntiPatterns.FailOnMediumOrLow = true
	assert.ErrorIs(t, withMediumLow.Validate(), ErrInvalidConfig)

	withUpload := base
	withUpload.AntiPatterns.AutoUploadWithoutConsent = true
	assert.ErrorIs(t, withUpload.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsMissingGuardedDenyRules(t *testing.T) {
	cfg := validConfig()
	cfg.Deny = []Rule{{Pattern: "rm -rf", Reason: "destructive"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	data := `
version: "1.0.0"
deny:
  - pattern: "rm -rf"
    reason: destructive
  - pattern: "format"
    reason: destructive
  - pattern: "delete"
    reason: destructive
allow:
  - pattern: "go test*"
    reason: safe
default:
  action: deny
  require_approval: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Len(t, cfg.Deny, 3)
}

func TestLoadConfigRejectsInvalidContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	data := `
version: "1.0.0"
main:
  block_on_quality: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEvaluateDenyWinsOverAllow(t *testing.T) {
	cfg := validConfig()
	cfg.Allow = append(cfg.Allow, Rule{Pattern: "rm -rf"})

	d := cfg.Evaluate("rm -rf /tmp/build")
	assert.False(t, d.Approved)
	assert.Equal(t, SafetyDeny, d.SafetyReason)
	assert.Equal(t, "rm -rf", d.Rule)
}

func TestEvaluateAllowMatch(t *testing.T) {
	cfg := validConfig()
	d := cfg.Evaluate("go test ./...")
	assert.True(t, d.Approved)
	assert.Equal(t, SafetyAllow, d.SafetyReason)
}

func TestEvaluateFallsBackToDefault(t *testing.T) {
	cfg := validConfig()
	d := cfg.Evaluate("some unrecognized command")
	assert.False(t, d.Approved)
	assert.Equal(t, SafetyUnknown, d.SafetyReason)
	assert.True(t, d.DefaultApplied)
	assert.True(t, d.RequiresManualApproval)
}

func TestMatchesWildcardAndSubstring(t *testing.T) {
	assert.True(t, matches("anything", "*"))
	assert.True(t, matches("go test ./...", "go test*"))
	assert.False(t, matches("go build ./...", "go test*"))
	assert.True(t, matches("curl http://x", "curl"))
}

func TestIsProtectedPathPlainGlob(t *testing.T) {
	assert.True(t, IsProtectedPath("config/settings.yaml", []string{"config/*"}))
	assert.False(t, IsProtectedPath("internal/foo.go", []string{"config/*"}))
}

func TestIsProtectedPathDoubleStar(t *testing.T) {
	assert.True(t, IsProtectedPath("security/auth/login.go", []string{"security/**"}))
	assert.True(t, IsProtectedPath("auth/session/token.go", []string{"auth/**"}))
	assert.True(t, IsProtectedPath("internal/foo.test.go", []string{"**/*.test.*"}))
	assert.False(t, IsProtectedPath("internal/foo.go", []string{"**/*.test.*"}))
}

func TestIsProtectedPathDefaults(t *testing.T) {
	assert.True(t, IsProtectedPath("security/scanner.go", DefaultProtectedPaths))
	assert.True(t, IsProtectedPath("auth/login.go", DefaultProtectedPaths))
	assert.False(t, IsProtectedPath("internal/taxonomy/taxonomy.go", DefaultProtectedPaths))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditLogRecordDecisionAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit", "autoapproval.jsonl")

	log, err := NewAuditLog(path, discardLogger())
	require.NoError(t, err)
	defer log.Close()

	cfg := validConfig()
	d := cfg.Evaluate("go test ./...")
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.RecordDecision("go test ./...", d, "session-1", now))
	require.NoError(t, log.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"command":"go test ./..."`)
	assert.Contains(t, string(raw), `"session_id":"session-1"`)
}

func TestAuditLogAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log1, err := NewAuditLog(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, log1.Record(AuditEntry{Command: "first"}))
	require.NoError(t, log1.Close())

	log2, err := NewAuditLog(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, log2.Record(AuditEntry{Command: "second"}))
	require.NoError(t, log2.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "first")
	assert.Contains(t, string(raw), "second")
}
