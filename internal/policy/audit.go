package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/odavl/autopilot/internal/ndjson"
)

// AuditEntry is one append-only audit log line.
type AuditEntry struct {
	Command                string       `json:"command"`
	Approved               bool         `json:"approved"`
	SafetyReason           SafetyReason `json:"safety_reason"`
	Rule                   string       `json:"rule,omitempty"`
	DefaultApplied         bool         `json:"default_applied"`
	RequiresManualApproval bool         `json:"requires_manual_approval"`
	Timestamp              time.Time    `json:"timestamp"`
	SessionID              string       `json:"session_id"`
	PID                    int          `json:"pid"`
}

// AuditLog is the per-session append-only policy audit trail. The file is
// opened O_APPEND so concurrent appenders are safe at line granularity; each
// line is self-contained JSON.
type AuditLog struct {
	file         *os.File
	encoder      *ndjson.Encoder
	envSessionID string
	mu           sync.Mutex
}

// NewAuditLog opens (creating if necessary) the audit log at path. An
// ODAVL_SESSION_ID environment variable, when set, fills in entries that
// carry no session id of their own.
func NewAuditLog(path string, logger *slog.Logger) (*AuditLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &AuditLog{
		file:         file,
		encoder:      ndjson.NewEncoder(file, logger),
		envSessionID: os.Getenv("ODAVL_SESSION_ID"),
	}, nil
}

// Record appends one evaluation to the audit log, stamping the process id
// and the ambient session id when the entry leaves them unset.
func (a *AuditLog) Record(entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry.PID == 0 {
		entry.PID = os.Getpid()
	}
	if entry.SessionID == "" {
		entry.SessionID = a.envSessionID
	}
	return a.encoder.Encode(entry)
}

// RecordDecision is a convenience wrapper combining Evaluate's output with
// session/process context into one audit entry.
func (a *AuditLog) RecordDecision(command string, d Decision, sessionID string, now time.Time) error {
	return a.Record(AuditEntry{
		Command:                command,
		Approved:               d.Approved,
		SafetyReason:           d.SafetyReason,
		Rule:                   d.Rule,
		DefaultApplied:         d.DefaultApplied,
		RequiresManualApproval: d.RequiresManualApproval,
		Timestamp:              now,
		SessionID:              sessionID,
		PID:                    os.Getpid(),
	})
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}
