// Package report implements Session Report & Attestation (C10): the
// canonical session report document, its atomic write to a per-session
// path, and the sha256 attestation footer.
package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/odavl/autopilot/internal/canonicaljson"
	"github.com/odavl/autopilot/internal/checksum"
	"github.com/odavl/autopilot/internal/fsutil"
	"github.com/odavl/autopilot/internal/model"
)

const schemaName = "autopilot-session"

// Header identifies the report document's format.
type Header struct {
	Version   string    `json:"version"`
	Schema    string    `json:"schema"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// Intelligence holds average scores across the session's selected recipes.
type Intelligence struct {
	AvgMLScore     float64 `json:"avg_ml_score"`
	AvgTrustScore  float64 `json:"avg_trust_score"`
	AvgFusionScore float64 `json:"avg_fusion_score"`
	AvgFinalScore  float64 `json:"avg_final_score"`
}

// BrainConfidence compares trust before and after the session.
type BrainConfidence struct {
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
	Improvement float64 `json:"improvement"`
}

// FinalOutcomeSection explains the session's terminal decision.
type FinalOutcomeSection struct {
	Decision      model.FinalOutcome `json:"decision"`
	Reasoning     []string           `json:"reasoning"`
	AutoReverted  bool               `json:"auto_reverted"`
}

// Rollback records what was undone, when the session outcome required it.
type Rollback struct {
	Reason         string   `json:"reason"`
	FilesReverted  []string `json:"files_reverted"`
}

// Document is the full canonical session report.
type Document struct {
	Header          Header                        `json:"header"`
	Session         model.SelfHealSession         `json:"session"`
	DetectedIssues  []model.Finding               `json:"detected_issues"`
	SelectedRecipes []model.SelectedRecipe        `json:"selected_recipes"`
	Execution       []model.RecipeExecutionResult `json:"execution"`
	Intelligence    Intelligence                  `json:"intelligence"`
	FixDiffs        []model.FileDiff              `json:"fix_diffs"`
	GuardianResult  any                           `json:"guardian_result,omitempty"`
	BrainConfidence *BrainConfidence               `json:"brain_confidence,omitempty"`
	FinalOutcome    FinalOutcomeSection            `json:"final_outcome"`
	Rollback        *Rollback                      `json:"rollback,omitempty"`

	// ContentHash is populated by Write and is not part of the hashed payload
	// itself; it is appended as a footer after hashing.
	ContentHash string `json:"content_hash,omitempty"`
}

// NewHeader builds the document header for a session.
func NewHeader(version, sessionID string, now time.Time) Header {
	return Header{
		Version:   version,
		Schema:    schemaName,
		Timestamp: now,
		SessionID: sessionID,
	}
}

const maxDiffPreview = 200

// TruncateDiffPreview enforces the 200-char cap on a diff preview.
func TruncateDiffPreview(preview string) string {
	if len(preview) <= maxDiffPreview {
		return preview
	}
	return preview[:maxDiffPreview]
}

// Write computes the document's content hash over its canonical JSON
// encoding and writes it atomically to <sessionID>.oms.json under dir,
// creating dir if necessary. The returned path and hash let callers log
// them for attestation.
func Write(dir string, doc Document) (path string, contentHash string, err error) {
	doc.ContentHash = ""
	canonical, err := canonicaljson.Marshal(doc)
	if err != nil {
		return "", "", fmt.Errorf("failed to canonicalize report: %w", err)
	}

	hash := checksum.SHA256Bytes(canonical)
	doc.ContentHash = hash

	path = filepath.Join(dir, fmt.Sprintf("%s.oms.json", doc.Header.SessionID))
	if err := fsutil.AtomicWriteJSON(path, doc); err != nil {
		return "", "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, hash, nil
}
