// Package baseline implements the Fingerprint & Baseline Store (C1): loading
// and saving baseline documents, and classifying current findings as new,
// unchanged, or resolved relative to a stored baseline.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/odavl/autopilot/internal/fingerprint"
	"github.com/odavl/autopilot/internal/fsutil"
	"github.com/odavl/autopilot/internal/model"
)

// Error kinds surfaced by the store.
var (
	ErrNotFound   = errors.New("baseline: not found")
	ErrValidation = errors.New("baseline: schema validation failed")
	ErrIO         = errors.New("baseline: io failure")
)

// fuzzyLineTolerance is the maximum line drift a fuzzy match accepts.
const fuzzyLineTolerance = 3

// Load reads and validates a baseline document from path.
func Load(path string) (*model.Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	var b model.Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := validateSchema(&b); err != nil {
		return nil, err
	}

	return &b, nil
}

// validateSchema rejects baselines whose major schema version does not match
// the reader's. Minor-version drift is tolerated; major drift is not.
func validateSchema(b *model.Baseline) error {
	if b.Version == "" {
		return fmt.Errorf("%w: missing version", ErrValidation)
	}
	readerMajor := strings.SplitN(model.SchemaVersion, ".", 2)[0]
	docMajor := strings.SplitN(b.Version, ".", 2)[0]
	if docMajor != readerMajor {
		return fmt.Errorf("%w: baseline schema major %s incompatible with reader major %s", ErrValidation, docMajor, readerMajor)
	}
	return nil
}

// Save writes a baseline document atomically.
func Save(b *model.Baseline, path string) error {
	if err := fsutil.AtomicWriteJSON(path, b); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// FromFindings builds a fresh baseline from a findings list, used for
// auto-creation on first PR run and for idempotency
// testing.
func FromFindings(findings []model.Finding, createdBy string, detectors []string, autoCreated bool, now time.Time) *model.Baseline {
	issues := make([]model.BaselineIssue, 0, len(findings))
	fileSet := map[string]struct{}{}
	for _, f := range findings {
		fp, _ := fingerprint.Generate(f)
		issues = append(issues, model.BaselineIssue{
			Finding:     f,
			Fingerprint: fp,
			FirstSeen:   now,
		})
		fileSet[fingerprint.NormalizeFile(f.File)] = struct{}{}
	}

	return &model.Baseline{
		Version: model.SchemaVersion,
		Metadata: model.BaselineMetadata{
			CreatedAt:   now,
			CreatedBy:   createdBy,
			TotalFiles:  len(fileSet),
			TotalIssues: len(issues),
			AutoCreated: autoCreated,
		},
		Config: model.BaselineConfig{
			Detectors: detectors,
		},
		Issues: issues,
	}
}

// Comparison is the output of matching current findings against a baseline.
type Comparison struct {
	BaselineName      string    `json:"baseline_name"`
	BaselineTimestamp time.Time `json:"baseline_timestamp"`
	BaselineCommit    string    `json:"baseline_commit,omitempty"`
	BaselineTotal     int       `json:"baseline_total"`

	CurrentTimestamp time.Time `json:"current_timestamp"`
	CurrentTotal     int       `json:"current_total"`

	NewIssues       []model.Finding       `json:"new_issues"`
	ResolvedIssues  []model.BaselineIssue `json:"resolved_issues"`
	UnchangedIssues []model.Finding       `json:"unchanged_issues"`

	Summary Summary `json:"summary"`
}

// Summary tallies the comparison outcome.
type Summary struct {
	New       int `json:"new"`
	Resolved  int `json:"resolved"`
	Unchanged int `json:"unchanged"`
	Total     int `json:"total"`
}

// fuzzyKey builds the normalizedFile+":"+ruleId index key used for O(1)
// fuzzy lookup.
func fuzzyKey(normalizedFile, ruleID string) string {
	return normalizedFile + ":" + ruleID
}

// Compare classifies each current Finding as new or unchanged against the
// baseline, and reports unmatched baseline issues as resolved. Matching
// tries, in order: exact fingerprint, then fuzzy (same file, same
// detector+ruleId, line within ±3), otherwise new.
func Compare(name string, b *model.Baseline, current []model.Finding, now time.Time) *Comparison {
	exactIndex := make(map[string]model.BaselineIssue, len(b.Issues))
	fuzzyIndex := make(map[string][]model.BaselineIssue)
	for _, issue := range b.Issues {
		exactIndex[issue.Fingerprint] = issue
		key := fuzzyKey(fingerprint.NormalizeFile(issue.File), issue.RuleID)
		fuzzyIndex[key] = append(fuzzyIndex[key], issue)
	}

	matched := make(map[string]bool, len(b.Issues)) // keyed by baseline fingerprint
	var newIssues []model.Finding
	var unchanged []model.Finding

	for _, f := range current {
		fp, _ := fingerprint.Generate(f)

		if issue, ok := exactIndex[fp]; ok {
			matched[issue.Fingerprint] = true
			unchanged = append(unchanged, f)
			continue
		}

		if issue, ok := fuzzyMatch(f, fuzzyIndex); ok {
			matched[issue.Fingerprint] = true
			unchanged = append(unchanged, f)
			continue
		}

		newIssues = append(newIssues, f)
	}

	var resolved []model.BaselineIssue
	for _, issue := range b.Issues {
		if !matched[issue.Fingerprint] {
			resolved = append(resolved, issue)
		}
	}

	cmp := &Comparison{
		BaselineName:      name,
		BaselineTimestamp: b.Metadata.CreatedAt,
		BaselineCommit:    b.Metadata.GitCommit,
		BaselineTotal:     b.Metadata.TotalIssues,
		CurrentTimestamp:  now,
		CurrentTotal:      len(current),
		NewIssues:         newIssues,
		ResolvedIssues:    resolved,
		UnchangedIssues:   unchanged,
		Summary: Summary{
			New:       len(newIssues),
			Resolved:  len(resolved),
			Unchanged: len(unchanged),
			Total:     len(current),
		},
	}
	return cmp
}

// fuzzyMatch finds a baseline issue with the same normalized file and
// (detector, ruleId), whose line is within ±3 of the finding's line, exactly
// matching at ±3 and not at ±4.
func fuzzyMatch(f model.Finding, index map[string][]model.BaselineIssue) (model.BaselineIssue, bool) {
	if f.RuleID == "" {
		return model.BaselineIssue{}, false
	}

	key := fuzzyKey(fingerprint.NormalizeFile(f.File), f.RuleID)
	candidates, ok := index[key]
	if !ok {
		return model.BaselineIssue{}, false
	}

	// Prefer the closest line, tie-broken by the order candidates were
	// indexed, for deterministic results.
	best := -1
	bestDist := fuzzyLineTolerance + 1
	for i, c := range candidates {
		if c.DetectorID != f.DetectorID {
			continue
		}
		dist := f.Line - c.Line
		if dist < 0 {
			dist = -dist
		}
		if dist <= fuzzyLineTolerance && dist < bestDist {
			best = i
			bestDist = dist
		}
	}

	if best < 0 {
		return model.BaselineIssue{}, false
	}
	return candidates[best], true
}

// SortFindings orders findings by (file, line, detector, ruleId), the
// stable ordering guarantee the Detector Executor promises.
func SortFindings(findings []model.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.DetectorID != b.DetectorID {
			return a.DetectorID < b.DetectorID
		}
		return a.RuleID < b.RuleID
	})
}

// FailsPRMode reports whether the comparison should fail a PR-mode CI run:
// new issues filtered to critical only, by default.
func FailsPRMode(cmp *Comparison) bool {
	for _, f := range cmp.NewIssues {
		if f.Severity == model.SeverityCritical {
			return true
		}
	}
	return false
}

// DefaultPath returns the on-disk path for a named baseline under the
// workspace state directory layout.
func DefaultPath(stateDir, name string) string {
	return stateDir + "/baselines/" + name + ".json"
}

// LocalOverridePath returns the auto-created override path used when a PR
// run needs a baseline that does not yet exist. Auto-creation never touches
// a committed baseline path.
func LocalOverridePath(stateDir, name string) string {
	return stateDir + "/baselines/" + name + ".local.json"
}
