// Package builtin provides a small set of concrete, in-process detectors
// implementing the detector.Detector capability interface. The individual
// detector bodies are intentionally simple: real detectors (TypeScript
// checker, ESLint adapter, …) are out of scope for this core; these
// exist to exercise the executors end-to-end and to give the test suite a
// deterministic fixture standing in for the real analyzers.
package builtin

import (
	"bufio"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/odavl/autopilot/internal/model"
)

// TODOScanner flags leftover TODO/FIXME markers as low-severity findings.
type TODOScanner struct {
	timeout time.Duration
}

// NewTODOScanner builds a TODOScanner with the given per-file timeout (0 uses
// the executor default).
func NewTODOScanner(timeout time.Duration) *TODOScanner {
	return &TODOScanner{timeout: timeout}
}

func (s *TODOScanner) ID() string           { return "todo-scanner" }
func (s *TODOScanner) Version() string      { return "1.0.0" }
func (s *TODOScanner) Timeout() time.Duration { return s.timeout }

var todoPattern = regexp.MustCompile(`(?i)\b(TODO|FIXME)\b[:\s]*(.*)`)

// Analyze scans file content (attached to ctx by the caller via WithSource)
// line by line for TODO/FIXME markers.
func (s *TODOScanner) Analyze(ctx context.Context, file model.File) ([]model.Finding, error) {
	content, ok := contentFrom(ctx, file)
	if !ok {
		return nil, nil
	}

	var findings []model.Finding
	scanner := bufio.NewScanner(strings.NewReader(content))
	line := 0
	for scanner.Scan() {
		line++
		if m := todoPattern.FindStringSubmatch(scanner.Text()); m != nil {
			findings = append(findings, model.Finding{
				DetectorID: s.ID(),
				Severity:   model.SeverityLow,
				Category:   model.CategorySyntax,
				File:       file.Path,
				Line:       line,
				RuleID:     "TODO-MARKER",
				Message:    strings.TrimSpace(m[2]),
				Snippet:    strings.TrimSpace(scanner.Text()),
			})
		}
	}
	return findings, scanner.Err()
}

// HardcodedSecretScanner flags string literals that look like embedded
// credentials, treated as a security-category finding.
type HardcodedSecretScanner struct {
	timeout time.Duration
}

// NewHardcodedSecretScanner builds the scanner with the given per-file timeout.
func NewHardcodedSecretScanner(timeout time.Duration) *HardcodedSecretScanner {
	return &HardcodedSecretScanner{timeout: timeout}
}

func (s *HardcodedSecretScanner) ID() string            { return "secret-scanner" }
func (s *HardcodedSecretScanner) Version() string       { return "1.0.0" }
func (s *HardcodedSecretScanner) Timeout() time.Duration { return s.timeout }

var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*['"][^'"]{8,}['"]`)

func (s *HardcodedSecretScanner) Analyze(ctx context.Context, file model.File) ([]model.Finding, error) {
	content, ok := contentFrom(ctx, file)
	if !ok {
		return nil, nil
	}

	var findings []model.Finding
	scanner := bufio.NewScanner(strings.NewReader(content))
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if secretPattern.MatchString(text) {
			findings = append(findings, model.Finding{
				DetectorID: s.ID(),
				Severity:   model.SeverityCritical,
				Category:   model.CategorySecurity,
				File:       file.Path,
				Line:       line,
				RuleID:     "SEC001",
				Message:    "possible hardcoded credential",
				Snippet:    strings.TrimSpace(text),
			})
		}
	}
	return findings, scanner.Err()
}

// sourceKey is the context key used to pass file contents into a detector
// without widening the Detector interface with an extra parameter; the
// caller (internal/cli and internal/recipeexec) is responsible for reading the
// file and attaching it before invoking Analyze.
type sourceKey struct{ path string }

// WithSource attaches a file's content to a context so a builtin detector
// can read it without performing its own I/O, keeping Detector.Analyze
// signatures uniform across in-process and future out-of-process detectors.
func WithSource(ctx context.Context, path, content string) context.Context {
	return context.WithValue(ctx, sourceKey{path: path}, content)
}

func contentFrom(ctx context.Context, file model.File) (string, bool) {
	v := ctx.Value(sourceKey{path: file.Path})
	if v == nil {
		return "", false
	}
	content, ok := v.(string)
	return content, ok
}
