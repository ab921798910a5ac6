// Package detector defines the detector capability interface and the two
// executors (sequential and file-parallel) that run a detector set over a
// file list (C2).
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/odavl/autopilot/internal/baseline"
	"github.com/odavl/autopilot/internal/model"
)

// DefaultTimeout is the per-detector-per-file wall-clock budget.
const DefaultTimeout = 300 * time.Second

// ErrorRuleID marks findings fabricated from a captured detector error or
// timeout, so callers can distinguish them from real analysis results.
const ErrorRuleID = "DETECTOR-ERROR"

// Detector is the plug-in capability interface every concrete analyzer
// implements. The individual detector bodies (TypeScript checker, ESLint
// adapter, …) are out of scope; this is only the contract the executors
// drive and the registry in internal/cli wires concrete implementations against.
type Detector interface {
	ID() string
	Version() string
	Analyze(ctx context.Context, file model.File) ([]model.Finding, error)
	Timeout() time.Duration
}

// Registry is an ordered, named set of loaded detectors, chosen at startup
// in place of runtime reflection.
type Registry struct {
	detectors []Detector
}

// NewRegistry builds a registry from concrete detector implementations.
func NewRegistry(detectors ...Detector) *Registry {
	return &Registry{detectors: detectors}
}

// Select returns the detectors in ids, in the order given. An unknown id is
// an error rather than a silent skip, since a misconfigured detector list is
// a ConfigError.
func (r *Registry) Select(ids []string) ([]Detector, error) {
	byID := make(map[string]Detector, len(r.detectors))
	for _, d := range r.detectors {
		byID[d.ID()] = d
	}

	selected := make([]Detector, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("detector %q is not registered", id)
		}
		selected = append(selected, d)
	}
	return selected, nil
}

// All returns every registered detector.
func (r *Registry) All() []Detector {
	return append([]Detector{}, r.detectors...)
}

// runOne invokes a single detector against a single file with a timeout,
// capturing any error or timeout as an info-severity Finding rather than
// aborting the run.
func runOne(ctx context.Context, d Detector, file model.File, logger *slog.Logger) []model.Finding {
	timeout := d.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		findings []model.Finding
		err      error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("detector panicked: %v", r)}
			}
		}()
		findings, err := d.Analyze(runCtx, file)
		done <- result{findings: findings, err: err}
	}()

	select {
	case <-runCtx.Done():
		if logger != nil {
			logger.Warn("detector timed out", "detector", d.ID(), "file", file.Path)
		}
		return []model.Finding{{
			DetectorID: d.ID(),
			Severity:   model.SeverityInfo,
			Category:   model.CategoryBuild,
			File:       file.Path,
			RuleID:     ErrorRuleID,
			Message:    fmt.Sprintf("detector %s timed out after %s", d.ID(), timeout),
		}}
	case r := <-done:
		if r.err != nil {
			if logger != nil {
				logger.Warn("detector error", "detector", d.ID(), "file", file.Path, "error", r.err)
			}
			return []model.Finding{{
				DetectorID: d.ID(),
				Severity:   model.SeverityInfo,
				Category:   model.CategoryBuild,
				File:       file.Path,
				RuleID:     ErrorRuleID,
				Message:    fmt.Sprintf("detector %s failed: %v", d.ID(), r.err),
			}}
		}
		return r.findings
	}
}

// RunSequential runs every detector over every file, one at a time, in a
// deterministic order, as required for CI.
func RunSequential(ctx context.Context, detectors []Detector, files []model.File, logger *slog.Logger) []model.Finding {
	var findings []model.Finding
	for _, file := range files {
		for _, d := range detectors {
			findings = append(findings, runOne(ctx, d, file, logger)...)
		}
	}
	baseline.SortFindings(findings)
	return findings
}

// RunFileParallel groups work per file and runs detectors concurrently across
// files with a worker pool of size min(CPU/2, N); within a single file,
// detectors still run sequentially to avoid read-contention amplification.
func RunFileParallel(ctx context.Context, detectors []Detector, files []model.File, logger *slog.Logger) []model.Finding {
	workers := workerCount(len(files))

	type job struct {
		index int
		file  model.File
	}

	jobs := make(chan job)
	results := make([][]model.Finding, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				var fileFindings []model.Finding
				for _, d := range detectors {
					fileFindings = append(fileFindings, runOne(ctx, d, j.file, logger)...)
				}
				results[j.index] = fileFindings
			}
		}()
	}

	for i, f := range files {
		jobs <- job{index: i, file: f}
	}
	close(jobs)
	wg.Wait()

	var findings []model.Finding
	for _, r := range results {
		findings = append(findings, r...)
	}
	baseline.SortFindings(findings)
	return findings
}

// workerCount implements min(CPU/2, N) with a floor of 1.
func workerCount(n int) int {
	if n <= 0 {
		return 1
	}
	cpuHalf := runtime.NumCPU() / 2
	if cpuHalf < 1 {
		cpuHalf = 1
	}
	if n < cpuHalf {
		return n
	}
	return cpuHalf
}
