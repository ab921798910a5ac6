package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odavl/autopilot/internal/baseline"
	"github.com/odavl/autopilot/internal/checksum"
	"github.com/odavl/autopilot/internal/config"
	"github.com/odavl/autopilot/internal/detector"
	"github.com/odavl/autopilot/internal/detector/builtin"
	"github.com/odavl/autopilot/internal/model"
	"github.com/odavl/autopilot/internal/workspace"
)

// Exit codes for `analyze`.
const (
	exitOK               = 0
	exitDetectorError    = 1
	exitNewCriticalInPR  = 2
	exitConfigError      = 3
)

func newAnalyzeCmd() *cobra.Command {
	var changedOnly bool
	var ciMode bool
	var detectorList []string
	var baselineName string

	cmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Run detectors over a path and compare against the stored baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = changedOnly // changed-only filtering is a git-diff concern left to the caller's file list
			return runAnalyze(args[0], ciMode, detectorList, baselineName)
		},
	}

	cmd.Flags().BoolVar(&changedOnly, "changed-only", false, "limit analysis to changed files")
	cmd.Flags().BoolVar(&ciMode, "ci", false, "run in PR mode: fail on new critical issues")
	cmd.Flags().StringSliceVar(&detectorList, "detectors", nil, "comma-separated detector ids (default: all registered)")
	cmd.Flags().StringVar(&baselineName, "baseline", "main", "baseline name to compare against")

	return cmd
}

func registeredDetectors() *detector.Registry {
	return detector.NewRegistry(
		builtin.NewTODOScanner(0),
		builtin.NewHardcodedSecretScanner(0),
	)
}

func runAnalyze(path string, ciMode bool, detectorIDs []string, baselineName string) error {
	logger := newLogger()

	// Auto-detect CI so a pipeline gets PR-mode failure semantics without
	// having to pass --ci explicitly.
	if !ciMode && config.DetectCIMode(os.LookupEnv) {
		ciMode = true
	}

	reg := registeredDetectors()
	var detectors []detector.Detector
	var err error
	if len(detectorIDs) > 0 {
		detectors, err = reg.Select(detectorIDs)
		if err != nil {
			return newExitError(exitConfigError, err)
		}
	} else {
		detectors = reg.All()
	}

	sources, err := walkSourceFiles(path)
	if err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to walk %s: %w", path, err))
	}

	var findings []model.Finding
	for _, src := range sources {
		ctx := builtin.WithSource(context.Background(), src.File.Path, src.Content)
		src.File.ContentSHA = checksum.SHA256String(src.Content)
		findings = append(findings, detector.RunSequential(ctx, detectors, []model.File{src.File}, logger)...)
	}
	baseline.SortFindings(findings)

	stateDir := workspace.StateDirName
	baselinePath := workspace.BaselinePath(stateDir, baselineName)

	now := time.Now().UTC()
	b, loadErr := baseline.Load(baselinePath)
	autoCreated := false
	if loadErr != nil {
		b = baseline.FromFindings(findings, "odavl analyze", detectorNames(detectors), true, now)
		autoCreated = true
		// Auto-creation never touches the committed baseline path: only the
		// caller has authority over what gets committed.
		overridePath := baseline.LocalOverridePath(stateDir, baselineName)
		if saveErr := baseline.Save(b, overridePath); saveErr != nil {
			logger.Warn("failed to persist auto-created baseline", "error", saveErr)
		}
	}

	cmp := baseline.Compare(baselineName, b, findings, now)
	logger.Info("analysis complete",
		"path", path,
		"baseline", baselineName,
		"auto_created", autoCreated,
		"new", cmp.Summary.New,
		"resolved", cmp.Summary.Resolved,
		"unchanged", cmp.Summary.Unchanged)

	if ciMode && baseline.FailsPRMode(cmp) {
		return newExitError(exitNewCriticalInPR, fmt.Errorf("new critical issues introduced"))
	}

	detectorErrors := 0
	for _, f := range findings {
		if f.RuleID == detector.ErrorRuleID {
			detectorErrors++
		}
	}
	if detectorErrors > 0 {
		return newExitError(exitDetectorError, fmt.Errorf("%d detector(s) reported errors", detectorErrors))
	}

	return nil
}

func detectorNames(detectors []detector.Detector) []string {
	names := make([]string, len(detectors))
	for i, d := range detectors {
		names[i] = d.ID()
	}
	return names
}
