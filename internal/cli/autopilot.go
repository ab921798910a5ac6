package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/odavl/autopilot/internal/config"
	"github.com/odavl/autopilot/internal/detector/builtin"
	"github.com/odavl/autopilot/internal/model"
	"github.com/odavl/autopilot/internal/policy"
	"github.com/odavl/autopilot/internal/recipe"
	"github.com/odavl/autopilot/internal/recipeexec"
	"github.com/odavl/autopilot/internal/session"
	"github.com/odavl/autopilot/internal/trust"
	"github.com/odavl/autopilot/internal/workspace"
)

// Additional exit codes for `autopilot run`: 4 means rolled-back.
const exitRolledBack = 4

func newAutopilotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Self-healing Autopilot commands",
	}
	cmd.AddCommand(newAutopilotRunCmd())
	return cmd
}

func newAutopilotRunCmd() *cobra.Command {
	var maxFiles int
	var maxLOC int
	var dryRun bool
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Run one Observe-Decide-Act-Verify-Learn self-heal session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			_ = nonInteractive // non-interactive only matters to a human approval prompt, out of scope
			return runAutopilot(path, maxFiles, maxLOC, dryRun)
		},
	}

	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "override autopilot.max_files (0 uses config/default)")
	cmd.Flags().IntVar(&maxLOC, "max-loc", 0, "override autopilot.max_loc (0 uses config/default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "produce an execution plan without mutating files")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt for manual approval")

	return cmd
}

func runAutopilot(path string, maxFilesFlag, maxLOCFlag int, dryRun bool) error {
	logger := newLogger()

	cfg, err := loadOrDefaultConfig()
	if err != nil {
		return newExitError(exitConfigError, err)
	}
	if err := cfg.Validate(); err != nil {
		return newExitError(exitConfigError, err)
	}

	stateDir := cfg.StateDir
	if err := workspace.Initialize(stateDir); err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to initialize workspace state: %w", err))
	}

	policyCfg, err := loadOrBootstrapPolicy(cfg.Policy.RulesPath)
	if err != nil {
		return newExitError(exitConfigError, err)
	}

	trustStore, err := trust.LoadStore(workspace.TrustStorePath(stateDir))
	if err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to load trust store: %w", err))
	}
	adaptiveRates, err := trust.LoadAdaptiveState(workspace.AdaptiveStatePath(stateDir))
	if err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to load adaptive rates: %w", err))
	}
	auditLog, err := policy.NewAuditLog(workspace.AuditLogPath(stateDir), logger)
	if err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to open audit log: %w", err))
	}
	defer auditLog.Close()

	sources, err := walkSourceFiles(path)
	if err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to walk %s: %w", path, err))
	}
	// The detectors read file contents through the context, so the session's
	// context carries every walked file.
	ctx := context.Background()
	files := make([]model.File, 0, len(sources))
	for _, src := range sources {
		ctx = builtin.WithSource(ctx, src.File.Path, src.Content)
		files = append(files, src.File)
	}

	detectors := registeredDetectors().All()
	executor := recipeexec.NewExecutor(path, detectors, logger)

	maxFiles := cfg.Autopilot.MaxFiles
	if maxFilesFlag > 0 {
		maxFiles = maxFilesFlag
	}
	maxLOC := cfg.Autopilot.MaxLOC
	if maxLOCFlag > 0 {
		maxLOC = maxLOCFlag
	}
	maxWorkers := cfg.Autopilot.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() / 2
		if maxWorkers < 1 {
			maxWorkers = 1
		}
	}
	// CI runs single-worker for deterministic batch plans and finding order.
	if config.DetectCIMode(os.LookupEnv) {
		maxWorkers = 1
	}

	constraints := session.Constraints{
		MaxFiles:       maxFiles,
		MaxLOC:         maxLOC,
		ProtectedPaths: append(append([]string{}, policy.DefaultProtectedPaths...), policyCfg.ProtectedPaths...),
	}

	thresholds := recipe.Thresholds{
		MinMLScore:     cfg.Autopilot.MinMLScore,
		MinTrustScore:  cfg.Autopilot.MinTrustScore,
		MinFusionScore: cfg.Autopilot.MinFusionScore,
		MaxRecipes:     cfg.Autopilot.MaxRecipes,
	}
	if thresholds.MaxRecipes <= 0 {
		thresholds.MaxRecipes = recipe.DefaultThresholds.MaxRecipes
	}

	deps := session.Dependencies{
		Detectors:     detectors,
		Registry:      recipe.NewRegistry(recipe.BuiltinRecipes()...),
		Thresholds:    thresholds,
		TrustStore:    trustStore,
		AdaptiveRates: adaptiveRates,
		AuditLog:      auditLog,
		PolicyConfig:  policyCfg,
		ReportDir:     workspace.SessionReportDir(stateDir),
		Logger:        logger,
		Execute:       executor.Execute,
		Restore:       recipeexec.Restore(path),
		DryRun:        dryRun || cfg.Autopilot.DryRun,
		FailFast:      cfg.Autopilot.FailFast,
		MaxWorkers:    maxWorkers,
		Version:       insightVersion(),
	}

	ctrl := session.New(deps, constraints)

	now := time.Now().UTC()
	result, err := ctrl.Run(ctx, files, now)
	if err != nil {
		return newExitError(1, fmt.Errorf("autopilot run failed: %w", err))
	}

	logger.Info("autopilot session finished",
		"session_id", result.Session.SessionID,
		"state", result.State,
		"outcome", result.Session.FinalOutcome,
		"report_path", result.ReportPath)

	if err := recordTelemetry(stateDir, result, now, logger); err != nil {
		logger.Warn("failed to record telemetry event", "error", err)
	}

	if result.Session.FinalOutcome == model.OutcomeRolledBack {
		return newExitError(exitRolledBack, fmt.Errorf("session rolled back: %s", result.ReportPath))
	}
	if result.Session.FinalOutcome == model.OutcomeFailed {
		return newExitError(1, fmt.Errorf("session failed: %s", result.ReportPath))
	}
	return nil
}

// recordTelemetry appends one session-level event to the Autopilot product
// stream.
func recordTelemetry(stateDir string, result session.Result, now time.Time, logger *slog.Logger) error {
	stream, err := trust.OpenEventStream(workspace.TelemetryPath(stateDir, "autopilot"), nil)
	if err != nil {
		return err
	}
	defer stream.Close()

	successes, failures := 0, 0
	for _, r := range result.Session.ExecutionResults {
		switch r.Status {
		case model.StatusExecuted:
			successes++
		case model.StatusFailed, model.StatusRolledBack:
			failures++
		}
	}

	return stream.Append(trust.Event{
		Product:   trust.ProductAutopilot,
		SessionID: result.Session.SessionID,
		Timestamp: now,
		Successes: successes,
		Failures:  failures,
	})
}

func loadOrDefaultConfig() (*config.Config, error) {
	path := defaultConfigPath()
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.GenerateDefault(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func loadOrBootstrapPolicy(path string) (*policy.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return policy.DefaultConfig(), nil
	}
	return policy.LoadConfig(path)
}
