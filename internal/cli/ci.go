package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odavl/autopilot/internal/config"
	"github.com/odavl/autopilot/internal/policy"
	"github.com/odavl/autopilot/internal/workspace"
)

func newCICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ci",
		Short: "CI environment and configuration diagnostics",
	}
	cmd.AddCommand(newCIVerifyCmd())
	cmd.AddCommand(newCIDoctorCmd())
	return cmd
}

// detectCIMode resolves the CI mode (pr, main, nightly, or local) from the
// well-known CI environment variables plus the configured default mode.
func detectCIMode(cfg *config.Config) config.Mode {
	if !config.DetectCIMode(os.LookupEnv) {
		return "local"
	}
	if cfg.Mode != "" {
		return cfg.Mode
	}
	return config.ModePR
}

func newCIVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Validate the odavl CI configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCIVerify()
		},
	}
}

func runCIVerify() error {
	logger := newLogger()

	cfg, err := config.LoadFromFile(defaultConfigPath())
	if err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return newExitError(exitConfigError, err)
	}

	policyCfg, err := policy.LoadConfig(cfg.Policy.RulesPath)
	if err != nil {
		return newExitError(exitConfigError, fmt.Errorf("failed to load policy: %w", err))
	}
	if err := policyCfg.Validate(); err != nil {
		return newExitError(exitConfigError, err)
	}

	mode := detectCIMode(cfg)
	logger.Info("ci verify passed", "mode", mode, "detectors", len(cfg.Detectors))
	return nil
}

func newCIDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the environment against the odavl configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCIDoctor()
		},
	}
}

// diagnostic is one line of ci doctor output: a named check plus its
// pass/fail verdict and an explanatory detail.
type diagnostic struct {
	check string
	ok    bool
	detail string
}

func runCIDoctor() error {
	logger := newLogger()
	var diagnostics []diagnostic
	configError := false

	cfg, err := config.LoadFromFile(defaultConfigPath())
	if err != nil {
		diagnostics = append(diagnostics, diagnostic{"config file loads", false, err.Error()})
		configError = true
		cfg = config.GenerateDefault()
	} else {
		diagnostics = append(diagnostics, diagnostic{"config file loads", true, defaultConfigPath()})
	}

	if err := cfg.Validate(); err != nil {
		diagnostics = append(diagnostics, diagnostic{"config passes validation", false, err.Error()})
		configError = true
	} else {
		diagnostics = append(diagnostics, diagnostic{"config passes validation", true, ""})
	}

	stateDir := cfg.StateDir
	initialized, err := workspace.IsInitialized(stateDir)
	if err != nil {
		diagnostics = append(diagnostics, diagnostic{"state directory readable", false, err.Error()})
	} else if !initialized {
		diagnostics = append(diagnostics, diagnostic{"state directory initialized", false, "run `autopilot run` once to create " + stateDir})
	} else {
		diagnostics = append(diagnostics, diagnostic{"state directory initialized", true, stateDir})
	}

	baselinePath := workspace.BaselinePath(stateDir, cfg.Baseline)
	if _, err := os.Stat(baselinePath); err != nil {
		diagnostics = append(diagnostics, diagnostic{"baseline present", false, "no baseline at " + baselinePath + "; first run will auto-create one"})
	} else {
		diagnostics = append(diagnostics, diagnostic{"baseline present", true, baselinePath})
	}

	policyCfg, err := policy.LoadConfig(cfg.Policy.RulesPath)
	if err != nil {
		diagnostics = append(diagnostics, diagnostic{"policy file loads", false, err.Error()})
		configError = true
	} else {
		diagnostics = append(diagnostics, diagnostic{"policy file loads", true, cfg.Policy.RulesPath})
		if err := policyCfg.Validate(); err != nil {
			diagnostics = append(diagnostics, diagnostic{"policy invariants hold", false, err.Error()})
			configError = true
		} else {
			diagnostics = append(diagnostics, diagnostic{"policy invariants hold", true, ""})
		}
	}

	if len(cfg.Detectors) == 0 {
		diagnostics = append(diagnostics, diagnostic{"at least one detector configured", false, ""})
	} else {
		diagnostics = append(diagnostics, diagnostic{"at least one detector configured", true, fmt.Sprintf("%d detectors", len(cfg.Detectors))})
	}

	failures := 0
	for _, d := range diagnostics {
		status := "ok"
		if !d.ok {
			status = "fail"
			failures++
		}
		logger.Info("doctor check", "check", d.check, "status", status, "detail", d.detail)
	}

	if configError {
		return newExitError(exitConfigError, fmt.Errorf("ci doctor found %d configuration problem(s)", failures))
	}
	if failures > 0 {
		return newExitError(2, fmt.Errorf("ci doctor found %d problem(s)", failures))
	}
	return nil
}
