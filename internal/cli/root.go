// Package cli wires the odavl command surface: `analyze`, `autopilot run`,
// `ci verify`, and `ci doctor`. CLI argument parsing and interactive
// menus are explicitly out of scope for the core; this package is thin
// plumbing over the core packages.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "odavl",
	Short: "Delta-first static analysis and autonomous code repair",
	Long: `odavl runs a family of detectors over a repository, compares the
result against a stored baseline, and can autonomously select and execute
safe fix recipes through its self-healing Autopilot loop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newAutopilotCmd())
	rootCmd.AddCommand(newCICmd())

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to odavl.json config file (default: ./odavl.json)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := err.(exitCoder); ok {
			return code.ExitCode()
		}
		return 1
	}
	return 0
}

// exitCoder lets a command return a specific process exit code
// instead of the generic failure code.
type exitCoder interface {
	error
	ExitCode() int
}

// exitError wraps an error with an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string  { return e.err.Error() }
func (e *exitError) ExitCode() int  { return e.code }
func (e *exitError) Unwrap() error  { return e.err }

func newExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func defaultConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return "odavl.json"
}

// insightVersion resolves the engine version stamped into reports,
// overridable via INSIGHT_VERSION for pinned CI toolchains.
func insightVersion() string {
	if v := os.Getenv("INSIGHT_VERSION"); v != "" {
		return v
	}
	return "1.0.0"
}
