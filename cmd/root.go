package cmd

import (
	"errors"
	"fmt"
	"os"

	"opentune/internal/agenterr"
	"opentune/internal/app"
	"opentune/internal/reconcile"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution, including a skipped run.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a failed run or a general error.
	ExitCodeError = 1
	// ExitCodeConfig indicates the agent configuration could not be used.
	// A failed run always exits with ExitCodeError, whatever its cause.
	ExitCodeConfig = 2
	// ExitCodeAuthFailed indicates the control plane rejected the node.
	ExitCodeAuthFailed = 3
)

// Global flags.
var (
	dataDir    string
	configPath string
	logDir     string
	debug      bool
	quiet      bool
)

// rootCmd represents the base command for the agent.
var rootCmd = &cobra.Command{
	Use:   "opentune-agent",
	Short: "Pull-based configuration agent for OpenTune managed nodes",
	Long: `opentune-agent brings this machine to the desired state described by a
configuration source. Each invocation performs exactly one reconciliation run:
it obtains the source (a git repository or a package), tests the machine
against it, applies it when the machine drifted and, in centralized mode,
reports the outcome to the control plane.

Schedule "opentune-agent run" with cron, a systemd timer or the Windows task
scheduler.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "opentune-agent version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// RunFailedError is returned by the run command when the run failed. The
// run's own summary has already been printed.
type RunFailedError struct {
	Result *reconcile.RunResult
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed: %s", e.Result.RunID, e.Result.Summary)
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var runFailed *RunFailedError
	if errors.As(err, &runFailed) {
		return runFailed.Result.ExitCode()
	}

	var authErr *agenterr.AuthError
	if errors.As(err, &authErr) {
		return ExitCodeAuthFailed
	}

	var configErr *agenterr.ConfigError
	if errors.As(err, &configErr) {
		return ExitCodeConfig
	}

	return ExitCodeError
}

// newApplication bootstraps the process from the global flags.
func newApplication() (*app.Application, error) {
	return app.NewApplication(app.NewConfig(dataDir, configPath, logDir, debug, quiet, GetVersion()))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dataDir, "data-dir", "", "Data directory (default $OPENTUNE_DATA_DIR or "+app.DefaultDataDir()+")")
	flags.StringVar(&configPath, "config", "", "Agent configuration file (default <data-dir>/config.json)")
	flags.StringVar(&logDir, "log-dir", "", `Directory for daily log files, "-" disables (default <data-dir>/logs)`)
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress console logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHeartbeatCmd())
	rootCmd.AddCommand(newDesiredStateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
