package app

import (
	"context"
	"fmt"

	"opentune/internal/config"
	"opentune/internal/reconcile"
	"opentune/internal/runner"
	"opentune/pkg/logging"
)

// Application is one agent process. It owns the logger and knows how to
// build every collaborator a command needs.
//
// NewApplication only resolves process settings and opens the log sinks.
// The agent configuration is read later, by the run itself, so that a
// broken configuration file is reported as a failed run.
type Application struct {
	config  *Config
	logger  *logging.Logger
	runner  runner.Runner
	builder reconcile.Builder
}

// NewApplication resolves cfg and creates the process logger.
//
// A broken .env file or an unusable log directory is logged as a warning
// and the application is created anyway.
func NewApplication(cfg *Config) (*Application, error) {
	resolveErr := cfg.Resolve(nil)

	logger, err := cfg.NewLogger()
	if err != nil {
		logger = cfg.NewConsoleLogger()
		logger.Warn("Bootstrap", "Logging to the console only: %v", err)
	}
	if resolveErr != nil {
		logger.Warn("Bootstrap", "Ignoring environment file: %v", resolveErr)
	}
	logger.Debug("Bootstrap", "Data directory %s, configuration %s", cfg.DataDir, cfg.ConfigPath)

	r := runner.NewLocalRunner()
	return &Application{
		config:  cfg,
		logger:  logger,
		runner:  r,
		builder: NewBuilder(cfg.Version, r),
	}, nil
}

// Config returns the resolved process settings.
func (a *Application) Config() *Config {
	return a.config
}

// Logger returns the process logger.
func (a *Application) Logger() *logging.Logger {
	return a.logger
}

// Orchestrator creates the orchestrator for one run.
func (a *Application) Orchestrator(force bool) *reconcile.Orchestrator {
	return reconcile.New(reconcile.Options{
		ConfigPath: a.config.ConfigPath,
		DataDir:    a.config.DataDir,
		Force:      force,
		Logger:     a.logger,
		Build:      a.builder,
	})
}

// Run performs one reconciliation run. The run is cancelled on SIGINT or
// SIGTERM.
func (a *Application) Run(ctx context.Context, force bool) *reconcile.RunResult {
	ctx, stop := withShutdownSignals(ctx, a.logger)
	defer stop()
	return a.Orchestrator(force).Run(ctx)
}

// LoadAgentConfig reads the agent configuration file.
func (a *Application) LoadAgentConfig() (*config.AgentConfiguration, error) {
	return config.Load(a.config.ConfigPath, a.config.DataDir)
}

// ControlPlane loads the agent configuration and returns the control plane
// clients. It fails unless the agent runs in centralized mode.
func (a *Application) ControlPlane() (*ControlPlaneClients, error) {
	cfg, err := a.LoadAgentConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Mode != config.ModeCentralized {
		return nil, fmt.Errorf("agent is configured in %s mode, there is no control plane", cfg.Mode)
	}
	return NewControlPlaneClients(cfg, a.config.Version, a.logger)
}

// RecordPath is the last-run record of this data directory.
func (a *Application) RecordPath() string {
	return reconcile.RecordPath(a.config.DataDir)
}

// Close flushes and closes the log sinks.
func (a *Application) Close() error {
	return a.logger.Close()
}
