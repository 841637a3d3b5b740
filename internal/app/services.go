package app

import (
	"fmt"

	"opentune/internal/applier"
	"opentune/internal/config"
	"opentune/internal/controlplane"
	"opentune/internal/httpclient"
	"opentune/internal/reconcile"
	"opentune/internal/runner"
	"opentune/internal/source"
	"opentune/pkg/logging"
)

// ControlPlaneClients are the two views of the control plane a centralized
// run uses.
type ControlPlaneClients struct {
	// Primary retries according to the http section of the configuration.
	Primary *controlplane.Client

	// Fallback makes a single attempt per call.
	Fallback *controlplane.Client
}

// NewControlPlaneClients creates the control plane clients for a
// centralized configuration.
func NewControlPlaneClients(cfg *config.AgentConfiguration, version string, logger *logging.Logger, extra ...httpclient.Option) (*ControlPlaneClients, error) {
	cc := cfg.Centralized
	if cc == nil {
		return nil, fmt.Errorf("configuration is not in %s mode", config.ModeCentralized)
	}

	opts := []httpclient.Option{
		httpclient.WithPolicy(httpclient.RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxAttempts,
			Backoff:     cfg.HTTP.Backoff,
		}),
		httpclient.WithTimeouts(cfg.HTTP.Timeout, cfg.HTTP.DownloadTimeout),
		httpclient.WithLogger(logger),
		httpclient.WithUserAgent(UserAgent(version)),
	}
	primary := httpclient.New(cc.NodeToken, append(opts, extra...)...)
	fallback := primary.WithRetryPolicy(httpclient.SingleAttempt())

	cpOpts := []controlplane.Option{
		controlplane.WithVersion(version),
		controlplane.WithFacts(controlplane.CollectHostFacts, cfg.WorkDir),
		controlplane.WithLogger(logger),
	}
	return &ControlPlaneClients{
		Primary:  controlplane.NewClient(cc.ServerURL, cc.NodeID, primary, cpOpts...),
		Fallback: controlplane.NewClient(cc.ServerURL, cc.NodeID, fallback, cpOpts...),
	}, nil
}

// NewBuilder returns the production component builder. Commands run through
// r.
func NewBuilder(version string, r runner.Runner) reconcile.Builder {
	return func(cfg *config.AgentConfiguration, logger *logging.Logger) (*reconcile.Components, error) {
		engine, err := applier.NewCommandEngine(cfg.Engine, r, logger)
		if err != nil {
			return nil, err
		}

		comps := &reconcile.Components{
			Git:     source.NewGitSource(r, logger),
			Package: source.NewPackageSource(logger),
			Applier: applier.New(engine, applier.Options{
				WorkDir:           cfg.WorkDir,
				ScriptExtensions:  cfg.Engine.ScriptExtensions,
				ArtifactExtension: cfg.Engine.ArtifactExtension,
				Logger:            logger,
			}),
		}

		if cfg.Mode == config.ModeCentralized {
			clients, err := NewControlPlaneClients(cfg, version, logger)
			if err != nil {
				return nil, err
			}
			comps.ControlPlane = clients.Primary
			comps.Fallback = clients.Fallback
		}
		return comps, nil
	}
}

// UserAgent is sent with every control plane request.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return "opentune-agent/" + version
}
