// Package reconcile runs one reconciliation: load the agent configuration,
// obtain the configuration source, apply it and report the outcome.
//
// Run never returns an error and never panics. Whatever happens is folded
// into a RunResult whose ExitCode is the process exit code.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"opentune/internal/agenterr"
	"opentune/internal/applier"
	"opentune/internal/config"
	"opentune/internal/controlplane"
	"opentune/internal/source"
	"opentune/pkg/logging"

	"github.com/google/uuid"
)

const subsystem = "reconcile"

// maxReportedCommit is the longest commit id the control plane stores.
const maxReportedCommit = 40

// GitSyncer materializes a repository checkout.
type GitSyncer interface {
	Sync(ctx context.Context, repoURL, branch, dest string) (*source.Snapshot, error)
}

// PackageSyncer materializes packages.
type PackageSyncer interface {
	Sync(ctx context.Context, archivePath, dest string) (*source.Snapshot, error)
	UseDirectory(dir string) (*source.Snapshot, error)
}

// ConfigApplier applies a configuration path.
type ConfigApplier interface {
	Apply(ctx context.Context, configPath string, force bool) (*applier.Result, error)
}

// ControlPlane is the node API of the control plane.
type ControlPlane interface {
	FetchDesiredState(ctx context.Context) (*controlplane.DesiredState, error)
	FetchPackage(ctx context.Context, url, destPath string) (*controlplane.Package, error)
	ReportRun(ctx context.Context, report controlplane.RunReport) (*controlplane.RunReportResponse, error)
	Heartbeat(ctx context.Context, status, summary string) (*controlplane.HeartbeatResponse, error)
}

// Components are the collaborators of one run, built from its
// configuration.
type Components struct {
	Git     GitSyncer
	Package PackageSyncer
	Applier ConfigApplier

	// ControlPlane and Fallback are only set in centralized mode. Fallback
	// makes a single attempt per call and is used for best-effort reports
	// of failed runs.
	ControlPlane ControlPlane
	Fallback     ControlPlane
}

// Builder creates the Components for a configuration.
type Builder func(cfg *config.AgentConfiguration, logger *logging.Logger) (*Components, error)

// Options configures an Orchestrator.
type Options struct {
	// ConfigPath is the agent configuration file.
	ConfigPath string

	// DataDir is the agent's data directory. It is the default work
	// directory and holds the last-run record.
	DataDir string

	// Force applies even when the machine is compliant.
	Force bool

	Logger *logging.Logger
	Build  Builder

	// Load defaults to config.Load.
	Load func(path, dataDir string) (*config.AgentConfiguration, error)

	// RecordPath defaults to <DataDir>/last_run.json. "-" disables the
	// record.
	RecordPath string

	Now      func() time.Time
	NewRunID func() string
}

// Orchestrator drives reconciliation runs.
type Orchestrator struct {
	opts Options
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Load == nil {
		opts.Load = config.Load
	}
	if opts.RecordPath == "" && opts.DataDir != "" {
		opts.RecordPath = RecordPath(opts.DataDir)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	return &Orchestrator{opts: opts}
}

// run holds the mutable state of one invocation.
type run struct {
	result *RunResult
	logger *logging.Logger
	cfg    *config.AgentConfiguration
	comps  *Components
	state  State
}

// Run performs one reconciliation.
func (o *Orchestrator) Run(ctx context.Context) (result *RunResult) {
	r := &run{
		result: &RunResult{
			RunID:     o.opts.NewRunID(),
			Status:    StatusFailed,
			Forced:    o.opts.Force,
			StartedAt: o.opts.Now(),
		},
	}
	r.logger = o.opts.Logger.With("run_id", r.result.RunID)
	result = r.result

	defer o.finish(r)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Debug(subsystem, "Recovered panic stack: %s", debug.Stack())
			o.fail(ctx, r, fmt.Errorf("panic during %s: %v", r.state, p))
		}
	}()

	r.logger.Info(subsystem, "Reconciliation run started")
	if err := o.execute(ctx, r); err != nil {
		o.fail(ctx, r, err)
	}
	return result
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	o.transition(r, StateLoadConfig)
	cfg, err := o.opts.Load(o.opts.ConfigPath, o.opts.DataDir)
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.result.Mode = cfg.Mode

	if o.opts.Build == nil {
		return errors.New("no component builder configured")
	}
	comps, err := o.opts.Build(cfg, r.logger)
	if err != nil {
		return err
	}
	r.comps = comps

	switch cfg.Mode {
	case config.ModeCentralized:
		return o.centralized(ctx, r)
	case config.ModeStandalone:
		return o.standalone(ctx, r)
	default:
		return &agenterr.ConfigError{Path: cfg.Path, Err: fmt.Errorf("unsupported mode %q", cfg.Mode)}
	}
}

func (o *Orchestrator) centralized(ctx context.Context, r *run) error {
	o.transition(r, StateCentralized)
	cp := r.comps.ControlPlane
	if cp == nil {
		return errors.New("centralized mode without a control plane client")
	}

	ds, err := cp.FetchDesiredState(ctx)
	if err != nil {
		return err
	}

	if !ds.PolicyAssigned {
		r.result.Status = StatusSkipped
		r.result.Summary = "No policy assigned to this node"
		r.logger.Info(subsystem, "%s, nothing to do", r.result.Summary)
		o.transition(r, StateReport)
		o.report(ctx, r)
		return nil
	}

	r.result.PolicyID = ds.PolicyID
	r.result.PolicyName = ds.PolicyName
	r.logger.Info(subsystem, "Policy %q (#%d) assigned", ds.PolicyName, ds.PolicyID)

	o.transition(r, StateObtainSource)
	snap, err := o.obtainCentralized(ctx, r, ds)
	if err != nil {
		return err
	}

	if err := o.apply(ctx, r, snap, ds.ConfigPath); err != nil {
		return err
	}

	o.transition(r, StateReport)
	o.report(ctx, r)
	return nil
}

func (o *Orchestrator) obtainCentralized(ctx context.Context, r *run, ds *controlplane.DesiredState) (*source.Snapshot, error) {
	workDir := r.cfg.WorkDir

	if r.cfg.Centralized.UseGit {
		if ds.Repository != nil && ds.Repository.URL != "" {
			branch := ds.Repository.Branch
			if branch == "" {
				branch = config.DefaultBranch
			}
			return r.comps.Git.Sync(ctx, ds.Repository.URL, branch, filepath.Join(workDir, "repo"))
		}
		r.logger.Warn(subsystem, "use_git is set but the control plane sent no repository URL, downloading the package instead")
	}

	archive := filepath.Join(workDir, "downloads", "package.zip")
	pkg, err := r.comps.ControlPlane.FetchPackage(ctx, ds.PackageURL, archive)
	if err != nil {
		return nil, err
	}
	snap, err := r.comps.Package.Sync(ctx, pkg.Path, filepath.Join(workDir, "package"))
	if err != nil {
		return nil, err
	}
	if snap.UseRevisionHint(pkg.CommitHash) {
		r.logger.Debug(subsystem, "Package revision %s taken from the %s header", snap.ShortRevision(), controlplane.CommitHashHeader)
	}
	return snap, nil
}

func (o *Orchestrator) standalone(ctx context.Context, r *run) error {
	o.transition(r, StateStandalone)
	sc := r.cfg.Standalone

	o.transition(r, StateObtainSource)
	var (
		snap *source.Snapshot
		err  error
	)
	switch {
	case sc.UsesRepository():
		snap, err = r.comps.Git.Sync(ctx, sc.RepoURL, sc.Branch, filepath.Join(r.cfg.WorkDir, "repo"))
	case isDir(sc.PackagePath):
		snap, err = r.comps.Package.UseDirectory(sc.PackagePath)
	default:
		snap, err = r.comps.Package.Sync(ctx, sc.PackagePath, filepath.Join(r.cfg.WorkDir, "package"))
	}
	if err != nil {
		return err
	}

	if err := o.apply(ctx, r, snap, sc.ConfigPath); err != nil {
		return err
	}

	o.transition(r, StateReport)
	r.logger.Debug(subsystem, "Standalone mode, no control plane to report to")
	return nil
}

func (o *Orchestrator) apply(ctx context.Context, r *run, snap *source.Snapshot, relPath string) error {
	r.result.Revision = snap.KnownRevision()

	configPath, err := ResolveConfigPath(snap.Path, relPath)
	if err != nil {
		return err
	}

	o.transition(r, StateApply)
	res, err := r.comps.Applier.Apply(ctx, configPath, o.opts.Force)
	if err != nil {
		return err
	}

	r.result.Apply = res
	r.result.SourceKind = string(res.SourceKind)
	r.result.Outcome = string(res.Outcome)
	r.result.Summary = res.Summary
	if res.Success {
		r.result.Status = StatusSuccess
	} else {
		r.result.Status = StatusFailed
		r.result.Err = res.Err
		r.result.ErrorKind = agenterr.Kind(res.Err)
	}
	return nil
}

// report sends the run outcome in centralized mode. A failed run goes
// through the single-attempt client. Failures are logged only.
func (o *Orchestrator) report(ctx context.Context, r *run) {
	if r.cfg == nil || r.cfg.Mode != config.ModeCentralized || r.comps == nil {
		return
	}

	cp := r.comps.ControlPlane
	if r.result.Status == StatusFailed && r.comps.Fallback != nil {
		cp = r.comps.Fallback
	}
	if cp == nil {
		return
	}

	var err error
	if r.result.PolicyID > 0 {
		var resp *controlplane.RunReportResponse
		resp, err = cp.ReportRun(ctx, o.runReport(r))
		if err == nil {
			r.logger.Info(subsystem, "Run reported to control plane as #%d", resp.RunID)
		}
	} else {
		// The run endpoint needs a policy id; a heartbeat still records
		// that the node checked in and how it went.
		_, err = cp.Heartbeat(ctx, string(r.result.Status), r.result.Summary)
		if err == nil {
			r.logger.Info(subsystem, "Heartbeat sent (%s)", r.result.Status)
		}
	}

	if err != nil {
		r.logger.Error(subsystem, err, "Failed to report run to control plane")
		return
	}
	r.result.Reported = true
}

func (o *Orchestrator) runReport(r *run) controlplane.RunReport {
	finished := o.opts.Now()
	started := r.result.StartedAt
	report := controlplane.RunReport{
		PolicyID:   r.result.PolicyID,
		Status:     string(r.result.Status),
		Summary:    r.result.Summary,
		StartedAt:  &started,
		FinishedAt: &finished,
	}
	if rev := r.result.Revision; rev != "" && len(rev) <= maxReportedCommit {
		report.GitCommit = &rev
	}
	return report
}

// fail moves the run into the Error state and attempts one best-effort
// report.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) {
	o.transition(r, StateError)
	r.result.Status = StatusFailed
	r.result.Err = err
	r.result.ErrorKind = agenterr.Kind(err)
	r.result.Summary = agenterr.Summarize(err)
	r.logger.Error(subsystem, err, "Run failed (%s)", r.result.ErrorKind)

	if r.result.Reported {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(subsystem, fmt.Errorf("%v", p), "Best-effort report panicked")
		}
	}()
	o.report(ctx, r)
}

func (o *Orchestrator) finish(r *run) {
	res := r.result
	res.FinishedAt = o.opts.Now()
	res.State = r.state
	o.transition(r, StateIdle)

	fields := map[string]string{
		"run_id":  res.RunID,
		"status":  string(res.Status),
		"elapsed": fmt.Sprintf("%.1fs", res.Elapsed().Seconds()),
		"summary": res.Summary,
	}
	if res.Mode != "" {
		fields["mode"] = string(res.Mode)
	}
	if res.Revision != "" {
		fields["revision"] = res.Revision
	}
	if res.PolicyID > 0 {
		fields["policy_id"] = strconv.FormatInt(res.PolicyID, 10)
	}
	if res.ErrorKind != "" {
		fields["error_kind"] = res.ErrorKind
	}
	r.logger.Summary(subsystem, "Reconciliation run finished", fields)

	if o.opts.RecordPath != "" && o.opts.RecordPath != "-" {
		if err := WriteRecord(o.opts.RecordPath, res); err != nil {
			r.logger.Warn(subsystem, "Failed to write last-run record: %v", err)
		}
	}
	if r.cfg != nil && r.cfg.MetricsTextfile != "" {
		if err := WriteMetrics(r.cfg.MetricsTextfile, res); err != nil {
			r.logger.Warn(subsystem, "Failed to write metrics textfile: %v", err)
		}
	}
}

func (o *Orchestrator) transition(r *run, next State) {
	if r.state != next {
		r.logger.Debug(subsystem, "State %s -> %s", r.state, next)
	}
	r.state = next
}

// ResolveConfigPath joins a source relative configuration path to the
// snapshot root. Absolute paths and paths leaving the root are rejected.
// An empty path selects the root itself.
func ResolveConfigPath(root, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return root, nil
	}
	if err := config.ValidateRelativePath("config_path", rel); err != nil {
		return "", &agenterr.ConfigError{Err: err}
	}
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(rel, `\`, "/"))), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
