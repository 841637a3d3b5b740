// Package applier turns a configuration path into engine artifacts and
// drives the test, apply, verify cycle.
//
// A machine that already passes the compliance test is left alone unless
// the run is forced; this is what makes repeated runs cheap and safe.
package applier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"opentune/internal/agenterr"
	"opentune/pkg/logging"
)

const subsystem = "applier"

// SourceKind classifies the configuration path handed to Apply.
type SourceKind string

const (
	SourceScript    SourceKind = "script"
	SourceArtifact  SourceKind = "artifact"
	SourceDirectory SourceKind = "directory"
)

// Outcome is what the apply cycle ended with.
type Outcome string

const (
	OutcomeCompliant            Outcome = "compliant"
	OutcomeApplied              Outcome = "applied"
	OutcomeVerificationMismatch Outcome = "verification_mismatch"
	OutcomeApplyFailed          Outcome = "apply_failed"
)

// SummaryCompliant is the summary of a run that changed nothing.
const SummaryCompliant = "Already in desired state, no changes needed"

// Result describes one apply cycle.
type Result struct {
	Success     bool
	Summary     string
	SourceKind  SourceKind
	Outcome     Outcome
	ArtifactDir string
	Forced      bool

	// Duration covers the apply primitive only.
	Duration time.Duration

	// Err is an *agenterr.ApplyError or *agenterr.VerificationMismatch when
	// Success is false.
	Err error
}

// Options configures an Applier.
type Options struct {
	// WorkDir holds compiled/ and staged/ output.
	WorkDir string

	// ScriptExtensions are compiled before use (".ps1").
	ScriptExtensions []string

	// ArtifactExtension marks files the engine applies directly (".mof").
	ArtifactExtension string

	Logger *logging.Logger

	// Now is the clock used for durations. Defaults to time.Now.
	Now func() time.Time
}

// Applier applies configuration paths through an Engine.
type Applier struct {
	engine   Engine
	workDir  string
	scripts  map[string]bool
	artifact string
	logger   *logging.Logger
	now      func() time.Time
}

// New creates an Applier.
func New(engine Engine, opts Options) *Applier {
	a := &Applier{
		engine:   engine,
		workDir:  opts.WorkDir,
		scripts:  make(map[string]bool),
		artifact: strings.ToLower(opts.ArtifactExtension),
		logger:   opts.Logger,
		now:      opts.Now,
	}
	for _, ext := range opts.ScriptExtensions {
		a.scripts[strings.ToLower(ext)] = true
	}
	if a.logger == nil {
		a.logger = logging.Nop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Apply resolves configPath to an artifact directory, tests it and applies
// it when the machine drifted or force is set.
//
// The returned error is reserved for a path that yields nothing to apply
// (*agenterr.CompilationError). Engine failures are reported through a
// Result with Success false.
func (a *Applier) Apply(ctx context.Context, configPath string, force bool) (*Result, error) {
	artifactDir, kind, err := a.resolve(ctx, configPath)
	if err != nil {
		return nil, err
	}

	result := &Result{SourceKind: kind, ArtifactDir: artifactDir, Forced: force}
	a.logger.Info(subsystem, "Testing %s configuration at %s", kind, artifactDir)

	compliance, err := a.engine.Test(ctx, artifactDir)
	if err != nil {
		return a.failed(result, 0, fmt.Errorf("compliance test failed: %w", err)), nil
	}
	if compliance.InDesiredState && !force {
		result.Success = true
		result.Outcome = OutcomeCompliant
		result.Summary = SummaryCompliant
		a.logger.Info(subsystem, "%s", SummaryCompliant)
		return result, nil
	}

	if force {
		a.logger.Info(subsystem, "Forced apply requested")
	} else {
		a.logger.Info(subsystem, "Drift detected, applying configuration")
		if compliance.Detail != "" {
			a.logger.Info(subsystem, "%s", compliance.Detail)
		}
	}

	start := a.now()
	err = a.engine.Apply(ctx, artifactDir)
	result.Duration = a.now().Sub(start)
	if err != nil {
		return a.failed(result, result.Duration, err), nil
	}

	verified, err := a.engine.Test(ctx, artifactDir)
	switch {
	case err != nil:
		return a.mismatch(result, "post-apply compliance test failed: "+err.Error()), nil
	case !verified.InDesiredState:
		return a.mismatch(result, verified.Detail), nil
	}

	result.Success = true
	result.Outcome = OutcomeApplied
	result.Summary = fmt.Sprintf("Configuration applied and verified in %.1fs", result.Duration.Seconds())
	a.logger.Info(subsystem, "%s", result.Summary)
	return result, nil
}

func (a *Applier) failed(result *Result, elapsed time.Duration, err error) *Result {
	result.Success = false
	result.Outcome = OutcomeApplyFailed
	result.Err = &agenterr.ApplyError{ArtifactDir: result.ArtifactDir, Err: err}
	result.Summary = fmt.Sprintf("Apply failed after %.1fs: %v", elapsed.Seconds(), err)
	a.logger.Error(subsystem, err, "Apply of %s failed", result.ArtifactDir)
	return result
}

func (a *Applier) mismatch(result *Result, detail string) *Result {
	result.Success = false
	result.Outcome = OutcomeVerificationMismatch
	result.Err = &agenterr.VerificationMismatch{ArtifactDir: result.ArtifactDir, Detail: detail}
	result.Summary = fmt.Sprintf("Configuration applied in %.1fs but verification failed", result.Duration.Seconds())
	if detail != "" {
		result.Summary += ": " + detail
	}
	a.logger.Warn(subsystem, "%s", result.Summary)
	return result
}

// resolve classifies configPath and returns the directory to hand to the
// engine.
func (a *Applier) resolve(ctx context.Context, configPath string) (string, SourceKind, error) {
	info, err := os.Stat(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", a.compileErr(configPath, errors.New("configuration path does not exist"))
		}
		return "", "", a.compileErr(configPath, err)
	}

	if info.IsDir() {
		artifacts, err := a.findArtifacts(configPath)
		if err != nil {
			return "", "", a.compileErr(configPath, err)
		}
		if len(artifacts) == 0 {
			return "", "", a.compileErr(configPath, fmt.Errorf("no %s artifacts found", a.artifact))
		}
		dir, err := a.stage(artifacts)
		if err != nil {
			return "", "", a.compileErr(configPath, err)
		}
		return dir, SourceDirectory, nil
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	switch {
	case ext == a.artifact:
		return filepath.Dir(configPath), SourceArtifact, nil
	case a.scripts[ext]:
		dir, err := a.compile(ctx, configPath)
		if err != nil {
			return "", "", a.compileErr(configPath, err)
		}
		return dir, SourceScript, nil
	default:
		return "", "", a.compileErr(configPath, fmt.Errorf("unsupported file type %q", ext))
	}
}

func (a *Applier) compile(ctx context.Context, script string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	out := filepath.Join(a.workDir, "compiled", name)
	if err := resetDir(out); err != nil {
		return "", err
	}

	a.logger.Info(subsystem, "Compiling %s", script)
	if err := a.engine.Compile(ctx, script, out); err != nil {
		return "", err
	}

	artifacts, err := a.findArtifacts(out)
	if err != nil {
		return "", err
	}
	if len(artifacts) == 0 {
		return "", fmt.Errorf("compilation produced no %s artifacts", a.artifact)
	}
	a.logger.Debug(subsystem, "Compilation produced %d artifact(s)", len(artifacts))
	return a.stage(artifacts)
}

// findArtifacts returns every file below root with the artifact extension,
// sorted.
func (a *Applier) findArtifacts(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) == a.artifact {
			found = append(found, path)
		}
		return nil
	})
	sort.Strings(found)
	return found, err
}

// stage returns the single directory holding all artifacts, copying them
// into <workdir>/staged when they are spread over several directories.
func (a *Applier) stage(artifacts []string) (string, error) {
	dirs := make(map[string]bool)
	for _, p := range artifacts {
		dirs[filepath.Dir(p)] = true
	}
	if len(dirs) == 1 {
		return filepath.Dir(artifacts[0]), nil
	}

	staged := filepath.Join(a.workDir, "staged")
	if err := resetDir(staged); err != nil {
		return "", err
	}

	seen := make(map[string]string)
	for _, p := range artifacts {
		base := strings.ToLower(filepath.Base(p))
		if prev, ok := seen[base]; ok {
			return "", fmt.Errorf("artifacts %s and %s share the name %s", prev, p, filepath.Base(p))
		}
		seen[base] = p
		if err := copyFile(p, filepath.Join(staged, filepath.Base(p))); err != nil {
			return "", err
		}
	}
	a.logger.Debug(subsystem, "Staged %d artifacts from %d directories into %s", len(artifacts), len(dirs), staged)
	return staged, nil
}

func (a *Applier) compileErr(path string, err error) error {
	return &agenterr.CompilationError{ConfigPath: path, Err: err}
}

func scriptData(script string) TemplateData {
	return TemplateData{
		Script:     script,
		ScriptDir:  filepath.Dir(script),
		ScriptName: strings.TrimSuffix(filepath.Base(script), filepath.Ext(script)),
	}
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
