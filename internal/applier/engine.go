package applier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"opentune/internal/config"
	"opentune/internal/runner"
	"opentune/pkg/logging"

	"github.com/Masterminds/sprig/v3"
)

// Compliance is the answer of the engine's test primitive.
type Compliance struct {
	InDesiredState bool

	// Detail names what is out of state, when the engine says.
	Detail string
}

// Engine is the native configuration engine.
type Engine interface {
	// Compile runs script and writes artifacts into outputDir.
	Compile(ctx context.Context, script, outputDir string) error

	// Test compares the machine against the artifacts in artifactDir.
	Test(ctx context.Context, artifactDir string) (Compliance, error)

	// Apply enforces the artifacts in artifactDir.
	Apply(ctx context.Context, artifactDir string) error
}

// TemplateData is available to engine command templates.
//
//	{{ .Script }}       absolute path of the script being compiled
//	{{ .ScriptDir }}    its directory
//	{{ .ScriptName }}   its base name without extension
//	{{ .OutputDir }}    where compiled artifacts must be written
//	{{ .ArtifactDir }}  directory handed to test and apply
//
// All sprig functions are available, e.g. {{ .ArtifactDir | squote }}.
type TemplateData struct {
	Script      string
	ScriptDir   string
	ScriptName  string
	OutputDir   string
	ArtifactDir string
}

// CommandEngine drives the engine through external commands rendered from
// templates.
type CommandEngine struct {
	compile []*template.Template
	test    []*template.Template
	apply   []*template.Template
	runner  runner.Runner
	logger  *logging.Logger
}

// NewCommandEngine parses the command templates of cfg.
func NewCommandEngine(cfg config.EngineConfig, r runner.Runner, logger *logging.Logger) (*CommandEngine, error) {
	e := &CommandEngine{runner: r, logger: logger}

	var err error
	if e.compile, err = parseCommand("compile", cfg.Compile); err != nil {
		return nil, err
	}
	if e.test, err = parseCommand("test", cfg.Test); err != nil {
		return nil, err
	}
	if e.apply, err = parseCommand("apply", cfg.Apply); err != nil {
		return nil, err
	}
	return e, nil
}

func parseCommand(name string, args []string) ([]*template.Template, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("engine %s command is empty", name)
	}
	out := make([]*template.Template, 0, len(args))
	for i, arg := range args {
		tmpl, err := template.New(fmt.Sprintf("%s[%d]", name, i)).
			Funcs(sprig.TxtFuncMap()).
			Option("missingkey=error").
			Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid engine %s template %q: %w", name, arg, err)
		}
		out = append(out, tmpl)
	}
	return out, nil
}

func render(tmpls []*template.Template, data TemplateData) (runner.Command, error) {
	args := make([]string, 0, len(tmpls))
	for _, tmpl := range tmpls {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return runner.Command{}, fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
		}
		args = append(args, buf.String())
	}
	return runner.Command{Name: args[0], Args: args[1:]}, nil
}

// Compile implements Engine.
func (e *CommandEngine) Compile(ctx context.Context, script, outputDir string) error {
	data := scriptData(script)
	data.OutputDir = outputDir
	_, err := e.run(ctx, "compile", e.compile, data, data.ScriptDir)
	return err
}

// Test implements Engine.
func (e *CommandEngine) Test(ctx context.Context, artifactDir string) (Compliance, error) {
	res, err := e.run(ctx, "test", e.test, TemplateData{ArtifactDir: artifactDir}, "")
	if err != nil {
		return Compliance{}, err
	}
	return ParseCompliance(res.Stdout)
}

// Apply implements Engine.
func (e *CommandEngine) Apply(ctx context.Context, artifactDir string) error {
	_, err := e.run(ctx, "apply", e.apply, TemplateData{ArtifactDir: artifactDir}, "")
	return err
}

func (e *CommandEngine) run(ctx context.Context, op string, tmpls []*template.Template, data TemplateData, dir string) (runner.Result, error) {
	cmd, err := render(tmpls, data)
	if err != nil {
		return runner.Result{}, err
	}
	cmd.Dir = dir

	e.logger.Debug(subsystem, "Engine %s: %s", op, cmd)
	res, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return res, fmt.Errorf("engine %s could not run: %w", op, err)
	}
	if res.ExitCode != 0 {
		if out := res.Output(); out != "" {
			return res, fmt.Errorf("engine %s exited with code %d: %s", op, res.ExitCode, lastLines(out, 5))
		}
		return res, fmt.Errorf("engine %s exited with code %d", op, res.ExitCode)
	}
	e.logger.Debug(subsystem, "Engine %s finished in %s", op, res.Duration)
	return res, nil
}

// testReport is the subset of Test-DscConfiguration -Detailed output the
// agent reads.
type testReport struct {
	InDesiredState             *bool `json:"InDesiredState"`
	ResourcesNotInDesiredState []struct {
		ResourceID string `json:"ResourceId"`
	} `json:"ResourcesNotInDesiredState"`
}

// ParseCompliance reads a test result. JSON output (one object or an array
// of objects, one per target) must report InDesiredState for every entry.
// Anything else is judged by its last non-empty line, parsed as a boolean.
func ParseCompliance(output string) (Compliance, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return Compliance{}, fmt.Errorf("engine test produced no output")
	}

	var reports []testReport
	switch trimmed[0] {
	case '{':
		var r testReport
		if err := json.Unmarshal([]byte(trimmed), &r); err == nil {
			reports = []testReport{r}
		}
	case '[':
		_ = json.Unmarshal([]byte(trimmed), &reports)
	}
	if len(reports) > 0 {
		return complianceFromReports(reports)
	}

	lines := strings.Split(trimmed, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	ok, err := strconv.ParseBool(strings.ToLower(last))
	if err != nil {
		return Compliance{}, fmt.Errorf("cannot read engine test result %q", last)
	}
	return Compliance{InDesiredState: ok}, nil
}

func complianceFromReports(reports []testReport) (Compliance, error) {
	out := Compliance{InDesiredState: true}
	var drifted []string
	for _, r := range reports {
		if r.InDesiredState == nil {
			return Compliance{}, fmt.Errorf("engine test output has no InDesiredState field")
		}
		if !*r.InDesiredState {
			out.InDesiredState = false
		}
		for _, res := range r.ResourcesNotInDesiredState {
			if res.ResourceID != "" {
				drifted = append(drifted, res.ResourceID)
			}
		}
	}
	if len(drifted) > 0 {
		out.Detail = "not in desired state: " + strings.Join(drifted, ", ")
	}
	return out, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
