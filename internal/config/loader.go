package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opentune/internal/agenterr"

	"sigs.k8s.io/yaml"
)

// ConfigFileName is the default name of the agent configuration file inside
// the data directory.
const ConfigFileName = "config.json"

// DefaultConfigPath returns <dataDir>/config.json.
func DefaultConfigPath(dataDir string) string {
	return filepath.Join(dataDir, ConfigFileName)
}

// Load reads, validates and converts the agent configuration at path. The
// work directory defaults to dataDir when the document does not set one.
//
// Every failure is returned as *agenterr.ConfigError. Unknown fields are
// rejected so that a typo cannot silently select a default.
func Load(path, dataDir string) (*AgentConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &agenterr.ConfigError{Path: path, Err: fmt.Errorf("configuration file not found")}
		}
		return nil, &agenterr.ConfigError{Path: path, Err: err}
	}

	cfg, err := Parse(data, dataDir)
	if err != nil {
		var cfgErr *agenterr.ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
			return nil, cfgErr
		}
		return nil, &agenterr.ConfigError{Path: path, Err: err}
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes a JSON (or YAML) document and validates it.
func Parse(data []byte, dataDir string) (*AgentConfiguration, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &agenterr.ConfigError{Err: fmt.Errorf("configuration document is empty")}
	}

	var doc Document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, &agenterr.ConfigError{Err: fmt.Errorf("malformed configuration document: %w", err)}
	}

	cfg, verrs := doc.convert(dataDir)
	if verrs.HasErrors() {
		return nil, &agenterr.ConfigError{Err: verrs}
	}
	return cfg, nil
}

func (d Document) convert(dataDir string) (*AgentConfiguration, ValidationErrors) {
	var verrs ValidationErrors

	cfg := &AgentConfiguration{
		Mode:            Mode(strings.ToLower(strings.TrimSpace(d.Mode))),
		WorkDir:         d.WorkDir,
		MetricsTextfile: d.MetricsTextfile,
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = dataDir
	}

	switch cfg.Mode {
	case "":
		verrs.Add("mode", "is required")
	case ModeCentralized:
		cfg.Centralized = d.centralized(&verrs)
	case ModeStandalone:
		cfg.Standalone = d.standalone(&verrs)
	default:
		verrs.Check(ValidateOneOf("mode", d.Mode, []string{string(ModeStandalone), string(ModeCentralized)}))
	}

	if cfg.WorkDir == "" {
		verrs.Add("work_dir", "is required when no data directory is configured")
	}

	cfg.HTTP = d.httpConfig(&verrs)
	cfg.Engine = d.engineConfig(&verrs)

	return cfg, verrs
}

func (d Document) centralized(verrs *ValidationErrors) *CentralizedConfig {
	const mode = "centralized"

	verrs.Check(ValidateRequired("server_url", d.ServerURL, mode))
	if d.ServerURL != "" {
		verrs.Check(ValidateHTTPURL("server_url", d.ServerURL))
	}
	if d.NodeID == nil {
		verrs.Add("node_id", "is required in centralized mode")
	} else if *d.NodeID <= 0 {
		verrs.Add("node_id", "must be a positive integer", *d.NodeID)
	}
	verrs.Check(ValidateRequired("node_token", d.NodeToken, mode))

	verrs.Check(ValidateAbsent("repo_url", d.RepoURL != "", mode))
	verrs.Check(ValidateAbsent("branch", d.Branch != "", mode))
	verrs.Check(ValidateAbsent("package_path", d.PackagePath != "", mode))
	verrs.Check(ValidateAbsent("config_path", d.ConfigPath != "", mode))

	cfg := &CentralizedConfig{
		ServerURL: strings.TrimRight(d.ServerURL, "/"),
		NodeToken: d.NodeToken,
	}
	if d.NodeID != nil {
		cfg.NodeID = *d.NodeID
	}
	if d.UseGit != nil {
		cfg.UseGit = *d.UseGit
	}
	return cfg
}

func (d Document) standalone(verrs *ValidationErrors) *StandaloneConfig {
	const mode = "standalone"

	verrs.Check(ValidateRequired("config_path", d.ConfigPath, mode))
	if d.ConfigPath != "" {
		verrs.Check(ValidateRelativePath("config_path", d.ConfigPath))
	}

	switch {
	case d.RepoURL == "" && d.PackagePath == "":
		verrs.Add("repo_url", "either repo_url or package_path is required in standalone mode")
	case d.RepoURL != "" && d.PackagePath != "":
		verrs.Add("package_path", "cannot be combined with repo_url")
	}
	if d.Branch != "" && d.RepoURL == "" {
		verrs.Add("branch", "requires repo_url")
	}

	verrs.Check(ValidateAbsent("server_url", d.ServerURL != "", mode))
	verrs.Check(ValidateAbsent("node_id", d.NodeID != nil, mode))
	verrs.Check(ValidateAbsent("node_token", d.NodeToken != "", mode))
	verrs.Check(ValidateAbsent("use_git", d.UseGit != nil, mode))

	cfg := &StandaloneConfig{
		RepoURL:     d.RepoURL,
		Branch:      d.Branch,
		PackagePath: d.PackagePath,
		ConfigPath:  d.ConfigPath,
	}
	if cfg.RepoURL != "" && cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	return cfg
}

func (d Document) httpConfig(verrs *ValidationErrors) HTTPConfig {
	cfg := DefaultHTTPConfig()
	if d.HTTP == nil {
		return cfg
	}

	if d.HTTP.MaxAttempts < 0 {
		verrs.Add("http.max_attempts", "must not be negative", d.HTTP.MaxAttempts)
	} else if d.HTTP.MaxAttempts > 0 {
		cfg.MaxAttempts = d.HTTP.MaxAttempts
	}

	if len(d.HTTP.Backoff) > 0 {
		backoff, err := ValidateDurations("http.backoff", d.HTTP.Backoff)
		verrs.Check(err)
		if err == nil {
			cfg.Backoff = backoff
		}
	}

	if d.HTTP.Timeout != "" {
		timeout, err := time.ParseDuration(d.HTTP.Timeout)
		if err != nil || timeout <= 0 {
			verrs.Add("http.timeout", "must be a positive duration", d.HTTP.Timeout)
		} else {
			cfg.Timeout = timeout
		}
	}
	return cfg
}

func (d Document) engineConfig(verrs *ValidationErrors) EngineConfig {
	cfg := DefaultEngineConfig()
	if d.Engine == nil {
		return cfg
	}

	if len(d.Engine.ScriptExtensions) > 0 {
		cfg.ScriptExtensions = normalizeExtensions(d.Engine.ScriptExtensions)
	}
	if d.Engine.ArtifactExtension != "" {
		cfg.ArtifactExtension = normalizeExtensions([]string{d.Engine.ArtifactExtension})[0]
	}
	for _, ext := range cfg.ScriptExtensions {
		if ext == cfg.ArtifactExtension {
			verrs.Add("engine.artifact_extension", "must differ from the script extensions", ext)
		}
	}
	if d.Engine.Compile != nil {
		cfg.Compile = d.Engine.Compile
	}
	if d.Engine.Test != nil {
		cfg.Test = d.Engine.Test
	}
	if d.Engine.Apply != nil {
		cfg.Apply = d.Engine.Apply
	}

	for field, cmd := range map[string][]string{
		"engine.compile": cfg.Compile,
		"engine.test":    cfg.Test,
		"engine.apply":   cfg.Apply,
	} {
		if len(cmd) == 0 || strings.TrimSpace(cmd[0]) == "" {
			verrs.Add(field, "must name a command")
		}
	}
	return cfg
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
