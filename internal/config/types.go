package config

import (
	"time"
)

// Mode selects how the agent obtains its desired state.
type Mode string

const (
	// ModeStandalone reads the configuration source directly, with no control plane.
	ModeStandalone Mode = "standalone"
	// ModeCentralized asks the control plane for the desired state and reports back.
	ModeCentralized Mode = "centralized"
)

// Document is the on-disk shape of the agent configuration file. It is a flat
// JSON object; Load validates it and converts it into an AgentConfiguration.
type Document struct {
	Mode string `json:"mode"`

	// Centralized mode
	ServerURL string `json:"server_url,omitempty"`
	NodeID    *int64 `json:"node_id,omitempty"`
	NodeToken string `json:"node_token,omitempty"`
	UseGit    *bool  `json:"use_git,omitempty"`

	// Standalone mode
	RepoURL     string `json:"repo_url,omitempty"`
	Branch      string `json:"branch,omitempty"`
	PackagePath string `json:"package_path,omitempty"`
	ConfigPath  string `json:"config_path,omitempty"`

	// Shared, optional
	WorkDir         string          `json:"work_dir,omitempty"`
	MetricsTextfile string          `json:"metrics_textfile,omitempty"`
	HTTP            *HTTPDocument   `json:"http,omitempty"`
	Engine          *EngineDocument `json:"engine,omitempty"`
}

// HTTPDocument tunes the control-plane client. Durations use Go syntax ("15s").
type HTTPDocument struct {
	MaxAttempts int      `json:"max_attempts,omitempty"`
	Backoff     []string `json:"backoff,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
}

// EngineDocument overrides the configuration engine command templates.
type EngineDocument struct {
	ScriptExtensions  []string `json:"script_extensions,omitempty"`
	ArtifactExtension string   `json:"artifact_extension,omitempty"`
	Compile           []string `json:"compile,omitempty"`
	Test              []string `json:"test,omitempty"`
	Apply             []string `json:"apply,omitempty"`
}

// AgentConfiguration is the validated configuration for one run. Exactly one
// of Centralized and Standalone is set, matching Mode.
type AgentConfiguration struct {
	Mode        Mode
	Centralized *CentralizedConfig
	Standalone  *StandaloneConfig

	// WorkDir holds the cached repository, extracted package and compiled artifacts.
	WorkDir string

	// MetricsTextfile, when set, receives Prometheus gauges after every run.
	MetricsTextfile string

	HTTP   HTTPConfig
	Engine EngineConfig

	// Path is the file the configuration was loaded from.
	Path string
}

// CentralizedConfig identifies this node to the control plane.
type CentralizedConfig struct {
	ServerURL string
	NodeID    int64
	NodeToken string

	// UseGit clones the policy repository directly instead of downloading the
	// prepared package from the control plane.
	UseGit bool
}

// StandaloneConfig points at a configuration source without a control plane.
// Exactly one of RepoURL and PackagePath is set.
type StandaloneConfig struct {
	RepoURL     string
	Branch      string
	PackagePath string
	ConfigPath  string
}

// UsesRepository reports whether the source is a git repository.
func (s StandaloneConfig) UsesRepository() bool {
	return s.RepoURL != ""
}

// HTTPConfig holds the retry and timeout settings of the control-plane client.
type HTTPConfig struct {
	MaxAttempts     int
	Backoff         []time.Duration
	Timeout         time.Duration
	DownloadTimeout time.Duration
}

// EngineConfig describes how the configuration engine is invoked. Each
// command is a list of argument templates; see the applier package for the
// available template fields.
type EngineConfig struct {
	ScriptExtensions  []string
	ArtifactExtension string
	Compile           []string
	Test              []string
	Apply             []string
}
