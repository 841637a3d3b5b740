package config

import (
	"time"
)

const (
	// DefaultBranch is used when a repository locator omits the branch.
	DefaultBranch = "main"

	// DefaultMaxAttempts is the number of tries for a control-plane request.
	DefaultMaxAttempts = 3

	// DefaultRequestTimeout bounds a single JSON request.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultDownloadTimeout bounds a single package download.
	DefaultDownloadTimeout = 10 * time.Minute
)

// DefaultBackoff is the delay before the 2nd, 3rd, ... attempt. Attempts past
// the end of the list reuse the last entry.
func DefaultBackoff() []time.Duration {
	return []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
}

// DefaultHTTPConfig returns the control-plane client defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		MaxAttempts:     DefaultMaxAttempts,
		Backoff:         DefaultBackoff(),
		Timeout:         DefaultRequestTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
	}
}

// DefaultEngineConfig targets PowerShell DSC through pwsh. Scripts are run
// with an output path and are expected to emit .mof documents there.
func DefaultEngineConfig() EngineConfig {
	pwsh := []string{"pwsh", "-NoProfile", "-NonInteractive"}
	return EngineConfig{
		ScriptExtensions:  []string{".ps1"},
		ArtifactExtension: ".mof",
		Compile: append(append([]string{}, pwsh...),
			"-File", "{{ .Script }}", "-OutputPath", "{{ .OutputDir }}"),
		Test: append(append([]string{}, pwsh...),
			"-Command", "Test-DscConfiguration -Path {{ .ArtifactDir | squote }} -Detailed | ConvertTo-Json -Depth 3"),
		Apply: append(append([]string{}, pwsh...),
			"-Command", "Start-DscConfiguration -Path {{ .ArtifactDir | squote }} -Wait -Force -Verbose -ErrorAction Stop"),
	}
}
