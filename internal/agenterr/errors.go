// Package agenterr defines the error kinds a reconciliation run can end with.
//
// Each kind is a distinct struct type so callers classify with errors.As.
// All kinds wrap their cause and support errors.Is/As through Unwrap.
package agenterr

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed or incomplete agent configuration. It is
// never retried.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid agent configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid agent configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SourceSyncError reports a failed git or archive operation.
type SourceSyncError struct {
	Op     string // clone, fetch, checkout, extract, ...
	Source string // repository URL or archive path
	Output string // captured stderr of the external tool, if any
	Err    error
}

func (e *SourceSyncError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *SourceSyncError) Unwrap() error { return e.Err }

// CompilationError reports that the configuration path produced nothing the
// engine can apply.
type CompilationError struct {
	ConfigPath string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%s: %v", e.ConfigPath, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// ApplyError reports a failure of the engine's apply primitive.
type ApplyError struct {
	ArtifactDir string
	Err         error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.ArtifactDir, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// VerificationMismatch reports that apply succeeded but the post-apply
// compliance test still found drift.
type VerificationMismatch struct {
	ArtifactDir string
	Detail      string
}

func (e *VerificationMismatch) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("verification of %s failed: not in desired state", e.ArtifactDir)
	}
	return fmt.Sprintf("verification of %s failed: %s", e.ArtifactDir, e.Detail)
}

// NetworkError reports a request that failed after exhausting the retry
// budget. StatusCode is zero for transport level failures.
type NetworkError struct {
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed with status %d after %d attempt(s): %v", e.Method, e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError reports a non-retryable 4xx response (anything but 429).
type AuthError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s rejected with status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s rejected with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Kind names the classification of err, or "internal" for anything the
// agent does not model explicitly.
func Kind(err error) string {
	var (
		configErr  *ConfigError
		syncErr    *SourceSyncError
		compileErr *CompilationError
		applyErr   *ApplyError
		verifyErr  *VerificationMismatch
		netErr     *NetworkError
		authErr    *AuthError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &configErr):
		return "config"
	case errors.As(err, &syncErr):
		return "source_sync"
	case errors.As(err, &compileErr):
		return "compilation"
	case errors.As(err, &applyErr):
		return "apply"
	case errors.As(err, &verifyErr):
		return "verification"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "internal"
	}
}

// Summarize renders err as the one-line summary stored in a failed run result.
func Summarize(err error) string {
	if err == nil {
		return ""
	}
	prefix := map[string]string{
		"config":       "Configuration error",
		"source_sync":  "Source sync failed",
		"compilation":  "Compilation failed",
		"apply":        "Apply failed",
		"verification": "Verification failed",
		"auth":         "Control plane rejected request",
		"network":      "Control plane unreachable",
		"internal":     "Unexpected error",
	}[Kind(err)]
	return prefix + ": " + err.Error()
}
