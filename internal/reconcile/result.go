package reconcile

import (
	"time"

	"opentune/internal/applier"
	"opentune/internal/config"
)

// Status is the externally visible outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// RunResult is produced by every run, whatever happened. It is also the
// content of the last-run record.
type RunResult struct {
	RunID      string      `json:"run_id"`
	Mode       config.Mode `json:"mode,omitempty"`
	Status     Status      `json:"status"`
	Revision   string      `json:"revision,omitempty"`
	Summary    string      `json:"summary"`
	ErrorKind  string      `json:"error_kind,omitempty"`
	PolicyID   int64       `json:"policy_id,omitempty"`
	PolicyName string      `json:"policy_name,omitempty"`
	SourceKind string      `json:"source_kind,omitempty"`
	Outcome    string      `json:"outcome,omitempty"`
	Forced     bool        `json:"forced,omitempty"`
	Reported   bool        `json:"reported"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`

	// State is the last state the run was in before returning to Idle.
	State State `json:"-"`

	Apply *applier.Result `json:"-"`
	Err   error           `json:"-"`
}

// ExitCode maps the status to the process exit code.
func (r *RunResult) ExitCode() int {
	if r == nil || r.Status == StatusFailed {
		return 1
	}
	return 0
}

// Elapsed is the wall-clock duration of the run.
func (r *RunResult) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
