package controlplane

import (
	"bytes"
	"fmt"
	"time"
)

// Run statuses understood by the control plane.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// MaxSummaryLength is the longest run summary the control plane accepts.
const MaxSummaryLength = 4096

// Headers of the package download.
const (
	CommitHashHeader  = "X-Commit-Hash"
	PackageHashHeader = "X-Package-Hash"
)

// Package is a downloaded policy package.
type Package struct {
	Path string

	// CommitHash is the commit the package was built from, empty when the
	// control plane did not say.
	CommitHash  string
	PackageHash string
}

// DesiredState is the control plane's answer to "what should this node
// look like". When PolicyAssigned is false every other field is empty.
type DesiredState struct {
	PolicyAssigned bool        `json:"policy_assigned"`
	PolicyID       int64       `json:"policy_id,omitempty"`
	PolicyName     string      `json:"policy_name,omitempty"`
	Repository     *Repository `json:"repository,omitempty"`
	ConfigPath     string      `json:"config_path,omitempty"`
	PackageURL     string      `json:"package_url,omitempty"`
}

// Repository locates the policy's source repository. URL is only present
// when the control plane allows nodes to clone directly.
type Repository struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// RunReport is posted after every run that has a policy.
type RunReport struct {
	PolicyID   int64      `json:"policy_id"`
	GitCommit  *string    `json:"git_commit,omitempty"`
	Status     string     `json:"status"`
	Summary    string     `json:"summary,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunReportResponse acknowledges a RunReport.
type RunReportResponse struct {
	OK      bool   `json:"ok"`
	RunID   int64  `json:"run_id"`
	Message string `json:"message"`
}

// HeartbeatRequest is the optional heartbeat body. Status and Summary are
// set when the heartbeat stands in for a run report that has no policy id.
type HeartbeatRequest struct {
	HostFacts
	Status  string `json:"status,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	OK         bool      `json:"ok"`
	ServerTime Timestamp `json:"server_time"`
	NodeID     int64     `json:"node_id"`
	NodeName   string    `json:"node_name"`
}

// naiveLayouts are accepted for timestamps without a zone, which the
// control plane sends in UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp decodes RFC 3339 timestamps as well as zone-less ones, which
// are taken to be UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("timestamp must be a string, got %s", data)
	}
	raw := string(data[1 : len(data)-1])

	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
