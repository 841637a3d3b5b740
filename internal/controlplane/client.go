// Package controlplane is the agent's view of the control plane's node API:
// desired state, package download, run reports and heartbeats.
//
// Every call is a fresh round trip through the retrying HTTP client; nothing
// is cached between calls.
package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"opentune/pkg/logging"
	pkgstrings "opentune/pkg/strings"
)

const subsystem = "controlplane"

// Transport is the subset of *httpclient.Client the control plane client
// needs.
type Transport interface {
	Do(ctx context.Context, method, url string, body, out any) error
	DownloadFile(ctx context.Context, url, destPath string) (http.Header, error)
}

// Client talks to /api/v1/agents/nodes/{id}.
type Client struct {
	transport Transport
	baseURL   string
	nodeID    int64
	version   string
	diskPath  string
	facts     FactsCollector
	logger    *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithVersion sets the agent version reported in heartbeats.
func WithVersion(v string) Option {
	return func(c *Client) {
		c.version = v
	}
}

// WithFacts replaces the host facts collector. diskPath is passed to it.
func WithFacts(collect FactsCollector, diskPath string) Option {
	return func(c *Client) {
		c.facts = collect
		c.diskPath = diskPath
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for node nodeID of the control plane at
// serverURL.
func NewClient(serverURL string, nodeID int64, transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		baseURL:   fmt.Sprintf("%s/api/v1/agents/nodes/%d", strings.TrimRight(serverURL, "/"), nodeID),
		nodeID:    nodeID,
		facts:     CollectHostFacts,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the node's API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PackageURL is the default package endpoint, used when the desired state
// does not name one.
func (c *Client) PackageURL() string {
	return c.baseURL + "/package"
}

// FetchDesiredState asks which policy this node should converge to.
func (c *Client) FetchDesiredState(ctx context.Context) (*DesiredState, error) {
	var ds DesiredState
	if err := c.transport.Do(ctx, http.MethodGet, c.baseURL+"/desired-state", nil, &ds); err != nil {
		return nil, fmt.Errorf("failed to fetch desired state: %w", err)
	}
	if ds.PolicyAssigned {
		c.logger.Debug(subsystem, "Desired state: policy %d (%s), config path %q", ds.PolicyID, ds.PolicyName, ds.ConfigPath)
	} else {
		c.logger.Debug(subsystem, "Desired state: no policy assigned")
	}
	return &ds, nil
}

// DownloadPackage fetches the policy package to destPath. An empty url
// falls back to PackageURL.
func (c *Client) DownloadPackage(ctx context.Context, url, destPath string) (bool, error) {
	if _, err := c.FetchPackage(ctx, url, destPath); err != nil {
		return false, err
	}
	return true, nil
}

// FetchPackage is DownloadPackage returning the hashes the control plane
// sends along with the archive.
func (c *Client) FetchPackage(ctx context.Context, url, destPath string) (*Package, error) {
	if url == "" {
		url = c.PackageURL()
	}
	c.logger.Debug(subsystem, "Downloading package %s to %s", url, destPath)
	header, err := c.transport.DownloadFile(ctx, url, destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download package: %w", err)
	}
	return &Package{
		Path:        destPath,
		CommitHash:  strings.TrimSpace(header.Get(CommitHashHeader)),
		PackageHash: strings.TrimSpace(header.Get(PackageHashHeader)),
	}, nil
}

// ReportRun posts the outcome of a run. The summary is cut to the length the
// control plane accepts and an empty commit is omitted.
func (c *Client) ReportRun(ctx context.Context, report RunReport) (*RunReportResponse, error) {
	if report.GitCommit != nil && *report.GitCommit == "" {
		report.GitCommit = nil
	}
	report.Summary = pkgstrings.Truncate(report.Summary, MaxSummaryLength)

	var resp RunReportResponse
	if err := c.transport.Do(ctx, http.MethodPost, c.baseURL+"/runs", report, &resp); err != nil {
		return nil, fmt.Errorf("failed to report run: %w", err)
	}
	c.logger.Debug(subsystem, "Run reported as #%d: %s", resp.RunID, resp.Message)
	return &resp, nil
}

// Heartbeat checks in with the control plane. status and summary may be
// empty.
func (c *Client) Heartbeat(ctx context.Context, status, summary string) (*HeartbeatResponse, error) {
	body := HeartbeatRequest{
		Status:  status,
		Summary: pkgstrings.Truncate(summary, MaxSummaryLength),
	}
	if c.facts != nil {
		body.HostFacts = c.facts(ctx, c.diskPath)
	}
	body.AgentVersion = c.version

	var resp HeartbeatResponse
	if err := c.transport.Do(ctx, http.MethodPost, c.baseURL+"/heartbeat", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to send heartbeat: %w", err)
	}
	return &resp, nil
}
