package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"opentune/internal/agenterr"
	"opentune/internal/httpclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Token  string
	Body   map[string]any
}

// fakeServer mimics the node API of the control plane.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	requests []recordedRequest
	desired  string
	status   map[string]int
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{t: t, status: map[string]int{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Token: r.Header.Get("X-Node-Token")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	f.requests = append(f.requests, rec)

	if code, ok := f.status[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/desired-state"):
		_, _ = w.Write([]byte(f.desired))
	case strings.HasSuffix(r.URL.Path, "/package"):
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("X-Commit-Hash", "0123456789abcdef0123456789abcdef01234567")
		_, _ = w.Write([]byte("zip-bytes"))
	case strings.HasSuffix(r.URL.Path, "/runs"):
		_, _ = w.Write([]byte(`{"ok": true, "run_id": 41, "message": "Run recorded with status: success"}`))
	case strings.HasSuffix(r.URL.Path, "/heartbeat"):
		_, _ = w.Write([]byte(`{"ok": true, "server_time": "2026-05-01T10:00:00Z", "node_id": 7, "node_name": "web-01"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) client(opts ...Option) *Client {
	transport := httpclient.New("node-token", httpclient.WithSleeper(func(time.Duration) {}))
	opts = append([]Option{WithFacts(func(context.Context, string) HostFacts {
		return HostFacts{Hostname: "web-01", OS: "windows"}
	}, "")}, opts...)
	return NewClient(f.srv.URL+"/", 7, transport, opts...)
}

func TestFetchDesiredState(t *testing.T) {
	f := newFakeServer(t)
	f.desired = `{
		"policy_assigned": true,
		"policy_id": 3,
		"policy_name": "baseline",
		"repository": {"id": 2, "name": "dsc", "branch": "main"},
		"config_path": "nodes/web.ps1",
		"package_url": "https://cp/api/v1/agents/nodes/7/package"
	}`

	ds, err := f.client().FetchDesiredState(context.Background())
	require.NoError(t, err)

	assert.True(t, ds.PolicyAssigned)
	assert.Equal(t, int64(3), ds.PolicyID)
	assert.Equal(t, "baseline", ds.PolicyName)
	require.NotNil(t, ds.Repository)
	assert.Equal(t, "main", ds.Repository.Branch)
	assert.Equal(t, "", ds.Repository.URL)
	assert.Equal(t, "nodes/web.ps1", ds.ConfigPath)

	require.Len(t, f.requests, 1)
	assert.Equal(t, "/api/v1/agents/nodes/7/desired-state", f.requests[0].Path)
	assert.Equal(t, "node-token", f.requests[0].Token)
}

func TestFetchDesiredState_NoPolicy(t *testing.T) {
	f := newFakeServer(t)
	f.desired = `{"policy_assigned": false}`

	ds, err := f.client().FetchDesiredState(context.Background())
	require.NoError(t, err)
	assert.False(t, ds.PolicyAssigned)
	assert.Nil(t, ds.Repository)
}

func TestFetchDesiredState_Unauthorized(t *testing.T) {
	f := newFakeServer(t)
	f.status["/api/v1/agents/nodes/7/desired-state"] = http.StatusUnauthorized

	_, err := f.client().FetchDesiredState(context.Background())
	require.Error(t, err)

	var authErr *agenterr.AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.Len(t, f.requests, 1)
}

func TestDownloadPackage_DefaultURL(t *testing.T) {
	f := newFakeServer(t)
	dest := filepath.Join(t.TempDir(), "downloads", "package.zip")

	ok, err := f.client().DownloadPackage(context.Background(), "", dest)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))
	assert.Equal(t, "/api/v1/agents/nodes/7/package", f.requests[0].Path)
}

func TestFetchPackage_ReadsCommitHeader(t *testing.T) {
	f := newFakeServer(t)
	dest := filepath.Join(t.TempDir(), "package.zip")

	pkg, err := f.client().FetchPackage(context.Background(), f.srv.URL+"/api/v1/agents/nodes/7/package", dest)
	require.NoError(t, err)
	assert.Equal(t, dest, pkg.Path)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", pkg.CommitHash)
	assert.Empty(t, pkg.PackageHash)
	assert.FileExists(t, dest)
}

func TestReportRun(t *testing.T) {
	f := newFakeServer(t)
	commit := "abc1234"
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	resp, err := f.client().ReportRun(context.Background(), RunReport{
		PolicyID:  3,
		GitCommit: &commit,
		Status:    StatusSuccess,
		Summary:   strings.Repeat("x", MaxSummaryLength+100),
		StartedAt: &started,
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, int64(41), resp.RunID)

	require.Len(t, f.requests, 1)
	body := f.requests[0].Body
	assert.Equal(t, "/api/v1/agents/nodes/7/runs", f.requests[0].Path)
	assert.Equal(t, float64(3), body["policy_id"])
	assert.Equal(t, "abc1234", body["git_commit"])
	assert.Equal(t, "success", body["status"])
	assert.Len(t, body["summary"], MaxSummaryLength)
	assert.Equal(t, "2026-05-01T10:00:00Z", body["started_at"])
	assert.NotContains(t, body, "finished_at")
}

func TestReportRun_OmitsEmptyCommit(t *testing.T) {
	f := newFakeServer(t)
	empty := ""

	_, err := f.client().ReportRun(context.Background(), RunReport{PolicyID: 3, GitCommit: &empty, Status: StatusFailed})
	require.NoError(t, err)
	assert.NotContains(t, f.requests[0].Body, "git_commit")
}

func TestHeartbeat(t *testing.T) {
	f := newFakeServer(t)

	resp, err := f.client(WithVersion("1.4.0")).Heartbeat(context.Background(), StatusSkipped, "No policy assigned")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "web-01", resp.NodeName)
	assert.Equal(t, int64(7), resp.NodeID)

	body := f.requests[0].Body
	assert.Equal(t, "/api/v1/agents/nodes/7/heartbeat", f.requests[0].Path)
	assert.Equal(t, "web-01", body["hostname"])
	assert.Equal(t, "1.4.0", body["agent_version"])
	assert.Equal(t, "skipped", body["status"])
	assert.Equal(t, "No policy assigned", body["summary"])
}

func TestCollectHostFacts(t *testing.T) {
	facts := CollectHostFacts(context.Background(), t.TempDir())
	assert.NotEmpty(t, facts.OS)
	assert.NotEmpty(t, facts.Hostname)
}
