package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"opentune/internal/agenterr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Centralized(t *testing.T) {
	path := writeConfig(t, `{
		"mode": "centralized",
		"server_url": "https://cp.example.com/",
		"node_id": 12,
		"node_token": "secret",
		"use_git": true
	}`)

	cfg, err := Load(path, "/var/lib/opentune")
	require.NoError(t, err)

	assert.Equal(t, ModeCentralized, cfg.Mode)
	assert.Nil(t, cfg.Standalone)
	require.NotNil(t, cfg.Centralized)
	assert.Equal(t, "https://cp.example.com", cfg.Centralized.ServerURL)
	assert.Equal(t, int64(12), cfg.Centralized.NodeID)
	assert.Equal(t, "secret", cfg.Centralized.NodeToken)
	assert.True(t, cfg.Centralized.UseGit)
	assert.Equal(t, "/var/lib/opentune", cfg.WorkDir)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, DefaultHTTPConfig(), cfg.HTTP)
	assert.Equal(t, DefaultEngineConfig(), cfg.Engine)
}

func TestLoad_StandaloneRepository(t *testing.T) {
	path := writeConfig(t, `{"mode": "standalone", "repo_url": "https://git.example.com/cfg.git", "config_path": "nodes/web"}`)

	cfg, err := Load(path, "/data")
	require.NoError(t, err)

	require.NotNil(t, cfg.Standalone)
	assert.True(t, cfg.Standalone.UsesRepository())
	assert.Equal(t, DefaultBranch, cfg.Standalone.Branch)
	assert.Equal(t, "nodes/web", cfg.Standalone.ConfigPath)
}

func TestLoad_StandalonePackage(t *testing.T) {
	path := writeConfig(t, `{"mode": "standalone", "package_path": "/srv/cfg.zip", "config_path": "web.ps1", "work_dir": "/tmp/work"}`)

	cfg, err := Load(path, "/data")
	require.NoError(t, err)

	assert.False(t, cfg.Standalone.UsesRepository())
	assert.Equal(t, "", cfg.Standalone.Branch)
	assert.Equal(t, "/srv/cfg.zip", cfg.Standalone.PackagePath)
	assert.Equal(t, "/tmp/work", cfg.WorkDir)
}

func TestLoad_AcceptsYAML(t *testing.T) {
	path := writeConfig(t, "mode: standalone\npackage_path: /srv/cfg.zip\nconfig_path: web.ps1\n")

	cfg, err := Load(path, "/data")
	require.NoError(t, err)
	assert.Equal(t, ModeStandalone, cfg.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := Load(path, "/data")
	require.Error(t, err)

	var cfgErr *agenterr.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.Path)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "empty document",
			content: "   ",
			wantMsg: "empty",
		},
		{
			name:    "malformed json",
			content: `{"mode": "standalone",`,
			wantMsg: "malformed",
		},
		{
			name:    "unknown field",
			content: `{"mode": "standalone", "package_path": "/p.zip", "config_path": "a", "nodeid": 3}`,
			wantMsg: "malformed",
		},
		{
			name:    "missing mode",
			content: `{"package_path": "/p.zip", "config_path": "a"}`,
			wantMsg: "field 'mode': is required",
		},
		{
			name:    "unknown mode",
			content: `{"mode": "hybrid"}`,
			wantMsg: "must be one of: standalone, centralized",
		},
		{
			name:    "centralized missing node id",
			content: `{"mode": "centralized", "server_url": "https://cp", "node_token": "t"}`,
			wantMsg: "field 'node_id': is required in centralized mode",
		},
		{
			name:    "centralized non-positive node id",
			content: `{"mode": "centralized", "server_url": "https://cp", "node_id": 0, "node_token": "t"}`,
			wantMsg: "must be a positive integer",
		},
		{
			name:    "centralized missing token",
			content: `{"mode": "centralized", "server_url": "https://cp", "node_id": 1}`,
			wantMsg: "field 'node_token': is required in centralized mode",
		},
		{
			name:    "centralized bad url",
			content: `{"mode": "centralized", "server_url": "cp.example.com", "node_id": 1, "node_token": "t"}`,
			wantMsg: "absolute http or https URL",
		},
		{
			name:    "centralized with standalone field",
			content: `{"mode": "centralized", "server_url": "https://cp", "node_id": 1, "node_token": "t", "repo_url": "x"}`,
			wantMsg: "field 'repo_url': is not allowed in centralized mode",
		},
		{
			name:    "standalone without source",
			content: `{"mode": "standalone", "config_path": "a"}`,
			wantMsg: "either repo_url or package_path",
		},
		{
			name:    "standalone with both sources",
			content: `{"mode": "standalone", "repo_url": "https://g/r.git", "package_path": "/p.zip", "config_path": "a"}`,
			wantMsg: "cannot be combined with repo_url",
		},
		{
			name:    "standalone missing config path",
			content: `{"mode": "standalone", "package_path": "/p.zip"}`,
			wantMsg: "field 'config_path': is required in standalone mode",
		},
		{
			name:    "standalone escaping config path",
			content: `{"mode": "standalone", "package_path": "/p.zip", "config_path": "../etc"}`,
			wantMsg: "must not escape the source root",
		},
		{
			name:    "standalone with node token",
			content: `{"mode": "standalone", "package_path": "/p.zip", "config_path": "a", "node_token": "t"}`,
			wantMsg: "field 'node_token': is not allowed in standalone mode",
		},
		{
			name:    "bad backoff",
			content: `{"mode": "standalone", "package_path": "/p.zip", "config_path": "a", "http": {"backoff": ["soon"]}}`,
			wantMsg: "field 'http.backoff[0]'",
		},
		{
			name:    "empty engine command",
			content: `{"mode": "standalone", "package_path": "/p.zip", "config_path": "a", "engine": {"apply": [""]}}`,
			wantMsg: "field 'engine.apply': must name a command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)

			_, err := Load(path, "/data")
			require.Error(t, err)

			var cfgErr *agenterr.ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, path, cfgErr.Path)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, "config", agenterr.Kind(err))
		})
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"mode": "standalone",
		"package_path": "/p.zip",
		"config_path": "a",
		"metrics_textfile": "/var/lib/node_exporter/opentune.prom",
		"http": {"max_attempts": 5, "backoff": ["1s", "2s"], "timeout": "10s"},
		"engine": {"script_extensions": ["SH"], "artifact_extension": "json", "apply": ["apply-tool", "{{ .ArtifactDir }}"]}
	}`), "/data")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/node_exporter/opentune.prom", cfg.MetricsTextfile)
	assert.Equal(t, 5, cfg.HTTP.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.HTTP.Backoff)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, DefaultDownloadTimeout, cfg.HTTP.DownloadTimeout)

	assert.Equal(t, []string{".sh"}, cfg.Engine.ScriptExtensions)
	assert.Equal(t, ".json", cfg.Engine.ArtifactExtension)
	assert.Equal(t, []string{"apply-tool", "{{ .ArtifactDir }}"}, cfg.Engine.Apply)
	assert.Equal(t, DefaultEngineConfig().Compile, cfg.Engine.Compile)
}

func TestParse_ReportsAllErrors(t *testing.T) {
	_, err := Parse([]byte(`{"mode": "centralized"}`), "/data")
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)
	assert.Contains(t, err.Error(), "validation failed")
}
