// Package config loads and validates the agent configuration file.
//
// The file is a flat JSON object (YAML is accepted as well) stored at
// <data-dir>/config.json unless --config points elsewhere. The "mode" field
// selects which other fields are required:
//
//	{"mode": "centralized", "server_url": "https://cp.example.com",
//	 "node_id": 12, "node_token": "...", "use_git": false}
//
//	{"mode": "standalone", "repo_url": "https://git.example.com/cfg.git",
//	 "branch": "main", "config_path": "nodes/web"}
//
//	{"mode": "standalone", "package_path": "/srv/cfg.zip", "config_path": "web.ps1"}
//
// Fields belonging to the other mode and unknown fields are rejected. The
// optional "http" and "engine" objects tune the control-plane client and the
// configuration engine command templates; their defaults live in defaults.go.
//
// Every load failure is an *agenterr.ConfigError so callers can abort the run
// before any side effect.
package config
