// Package app wires the agent together for one process invocation.
//
// # Overview
//
// The cobra commands in cmd/ never construct domain objects themselves. They
// describe what the user asked for in a Config and hand it to this package,
// which resolves process settings, creates the logger and builds the
// collaborators a reconciliation run needs.
//
// # Process settings
//
// Settings are resolved in this order, first match wins:
//
//  1. command line flags (--data-dir, --config, --log-dir, --debug)
//  2. OPENTUNE_* environment variables
//  3. a <datadir>/.env file, loaded without overriding the environment
//  4. built-in defaults
//
// The data directory is resolved before the .env file is read, so
// OPENTUNE_DATA_DIR can only come from flags or the real environment.
//
//	OPENTUNE_DATA_DIR   data directory (default /var/lib/opentune, %ProgramData%\OpenTune on Windows)
//	OPENTUNE_CONFIG     agent configuration file (default <datadir>/config.json)
//	OPENTUNE_LOG_DIR    daily log files (default <datadir>/logs, "-" disables)
//	OPENTUNE_LOG_LEVEL  debug, info, warn or error
//
// # Components
//
// NewBuilder returns the reconcile.Builder used in production. It renders the
// engine command templates, creates the git and package sources and, in
// centralized mode, two control plane clients sharing one HTTP stack: the
// primary client retries according to the http section of the agent
// configuration, the fallback client makes a single attempt and carries the
// best-effort report of a failed run.
//
// # Lifecycle
//
//	app, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	defer app.Close()
//	result := app.Run(ctx, force)
//	os.Exit(result.ExitCode())
package app
