// Package logging provides the structured logger used by every component of
// the agent.
//
// The logger is built on Go's standard slog package. Unlike a process-wide
// logger, a *Logger is constructed once per invocation and passed explicitly
// into the components that need it, so tests can hand each component its own
// buffer-backed logger.
//
// # Log Levels
//   - **Debug**: state transitions and external command lines
//   - **Info**: run progress (source synced, configuration applied)
//   - **Warn**: retries and best-effort failures that do not change the outcome
//   - **Error**: failures that make the run fail
//
// # Sinks
//
// Records go to the console (stderr unless --quiet) and to a daily file in
// the log directory. Files are named by UTC date, agent-2006-01-02.log, and
// files older than the retention window (seven days by default) are removed
// whenever a new day's file is opened.
//
// The end-of-run summary is written through Summary, which additionally sends
// it to the systemd journal when the agent runs under systemd.
//
// # Usage
//
//	logger, err := logging.New(logging.Options{
//	    Level:   logging.LevelInfo,
//	    Console: os.Stderr,
//	    Dir:     "/var/lib/opentune/logs",
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("Source", "Repository synced at %s", rev)
//	logger.Error("Applier", err, "Apply failed")
package logging
