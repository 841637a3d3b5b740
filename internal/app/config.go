package app

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"opentune/internal/config"
	"opentune/pkg/logging"
)

// Environment variables read by Resolve.
const (
	EnvDataDir  = "OPENTUNE_DATA_DIR"
	EnvConfig   = "OPENTUNE_CONFIG"
	EnvLogDir   = "OPENTUNE_LOG_DIR"
	EnvLogLevel = "OPENTUNE_LOG_LEVEL"
)

// Config holds the process settings of one invocation.
type Config struct {
	// DataDir holds the agent configuration, the work directory and the
	// last-run record.
	DataDir string

	// ConfigPath is the agent configuration file.
	ConfigPath string

	// LogDir receives daily log files. "-" disables file logging.
	LogDir string

	// Level is the log level. Debug forces LevelDebug.
	Level logging.LogLevel
	Debug bool

	// Quiet suppresses console logging.
	Quiet bool

	// Version is reported in heartbeats and the User-Agent.
	Version string

	// Console receives console log output. Defaults to stderr.
	Console io.Writer
}

// NewConfig creates a Config from command line flags.
func NewConfig(dataDir, configPath, logDir string, debug, quiet bool, version string) *Config {
	return &Config{
		DataDir:    dataDir,
		ConfigPath: configPath,
		LogDir:     logDir,
		Level:      logging.LevelInfo,
		Debug:      debug,
		Quiet:      quiet,
		Version:    version,
	}
}

// DefaultDataDir is the data directory used when nothing else is set.
func DefaultDataDir() string {
	if runtime.GOOS == "windows" {
		base := os.Getenv("ProgramData")
		if base == "" {
			base = `C:\ProgramData`
		}
		return filepath.Join(base, "OpenTune")
	}
	return "/var/lib/opentune"
}

// Resolve fills unset fields from the environment and defaults, loading
// <datadir>/.env on the way. lookup defaults to os.LookupEnv.
//
// A .env file that cannot be loaded is returned as an error, but every
// field is resolved regardless.
func (c *Config) Resolve(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	c.DataDir = firstSet(c.DataDir, env(lookup, EnvDataDir), DefaultDataDir())
	dotEnvErr := LoadDotEnv(c.DataDir)

	c.ConfigPath = firstSet(c.ConfigPath, env(lookup, EnvConfig), config.DefaultConfigPath(c.DataDir))
	c.LogDir = firstSet(c.LogDir, env(lookup, EnvLogDir), filepath.Join(c.DataDir, "logs"))

	if raw := env(lookup, EnvLogLevel); raw != "" && !c.Debug {
		if level, ok := logging.ParseLevel(raw); ok {
			c.Level = level
		}
	}
	if c.Debug {
		c.Level = logging.LevelDebug
	}
	return dotEnvErr
}

// NewLogger creates the process logger described by c.
func (c *Config) NewLogger() (*logging.Logger, error) {
	console := c.console()

	dir := c.LogDir
	if dir == "-" {
		dir = ""
	}
	return logging.New(logging.Options{
		Level:         c.Level,
		Console:       console,
		Dir:           dir,
		RetentionDays: logging.DefaultRetentionDays,
		Journal:       true,
	})
}

// NewConsoleLogger creates a logger without the file sink. It is used when
// the log directory cannot be opened.
func (c *Config) NewConsoleLogger() *logging.Logger {
	console := c.console()
	if console == nil {
		console = io.Discard
	}
	return logging.NewForWriter(c.Level, console)
}

func (c *Config) console() io.Writer {
	if c.Quiet {
		return nil
	}
	if c.Console == nil {
		return os.Stderr
	}
	return c.Console
}

func env(lookup func(string) (string, bool), key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
