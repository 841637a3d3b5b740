package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a textual level ("debug", "info", "warn", "error") into a LogLevel.
// The second return value reports whether the input was recognised.
func ParseLevel(raw string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, raw != ""
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// Options configures a Logger.
type Options struct {
	// Level is the minimum level written to any sink.
	Level LogLevel

	// Console receives a copy of every record. Nil disables console output.
	Console io.Writer

	// Dir enables the daily file sink when non-empty.
	Dir string

	// RetentionDays controls how many daily files are kept (default 7).
	RetentionDays int

	// Journal additionally forwards Summary lines to the systemd journal
	// when the journal socket is available.
	Journal bool
}

// Logger is the agent's logger. One instance is created per process and
// handed to every component; there is no package level logger.
type Logger struct {
	slog    *slog.Logger
	closer  io.Closer
	journal bool
	once    *sync.Once
}

// New creates a Logger writing to the console and, when opts.Dir is set, to a
// daily rotated file.
func New(opts Options) (*Logger, error) {
	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}

	var closer io.Closer
	if opts.Dir != "" {
		file, err := NewDailyFile(opts.Dir, opts.RetentionDays)
		if err != nil {
			return nil, fmt.Errorf("failed to open log directory %s: %w", opts.Dir, err)
		}
		writers = append(writers, file)
		closer = file
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	l := NewForWriter(opts.Level, out)
	l.closer = closer
	l.journal = opts.Journal
	return l, nil
}

// NewForWriter creates a Logger that writes text records to w.
func NewForWriter(level LogLevel, w io.Writer) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level.SlogLevel(),
	})
	return &Logger{
		slog: slog.New(handler),
		once: &sync.Once{},
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return NewForWriter(LevelError, io.Discard)
}

// With returns a Logger that adds key=value to every record.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{
		slog:    l.slog.With(key, value),
		closer:  l.closer,
		journal: l.journal,
		once:    l.once,
	}
}

func (l *Logger) log(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if l == nil || !l.slog.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.slog.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func (l *Logger) Debug(subsystem string, messageFmt string, args ...interface{}) {
	l.log(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func (l *Logger) Info(subsystem string, messageFmt string, args ...interface{}) {
	l.log(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(subsystem string, messageFmt string, args ...interface{}) {
	l.log(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func (l *Logger) Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	l.log(LevelError, subsystem, err, messageFmt, args...)
}

// Summary writes a single structured INFO line with the given fields. It is
// used for the end-of-run record and is mirrored to the systemd journal
// when journal forwarding is enabled.
func (l *Logger) Summary(subsystem, msg string, fields map[string]string) {
	if l == nil {
		return
	}

	keys := sortedKeys(fields)
	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("subsystem", subsystem))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, fields[k]))
	}
	l.slog.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)

	if l.journal {
		sendJournal(msg, fields)
	}
}

// Close releases the file sink. Calling Close more than once is safe.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		err = l.closer.Close()
	})
	return err
}

// ConsoleWriter returns os.Stderr unless quiet is set.
func ConsoleWriter(quiet bool) io.Writer {
	if quiet {
		return nil
	}
	return os.Stderr
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
