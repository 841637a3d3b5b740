package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRetentionDays is how long daily log files are kept.
	DefaultRetentionDays = 7

	logFilePrefix = "agent-"
	logFileSuffix = ".log"
	logDateLayout = "2006-01-02"
)

// DailyFile is an append-only io.WriteCloser that writes to one file per UTC
// day (agent-YYYY-MM-DD.log) and prunes files older than the retention window
// each time a new day's file is opened.
type DailyFile struct {
	dir       string
	retention int
	now       func() time.Time

	mu      sync.Mutex
	current *os.File
	day     string
}

// NewDailyFile creates the directory if needed and opens today's file.
func NewDailyFile(dir string, retentionDays int) (*DailyFile, error) {
	return newDailyFile(dir, retentionDays, time.Now)
}

func newDailyFile(dir string, retentionDays int, now func() time.Time) (*DailyFile, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	f := &DailyFile{dir: dir, retention: retentionDays, now: now}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rotateLocked(f.now().UTC()); err != nil {
		return nil, err
	}
	return f, nil
}

// FileName returns the log file name used for the given instant.
func FileName(t time.Time) string {
	return logFilePrefix + t.UTC().Format(logDateLayout) + logFileSuffix
}

// Write implements io.Writer.
func (f *DailyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now().UTC()
	if now.Format(logDateLayout) != f.day || f.current == nil {
		if err := f.rotateLocked(now); err != nil {
			return 0, err
		}
	}
	return f.current.Write(p)
}

// Close closes the current file.
func (f *DailyFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	err := f.current.Close()
	f.current = nil
	return err
}

// Path returns the path of the file currently being written.
func (f *DailyFile) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filepath.Join(f.dir, logFilePrefix+f.day+logFileSuffix)
}

func (f *DailyFile) rotateLocked(now time.Time) error {
	if f.current != nil {
		_ = f.current.Close()
		f.current = nil
	}

	day := now.Format(logDateLayout)
	path := filepath.Join(f.dir, logFilePrefix+day+logFileSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	f.current = file
	f.day = day

	f.pruneLocked(now)
	return nil
}

// pruneLocked removes log files whose date is outside the retention window.
// Files that do not follow the naming scheme are left alone.
func (f *DailyFile) pruneLocked(now time.Time) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return
	}

	today, _ := time.Parse(logDateLayout, now.Format(logDateLayout))
	cutoff := today.AddDate(0, 0, -(f.retention - 1))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), logFileSuffix)
		day, err := time.Parse(logDateLayout, date)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(f.dir, name))
		}
	}
}
