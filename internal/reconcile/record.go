package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RecordFileName is the last-run record inside the data directory.
const RecordFileName = "last_run.json"

// RecordPath returns the last-run record path for dataDir.
func RecordPath(dataDir string) string {
	return filepath.Join(dataDir, RecordFileName)
}

// WriteRecord stores res at path, replacing the previous record atomically.
func WriteRecord(path string, res *RunResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".last_run-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write run record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadRecord reads the record written by the previous run.
func LoadRecord(path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run recorded yet at %s", path)
		}
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}
	var res RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("run record %s is corrupt: %w", path, err)
	}
	return &res, nil
}
