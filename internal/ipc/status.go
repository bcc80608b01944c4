package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tiroq/memoscribe/internal/session"
)

// Status is what the daemon publishes in status.json.
type Status struct {
	Session     session.Snapshot `json:"session"`
	Backend     string           `json:"backend"`
	LastCommand string           `json:"last_command,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	ServerAddr  string           `json:"server_addr,omitempty"`
	PID         int              `json:"pid"`
	Timestamp   time.Time        `json:"timestamp"`
}

// StatusPath returns the status file inside dir.
func StatusPath(dir string) string { return filepath.Join(dir, "status.json") }

// WriteStatus persists status to dir/status.json using atomic write
func WriteStatus(dir string, status *Status) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(dir), status)
}

// ReadStatus loads dir/status.json.
func ReadStatus(dir string) (*Status, error) {
	data, err := os.ReadFile(StatusPath(dir))
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil

	return os.Rename(tmpPath, path)
}
