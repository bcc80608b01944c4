package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the header line of an export file.
type DiagBundle struct {
	ExportedAt string         `json:"exported_at"`
	AppVersion string         `json:"app_version"`
	GoVersion  string         `json:"go_version"`
	OS         string         `json:"os"`
	Arch       string         `json:"arch"`
	LogFiles   []string       `json:"log_files"`
	EntryCount int            `json:"entry_count"`
	Skipped    int            `json:"skipped,omitempty"`
	Sessions   []string       `json:"sessions"`
	Events     map[string]int `json:"events"`
}

// Export merges the backup generation and logPath, re-redacts every entry,
// and writes dest/memoscribe-diag-<ts>.ndjson headed by a DiagBundle. Lines
// that are not JSON objects are dropped and counted in Skipped. It returns
// the output path and the number of entries written.
func Export(logPath, dest string) (path string, lines int, err error) {
	var sources []string
	if _, err := os.Stat(BackupPath(logPath)); err == nil {
		sources = append(sources, BackupPath(logPath))
	}
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	sources = append(sources, logPath)

	bundle := DiagBundle{
		AppVersion: Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFiles:   sources,
		Events:     map[string]int{},
	}
	sessions := map[string]bool{}
	var entries [][]byte
	for _, src := range sources {
		err := scanEntries(src, func(m map[string]interface{}) error {
			if id, _ := m["session_id"].(string); id != "" {
				sessions[id] = true
			}
			if ev, _ := m["event"].(string); ev != "" {
				bundle.Events[ev]++
			}
			if p, ok := m["payload"]; ok {
				m["payload"] = Redact(p)
			}
			data, err := json.Marshal(m)
			if err != nil {
				return err
			}
			entries = append(entries, data)
			return nil
		}, &bundle.Skipped)
		if err != nil {
			return "", 0, err
		}
	}
	for id := range sessions {
		bundle.Sessions = append(bundle.Sessions, id)
	}
	sort.Strings(bundle.Sessions)
	bundle.EntryCount = len(entries)

	now := time.Now().UTC()
	bundle.ExportedAt = now.Format(time.RFC3339)
	outPath := filepath.Join(dest, "memoscribe-diag-"+now.Format("20060102T150405")+".ndjson")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	w := bufio.NewWriter(out)
	header, err := json.Marshal(bundle)
	if err != nil {
		return "", 0, err
	}
	for _, line := range append([][]byte{header}, entries...) {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}
	return outPath, len(entries), nil
}

func scanEntries(path string, fn func(map[string]interface{}) error, skipped *int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("log file unreadable: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			*skipped++
			continue
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("log file unreadable: %w", err)
	}
	return nil
}
