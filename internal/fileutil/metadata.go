// Package fileutil names exported files and writes their sidecar metadata.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportMetadata is the sidecar written alongside each export.
type ExportMetadata struct {
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	Source     string    `json:"source"`
	Language   string    `json:"language"`
	Backend    string    `json:"backend,omitempty"`
	Segments   int       `json:"segments"`
	Duration   string    `json:"duration,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	HasSummary bool      `json:"has_summary"`
	Files      []string  `json:"files"`
	ExportedAt time.Time `json:"exported_at"`
}

// MetadataPath returns <basePath>.meta.json.
func MetadataPath(basePath string) string {
	return basePath + ".meta.json"
}

// WriteMetadata writes the <basePath>.meta.json sidecar using a temp file
// and rename so readers never see a partial document.
func WriteMetadata(basePath string, meta *ExportMetadata) error {
	metaPath := MetadataPath(basePath)
	dir := filepath.Dir(metaPath)

	tmpFile, err := os.CreateTemp(dir, "meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads a sidecar written by WriteMetadata.
func ReadMetadata(basePath string) (*ExportMetadata, error) {
	data, err := os.ReadFile(MetadataPath(basePath))
	if err != nil {
		return nil, err
	}
	var meta ExportMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}
