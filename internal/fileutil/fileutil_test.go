package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "standup", "standup"},
		{"illegal chars", `a/b\c:d*e?f"g<h>i|j`, "a-b-c-d-e-f-g-h-i-j"},
		{"spaces collapse", "weekly   team  sync", "weekly-team-sync"},
		{"trim dots and hyphens", "..-notes-..", "notes"},
		{"empty", "", "fallback"},
		{"only illegal", "///", "fallback"},
		{"unicode kept", "Besprechung Köln", "Besprechung-Köln"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForFilename(tt.in, "fallback"); got != tt.want {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeForFilename_Truncates(t *testing.T) {
	got := SanitizeForFilename(strings.Repeat("ä", 80), "x")
	if n := len([]rune(got)); n != 50 {
		t.Errorf("length = %d runes, want 50", n)
	}
}

func TestStems(t *testing.T) {
	if got := Stem("/tmp/talks/keynote.final.mp3"); got != "keynote.final" {
		t.Errorf("Stem = %q", got)
	}
	tests := map[string]string{
		"https://cdn.example.com/pods/ep12.mp3?sig=1": "ep12",
		"https://example.com/":                        "example.com",
		"https://example.com":                         "example.com",
		"::bad":                                       "",
	}
	for in, want := range tests {
		if got := URLStem(in); got != want {
			t.Errorf("URLStem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteMetadata_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "keynote")
	meta := &ExportMetadata{
		SessionID:  "abc123",
		Mode:       "file",
		Source:     "/tmp/keynote.mp3",
		Language:   "de",
		Segments:   3,
		Files:      []string{base + ".txt"},
		ExportedAt: time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC),
	}
	if err := WriteMetadata(base, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	got, err := ReadMetadata(base)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got.SessionID != "abc123" || got.Language != "de" || got.Segments != 3 || !got.ExportedAt.Equal(meta.ExportedAt) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteMetadata_MissingDir(t *testing.T) {
	if err := WriteMetadata(filepath.Join(t.TempDir(), "nope", "x"), &ExportMetadata{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
