package transcript

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
)

func sampleTranscript() *asr.Transcript {
	return &asr.Transcript{
		Text: "Hallo und willkommen. Kommen wir zur Tagesordnung.",
		Segments: []asr.Segment{
			{Start: 0, End: 5*time.Second + 230*time.Millisecond, Text: "Hallo und willkommen."},
			{Start: 5*time.Second + 500*time.Millisecond, End: 10*time.Second + 100*time.Millisecond, Text: "Kommen wir zur Tagesordnung."},
		},
		Language: "de",
		Backend:  "openai",
	}
}

func TestRenderText(t *testing.T) {
	got := string(RenderText(sampleTranscript()))
	want := "[00:00:00] Hallo und willkommen.\n[00:00:05] Kommen wir zur Tagesordnung.\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderText_NoSegmentsUsesText(t *testing.T) {
	got := string(RenderText(&asr.Transcript{Text: "plain body"}))
	if got != "plain body\n" {
		t.Errorf("got %q", got)
	}
	if out := RenderText(&asr.Transcript{}); len(out) != 0 {
		t.Errorf("expected empty output, got %q", out)
	}
}

func TestRenderSRT(t *testing.T) {
	got := string(RenderSRT(sampleTranscript()))
	want := "1\n00:00:00,000 --> 00:00:05,230\nHallo und willkommen.\n" +
		"\n2\n00:00:05,500 --> 00:00:10,100\nKommen wir zur Tagesordnung.\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderVTT(t *testing.T) {
	got := string(RenderVTT(sampleTranscript()))
	if !strings.HasPrefix(got, "WEBVTT\n") {
		t.Errorf("missing header; got:\n%s", got)
	}
	if !strings.Contains(got, "00:00:05.500 --> 00:00:10.100\nKommen wir zur Tagesordnung.") {
		t.Errorf("missing second cue; got:\n%s", got)
	}
	if empty := string(RenderVTT(&asr.Transcript{})); empty != "WEBVTT\n" {
		t.Errorf("empty VTT = %q", empty)
	}
}

func TestRenderJSON(t *testing.T) {
	data, err := Render(FormatJSON, sampleTranscript())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var out struct {
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Segments) != 2 || out.Segments[1].Start != 5.5 {
		t.Errorf("unexpected segments: %+v", out.Segments)
	}
}

func TestCueStamp(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		sep  byte
		want string
	}{
		{"zero", 0, ',', "00:00:00,000"},
		{"mixed srt", time.Hour + 23*time.Minute + 45*time.Second + 678*time.Millisecond, ',', "01:23:45,678"},
		{"mixed vtt", time.Hour + 23*time.Minute + 45*time.Second + 678*time.Millisecond, '.', "01:23:45.678"},
		{"large hours", 99*time.Hour + 59*time.Minute + 59*time.Second + 999*time.Millisecond, ',', "99:59:59,999"},
		{"negative clamps", -time.Second, '.', "00:00:00.000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cueStamp(tt.d, tt.sep); got != tt.want {
				t.Errorf("cueStamp(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"txt", ".SRT", "vtt", "json"} {
		if _, err := ParseFormat(name); err != nil {
			t.Errorf("ParseFormat(%q): %v", name, err)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestWriteAll(t *testing.T) {
	base := filepath.Join(t.TempDir(), "meeting")

	written, err := WriteAll(base, sampleTranscript(), []Format{FormatText, FormatSRT, FormatVTT})
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("expected 3 files, got %v", written)
	}
	for _, p := range written {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
}

func TestWriteAll_DefaultsToText(t *testing.T) {
	base := filepath.Join(t.TempDir(), "sub", "dir", "meeting")

	written, err := WriteAll(base, sampleTranscript(), nil)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(written) != 1 || written[0] != base+".txt" {
		t.Errorf("written = %v", written)
	}
}

func TestWriteAll_UnknownFormatStillWritesOthers(t *testing.T) {
	base := filepath.Join(t.TempDir(), "meeting")

	_, err := WriteAll(base, sampleTranscript(), []Format{FormatText, "docx"})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := os.Stat(base + ".txt"); err != nil {
		t.Errorf("expected .txt despite docx error: %v", err)
	}
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.md")
	if err := WriteSummary(path, "Meeting", "List the\ndecisions", "- **Budget** approved"); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "# Meeting\n\n> List the\n> decisions\n\n- **Budget** approved\n"
	if string(data) != want {
		t.Errorf("got %q, want %q", data, want)
	}
}

func TestAtomicWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := atomicWrite(filepath.Join(dir, "out.txt"), []byte("x")); err != nil {
		t.Fatalf("atomicWrite: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only out.txt, got %d entries", len(entries))
	}
}
