// Package transcript renders transcripts and summaries to export formats.
package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
)

// Format is an export format identifier, also used as the file extension.
type Format string

const (
	FormatText Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for format names not listed above.
var ErrUnknownFormat = errors.New("unknown export format")

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(name, "."))); f {
	case FormatText, FormatSRT, FormatVTT, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Render encodes t in format f.
func Render(f Format, t *asr.Transcript) ([]byte, error) {
	switch f {
	case FormatText:
		return RenderText(t), nil
	case FormatSRT:
		return RenderSRT(t), nil
	case FormatVTT:
		return RenderVTT(t), nil
	case FormatJSON:
		return renderJSON(t)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// RenderText emits one "[HH:MM:SS] text" line per segment. A transcript
// without segments is written as its plain text.
func RenderText(t *asr.Transcript) []byte {
	if len(t.Segments) == 0 {
		if t.Text == "" {
			return nil
		}
		return []byte(strings.TrimRight(t.Text, "\n") + "\n")
	}
	var b strings.Builder
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "[%s] %s\n", clockStamp(seg.Start), seg.Text)
	}
	return []byte(b.String())
}

// RenderSRT emits SubRip cues numbered from 1.
func RenderSRT(t *asr.Transcript) []byte {
	var b strings.Builder
	for i, seg := range t.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1,
			cueStamp(seg.Start, ','), cueStamp(seg.End, ','), seg.Text)
	}
	return []byte(b.String())
}

// RenderVTT emits WebVTT cues after the WEBVTT header.
func RenderVTT(t *asr.Transcript) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "\n%s --> %s\n%s\n",
			cueStamp(seg.Start, '.'), cueStamp(seg.End, '.'), seg.Text)
	}
	return []byte(b.String())
}

// RenderSummary produces a Markdown document holding the prompt and the
// summary text, which is kept verbatim.
func RenderSummary(title, prompt, summary string) []byte {
	var b strings.Builder
	if title == "" {
		title = "Summary"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if prompt != "" {
		b.WriteString("> ")
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(prompt), "\n", "\n> "))
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimRight(summary, "\n"))
	b.WriteByte('\n')
	return []byte(b.String())
}

// WriteAll writes t once per format to basePath plus the format extension.
// Defaults to text when formats is empty. Every format is attempted; the
// returned error joins all failures.
func WriteAll(basePath string, t *asr.Transcript, formats []Format) ([]string, error) {
	if len(formats) == 0 {
		formats = []Format{FormatText}
	}
	var (
		written []string
		errs    []error
	)
	for _, f := range formats {
		data, err := Render(f, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		path := basePath + "." + string(f)
		if err := atomicWrite(path, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

// WriteSummary writes the Markdown summary to path.
func WriteSummary(path, title, prompt, summary string) error {
	return atomicWrite(path, RenderSummary(title, prompt, summary))
}

// clockStamp formats d as HH:MM:SS.
func clockStamp(d time.Duration) string {
	h, m, s, _ := split(d)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// cueStamp formats d as HH:MM:SS<sep>mmm.
func cueStamp(d time.Duration, sep byte) string {
	h, m, s, ms := split(d)
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

func split(d time.Duration) (h, m, s, ms int) {
	if d < 0 {
		d = 0
	}
	return int(d.Hours()), int(d.Minutes()) % 60, int(d.Seconds()) % 60, int(d.Milliseconds()) % 1000
}

// atomicWrite writes data via a temp file in the same directory and renames
// it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
