package session

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/fileutil"
	"github.com/tiroq/memoscribe/internal/transcript"
)

// Transcript returns the current transcript, or ErrNoTranscript.
func (s *Session) Transcript() (*asr.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.segments) == 0 && strings.TrimSpace(s.transcript) == "" {
		return nil, ErrNoTranscript
	}
	return &asr.Transcript{
		Text:     s.transcript,
		Segments: append([]asr.Segment(nil), s.segments...),
		Language: s.language,
	}, nil
}

// ExportName is the file stem exports use: the source file's name, or the
// last element of the media URL.
func (s *Session) ExportName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportNameLocked()
}

func (s *Session) exportNameLocked() string {
	var stem string
	switch {
	case s.file != nil:
		stem = fileutil.Stem(s.file.Name)
	case s.urlText != "":
		stem = fileutil.URLStem(s.urlText)
	}
	return fileutil.SanitizeForFilename(stem, "transcript")
}

// Export writes the transcript in each format into dir, plus a Markdown
// summary when one exists and a .meta.json sidecar describing the export.
// The returned paths exclude the sidecar.
func (s *Session) Export(dir string, formats []transcript.Format) ([]string, error) {
	t, err := s.Transcript()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	name := s.exportNameLocked()
	prompt, summary := s.prompt, s.summary
	meta := &fileutil.ExportMetadata{
		SessionID:  s.id,
		Mode:       string(ModeURL),
		Source:     s.urlText,
		Language:   s.language,
		Segments:   len(s.segments),
		Prompt:     prompt,
		HasSummary: summary != "",
	}
	if s.file != nil {
		meta.Mode, meta.Source = string(ModeFile), s.file.Path
	}
	if s.cfg.Transcriber != nil {
		meta.Backend = s.cfg.Transcriber.Name()
	}
	if n := len(s.segments); n > 0 {
		meta.Duration = s.segments[n-1].End.String()
	}
	s.mu.Unlock()

	base := filepath.Join(dir, name)
	written, err := transcript.WriteAll(base, t, formats)
	if summary != "" {
		path := base + ".summary.md"
		if serr := transcript.WriteSummary(path, name, prompt, summary); serr != nil && err == nil {
			err = serr
		} else if serr == nil {
			written = append(written, path)
		}
	}

	meta.Files = written
	meta.ExportedAt = s.cfg.Clock.Now().UTC().Truncate(time.Second)
	if merr := fileutil.WriteMetadata(base, meta); merr != nil && err == nil {
		err = merr
	}
	return written, err
}
