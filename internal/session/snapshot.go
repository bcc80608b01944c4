package session

import (
	"strings"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/media"
	"github.com/tiroq/memoscribe/internal/transport"
)

// Snapshot is an immutable copy of the session. The derived booleans are
// computed from the other fields each time and never stored.
type Snapshot struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`

	Mode        Mode        `json:"mode"`
	File        *media.File `json:"file,omitempty"`
	Language    string      `json:"language"`
	URL         string      `json:"url"`
	Placeholder string      `json:"placeholder,omitempty"`

	ProcessingFile bool `json:"processing_file"`
	ProcessingURL  bool `json:"processing_url"`
	Summarizing    bool `json:"summarizing"`
	Suggesting     bool `json:"suggesting"`
	Progress       int  `json:"progress"`

	Transcript    string        `json:"transcript"`
	Segments      []asr.Segment `json:"segments"`
	ActiveSegment int           `json:"active_segment"`

	Prompt      string   `json:"prompt"`
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`

	Transport transport.State `json:"transport"`
	Notices   []Notice        `json:"notices"`

	IsProcessing      bool `json:"is_processing"`
	HasTranscript     bool `json:"has_transcript"`
	ShowProgress      bool `json:"show_progress"`
	CanProcessFile    bool `json:"can_process_file"`
	CanProcessURL     bool `json:"can_process_url"`
	FileInputDisabled bool `json:"file_input_disabled"`
	URLInputDisabled  bool `json:"url_input_disabled"`
	CanSummarize      bool `json:"can_summarize"`
	CanSuggest        bool `json:"can_suggest"`
	CanSeek           bool `json:"can_seek"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:      s.id,
		Generation:     s.gen,
		Language:       s.language,
		URL:            s.urlText,
		Placeholder:    s.placeholder,
		ProcessingFile: s.processingFile,
		ProcessingURL:  s.processingURL,
		Summarizing:    s.summarizing,
		Suggesting:     s.suggesting,
		Progress:       s.sim.Value(),
		Transcript:     s.transcript,
		Segments:       append([]asr.Segment(nil), s.segments...),
		ActiveSegment:  s.bridge.Active(),
		Prompt:         s.prompt,
		Summary:        s.summary,
		Suggestions:    append([]string(nil), s.suggestions...),
		Transport:      s.tr.State(),
		Notices:        append([]Notice(nil), s.notices...),
	}
	if s.file != nil {
		f := *s.file
		snap.File = &f
	}

	switch {
	case s.file != nil:
		snap.Mode = ModeFile
	case s.urlText != "":
		snap.Mode = ModeURL
	default:
		snap.Mode = ModeIdle
	}

	snap.IsProcessing = s.processingFile || s.processingURL
	snap.HasTranscript = len(s.segments) > 0 || strings.TrimSpace(s.transcript) != ""
	snap.ShowProgress = s.processingFile
	snap.CanProcessFile = s.file != nil && !snap.IsProcessing
	snap.CanProcessURL = strings.TrimSpace(s.urlText) != "" && !snap.IsProcessing
	snap.FileInputDisabled = s.urlText != "" || s.processingURL || s.processingFile
	snap.URLInputDisabled = s.file != nil || s.processingFile
	snap.CanSummarize = snap.HasTranscript && strings.TrimSpace(s.prompt) != "" && !s.summarizing
	snap.CanSuggest = snap.HasTranscript && !s.suggesting
	snap.CanSeek = snap.Transport.Source != "" && len(s.segments) > 0
	return snap
}
