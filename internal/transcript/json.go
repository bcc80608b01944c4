package transcript

import (
	"encoding/json"

	"github.com/tiroq/memoscribe/internal/asr"
)

type jsonSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type jsonTranscript struct {
	Text     string        `json:"text"`
	Language string        `json:"language,omitempty"`
	Segments []jsonSegment `json:"segments"`
}

// renderJSON emits segment times as float seconds, the capability's wire
// shape.
func renderJSON(t *asr.Transcript) ([]byte, error) {
	out := jsonTranscript{Text: t.Text, Language: t.Language, Segments: make([]jsonSegment, 0, len(t.Segments))}
	for _, s := range t.Segments {
		out.Segments = append(out.Segments, jsonSegment{Start: s.Start.Seconds(), End: s.End.Seconds(), Text: s.Text})
	}
	return json.MarshalIndent(out, "", "  ")
}
