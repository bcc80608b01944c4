// Package asr defines the capability boundary for transcription,
// summarization and prompt suggestion. Backends live in subpackages.
package asr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Segment is one timestamped unit of transcript. Start <= End is trusted
// from the backend and not validated here.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Transcript is a complete transcription result. Segments are in
// chronological order.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
	Backend  string    `json:"backend,omitempty"`
}

// IsEmpty reports whether the backend returned neither text nor segments.
// This is a valid outcome, not an error.
func (t *Transcript) IsEmpty() bool {
	return t == nil || (strings.TrimSpace(t.Text) == "" && len(t.Segments) == 0)
}

// HealthStatus reports backend health.
type HealthStatus struct {
	OK      bool
	Backend string
	Message string
	Latency time.Duration
}

// Transcriber turns an encoded audio payload (a data URI) into a transcript.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, encodedAudio, language string) (*Transcript, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// Summarizer condenses a transcript according to a user prompt. The summary
// may carry limited inline markup and is returned verbatim.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, prompt string) (string, error)
}

// PromptSuggester proposes between one and MaxSuggestions prompts for a
// transcript.
type PromptSuggester interface {
	SuggestPrompts(ctx context.Context, transcript string) ([]string, error)
}

// MaxSuggestions caps the number of prompt suggestions kept from a backend.
const MaxSuggestions = 5

// Capability operation names used in CapabilityError.
const (
	OpTranscribe = "transcribe"
	OpSummarize  = "summarize"
	OpSuggest    = "suggest_prompts"
)

// ErrNoSuggestions is returned when a suggester produced nothing usable.
var ErrNoSuggestions = errors.New("no prompt suggestions returned")

// CapabilityError wraps a failed remote call. Message is safe to show to the
// user as-is.
type CapabilityError struct {
	Op      string
	Backend string
	Err     error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// Message returns the underlying failure text without the op prefix.
func (e *CapabilityError) Message() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Err.Error()
}

// UserMessage extracts the user-facing text of any error returned by a
// capability call.
func UserMessage(err error) string {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// SecondsToDuration converts fractional seconds to time.Duration.
func SecondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// NormalizeSuggestions trims blanks and duplicates and caps the list at
// MaxSuggestions.
func NormalizeSuggestions(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, MaxSuggestions)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
