// Package openai implements the transcription, summarization and prompt
// suggestion capabilities on the OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
)

// Name identifies this backend in config and logs.
const Name = "openai"

// Config configures the OpenAI backend.
type Config struct {
	APIKey             string `json:"-"`
	BaseURL            string `json:"base_url,omitempty"`
	TranscriptionModel string `json:"transcription_model"` // default whisper-1
	ChatModel          string `json:"chat_model"`          // default gpt-4o-mini
}

const summarySystemPrompt = "You summarize meeting and interview transcripts. " +
	"Follow the user's instruction exactly. You may use limited inline HTML " +
	"(p, ul, li, strong, em) for structure. Answer in the transcript's language."

const suggestSystemPrompt = "You propose summary instructions for a transcript. " +
	`Reply with a JSON object {"suggestions": [...]} holding three to five short, ` +
	"distinct instructions a user could give to summarize this transcript."

// Backend talks to the OpenAI API through go-openai.
type Backend struct {
	cfg    Config
	client *goopenai.Client

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New creates a backend. BaseURL overrides the API endpoint for proxies
// and tests.
func New(cfg Config) *Backend {
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = goopenai.Whisper1
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = goopenai.GPT4oMini
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Backend{cfg: cfg, client: goopenai.NewClientWithConfig(oc)}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (b *Backend) SetLogger(l *diaglog.Logger) {
	b.loggerMu.Lock()
	b.logger = l
	b.loggerMu.Unlock()
}

func (b *Backend) log(entry diaglog.LogEntry) {
	b.loggerMu.RLock()
	l := b.logger
	b.loggerMu.RUnlock()
	if l == nil {
		return
	}
	entry.Component = diaglog.ComponentASR
	l.Log(entry)
}

func (b *Backend) Name() string { return Name }

// Transcribe decodes the data URI and requests a verbose_json transcription
// with segment timestamps.
func (b *Backend) Transcribe(ctx context.Context, encodedAudio, language string) (*asr.Transcript, error) {
	mimeType, audio, err := media.DecodeDataURI(encodedAudio)
	if err != nil {
		return nil, b.fail(asr.OpTranscribe, err)
	}

	resp, err := b.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    b.cfg.TranscriptionModel,
		FilePath: "audio" + media.ExtensionFor(mimeType),
		Reader:   bytes.NewReader(audio),
		Language: whisperLanguage(language),
		Format:   goopenai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []goopenai.TranscriptionTimestampGranularity{
			goopenai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, b.fail(asr.OpTranscribe, err)
	}

	segments := make([]asr.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, asr.Segment{
			Start: asr.SecondsToDuration(s.Start),
			End:   asr.SecondsToDuration(s.End),
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return &asr.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Segments: segments,
		Language: resp.Language,
		Backend:  Name,
	}, nil
}

// Summarize runs one chat completion with the prompt as the instruction.
// The reply is returned verbatim.
func (b *Backend) Summarize(ctx context.Context, transcript, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: b.cfg.ChatModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt + "\n\nTranscript:\n" + transcript},
		},
	})
	if err != nil {
		return "", b.fail(asr.OpSummarize, err)
	}
	if len(resp.Choices) == 0 {
		return "", b.fail(asr.OpSummarize, errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

// SuggestPrompts asks for a JSON list of instructions. Replies that are not
// valid JSON fall back to one suggestion per line.
func (b *Backend) SuggestPrompts(ctx context.Context, transcript string) ([]string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: b.cfg.ChatModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: suggestSystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: transcript},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, b.fail(asr.OpSuggest, err)
	}
	if len(resp.Choices) == 0 {
		return nil, b.fail(asr.OpSuggest, asr.ErrNoSuggestions)
	}
	out := parseSuggestions(resp.Choices[0].Message.Content)
	if len(out) == 0 {
		return nil, b.fail(asr.OpSuggest, asr.ErrNoSuggestions)
	}
	return out, nil
}

func parseSuggestions(content string) []string {
	var parsed struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return asr.NormalizeSuggestions(parsed.Suggestions)
	}
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		lines = append(lines, strings.TrimLeft(line, "-*0123456789. \t"))
	}
	return asr.NormalizeSuggestions(lines)
}

// HealthCheck lists models as a cheap authenticated round trip.
func (b *Backend) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	start := time.Now()
	_, err := b.client.ListModels(ctx)
	status := &asr.HealthStatus{Backend: Name, Latency: time.Since(start), OK: err == nil, Message: "healthy"}
	if err != nil {
		status.Message = fmt.Sprintf("health check failed: %s", apiMessage(err))
	}
	b.log(diaglog.LogEntry{Event: diaglog.EventASRHealthCheck,
		Payload: map[string]interface{}{"ok": status.OK, "latency_ms": status.Latency.Milliseconds()}})
	return status, nil
}

func (b *Backend) fail(op string, err error) error {
	return &asr.CapabilityError{Op: op, Backend: Name, Err: &apiError{msg: apiMessage(err), err: err}}
}

// apiError shows the service message while keeping the original error
// reachable for errors.Is.
type apiError struct {
	msg string
	err error
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Unwrap() error { return e.err }

// apiMessage extracts the service's own message from go-openai errors.
func apiMessage(err error) string {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("http %d: %v", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return err.Error()
}

// whisperLanguage reduces a regional tag like en-GB to the ISO-639-1 code
// the transcription endpoint accepts.
func whisperLanguage(lang string) string {
	base, _, _ := strings.Cut(lang, "-")
	return strings.ToLower(base)
}
