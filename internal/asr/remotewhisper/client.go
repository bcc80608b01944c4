// Package remotewhisper is an asr backend for a self-hosted Whisper HTTP
// service. Transcription is a multipart upload; summarization and prompt
// suggestion are optional JSON endpoints on the same host.
package remotewhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
)

// Name identifies this backend in config and logs.
const Name = "remote_whisper"

// Config configures the remote Whisper API client.
type Config struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"-"`               // sent as Bearer
	TimeoutSeconds int    `json:"timeout_seconds"` // default 300
	Retries        int    `json:"retries"`         // default 3
	Model          string `json:"model"`           // default "small"
}

// Client calls a remote Whisper HTTP API. It implements asr.Transcriber,
// asr.Summarizer and asr.PromptSuggester.
type Client struct {
	cfg         Config
	client      *http.Client
	backoffBase time.Duration // tests override to 1ms

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a new remote Whisper API client.
func NewClient(cfg Config) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Model == "" {
		cfg.Model = "small"
	}
	return &Client{
		cfg:         cfg,
		backoffBase: time.Second,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	entry.Component = diaglog.ComponentASR
	l.Log(entry)
}

func (c *Client) Name() string { return Name }

type transcribeResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Language string `json:"language"`
}

// Transcribe uploads the decoded payload and returns the parsed transcript.
// Transient failures (5xx, network) are retried with backoff until ctx ends.
func (c *Client) Transcribe(ctx context.Context, encodedAudio, language string) (*asr.Transcript, error) {
	mimeType, audio, err := media.DecodeDataURI(encodedAudio)
	if err != nil {
		return nil, c.fail(asr.OpTranscribe, err)
	}

	var out *asr.Transcript
	err = c.retry(ctx, asr.OpTranscribe, func() error {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("file", "audio"+media.ExtensionFor(mimeType))
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(audio); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		_ = w.WriteField("model", c.cfg.Model)
		_ = w.WriteField("language", language)
		_ = w.WriteField("timestamps", "true")
		if err := w.Close(); err != nil {
			return fmt.Errorf("multipart close: %w", err)
		}

		var parsed transcribeResponse
		if err := c.do(ctx, "/v1/transcribe", w.FormDataContentType(), &body, &parsed); err != nil {
			return err
		}
		out = toTranscript(parsed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toTranscript(parsed transcribeResponse) *asr.Transcript {
	segments := make([]asr.Segment, len(parsed.Segments))
	for i, s := range parsed.Segments {
		segments[i] = asr.Segment{
			Start: asr.SecondsToDuration(s.Start),
			End:   asr.SecondsToDuration(s.End),
			Text:  s.Text,
		}
	}
	return &asr.Transcript{
		Text:     parsed.Text,
		Segments: segments,
		Language: parsed.Language,
		Backend:  Name,
	}
}

// Summarize posts the transcript and prompt to /v1/summarize.
func (c *Client) Summarize(ctx context.Context, transcript, prompt string) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}
	err := c.postJSON(ctx, asr.OpSummarize, "/v1/summarize",
		map[string]string{"transcript": transcript, "prompt": prompt}, &resp)
	return resp.Summary, err
}

// SuggestPrompts posts the transcript to /v1/suggest.
func (c *Client) SuggestPrompts(ctx context.Context, transcript string) ([]string, error) {
	var resp struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := c.postJSON(ctx, asr.OpSuggest, "/v1/suggest",
		map[string]string{"transcript": transcript}, &resp); err != nil {
		return nil, err
	}
	return asr.NormalizeSuggestions(resp.Suggestions), nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return c.fail(op, err)
	}
	return c.retry(ctx, op, func() error {
		return c.do(ctx, path, "application/json", bytes.NewReader(payload), out)
	})
}

// do performs one POST and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode >= 500 {
		return &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, errorText(data))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, errorText(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retry runs fn up to Retries+1 times, sleeping with backoff between
// retryable failures. The final error is wrapped in a CapabilityError.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventASRRetry,
				Reason:  op,
				Payload: map[string]interface{}{"attempt": attempt, "backoff_ms": backoff.Milliseconds()},
			})
			select {
			case <-ctx.Done():
				return c.fail(op, ctx.Err())
			case <-time.After(backoff):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return c.fail(op, err)
		}
		lastErr = err
	}
	return c.fail(op, fmt.Errorf("all %d retries exhausted: %w", c.cfg.Retries, lastErr))
}

func (c *Client) fail(op string, err error) error {
	return &asr.CapabilityError{Op: op, Backend: Name, Err: err}
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

// HealthCheck queries the remote API health endpoint. Transport failures
// are reported in the status, not as an error.
func (c *Client) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	c.authorize(req)

	status := &asr.HealthStatus{Backend: Name}
	resp, err := c.client.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Message = fmt.Sprintf("health check failed: %v", err)
		return status, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status.Message = fmt.Sprintf("unhealthy: http %d: %s", resp.StatusCode, truncate(body, 200))
		return status, nil
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		status.Message = fmt.Sprintf("invalid health response: %v", err)
		return status, nil
	}
	status.OK = parsed.OK
	status.Message = "healthy"
	if !parsed.OK {
		status.Message = "service reports not ok"
	}
	return status, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoff returns base * 2^(attempt-1) plus up to 25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.backoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// errorText prefers the service's {"error": "..."} message over the raw body.
func errorText(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return truncate(body, 200)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
