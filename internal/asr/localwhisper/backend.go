// Package localwhisper runs a whisper CLI (whisper.cpp or faster-whisper
// wrappers that print JSON) as a subprocess for offline transcription.
package localwhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
)

// Name identifies this backend in config and logs.
const Name = "local_whisper"

// Config configures the local whisper CLI backend.
type Config struct {
	BinaryPath     string `json:"binary_path"`     // whisper CLI printing JSON to stdout
	ModelPath      string `json:"model_path"`      // optional .bin model file
	Threads        int    `json:"threads"`         // 0 = binary default
	TimeoutSeconds int    `json:"timeout_seconds"` // default 300
}

// Backend shells out to a whisper CLI binary.
type Backend struct {
	cfg Config

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New creates a local whisper backend.
func New(cfg Config) *Backend {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	return &Backend{cfg: cfg}
}

// SetLogger attaches a diagnostic logger.
func (b *Backend) SetLogger(l *diaglog.Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	b.logger = l
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

// Name returns the backend identifier.
func (b *Backend) Name() string { return Name }

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperOutput struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
}

// Transcribe writes the decoded payload to a temp file and runs the CLI on
// it. The whole process group is killed when ctx ends or the timeout hits.
func (b *Backend) Transcribe(ctx context.Context, encodedAudio, language string) (*asr.Transcript, error) {
	if _, err := os.Stat(b.cfg.BinaryPath); err != nil {
		return nil, b.fail(fmt.Errorf("binary not found at %q: %w", b.cfg.BinaryPath, err))
	}
	mimeType, audio, err := media.DecodeDataURI(encodedAudio)
	if err != nil {
		return nil, b.fail(err)
	}
	input, err := os.CreateTemp("", "memoscribe-*"+media.ExtensionFor(mimeType))
	if err != nil {
		return nil, b.fail(fmt.Errorf("create temp input: %w", err))
	}
	defer os.Remove(input.Name())
	if _, err := input.Write(audio); err != nil {
		input.Close()
		return nil, b.fail(fmt.Errorf("write temp input: %w", err))
	}
	if err := input.Close(); err != nil {
		return nil, b.fail(fmt.Errorf("close temp input: %w", err))
	}

	timeout := time.Duration(b.cfg.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.cfg.BinaryPath, b.buildArgs(input.Name(), language)...)
	// Own process group so the kill reaches children of wrapper scripts.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) }
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, b.fail(ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return nil, b.fail(fmt.Errorf("transcription timed out after %d seconds", b.cfg.TimeoutSeconds))
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg != "" {
			return nil, b.fail(fmt.Errorf("subprocess failed: %v: %s", err, msg))
		}
		return nil, b.fail(fmt.Errorf("subprocess failed: %w", err))
	}

	var output whisperOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return nil, b.fail(fmt.Errorf("failed to parse JSON output: %w", err))
	}
	b.log(diaglog.LogEntry{
		Event:   diaglog.EventTranscribeSuccess,
		Reason:  Name,
		Payload: map[string]interface{}{"segments": len(output.Segments), "elapsed_ms": time.Since(start).Milliseconds()},
	})
	return toTranscript(output, language), nil
}

func toTranscript(output whisperOutput, language string) *asr.Transcript {
	t := &asr.Transcript{Language: output.Language, Backend: Name}
	if t.Language == "" {
		t.Language = language
	}
	parts := make([]string, 0, len(output.Segments))
	for _, seg := range output.Segments {
		text := strings.TrimSpace(seg.Text)
		t.Segments = append(t.Segments, asr.Segment{
			Start: asr.SecondsToDuration(seg.Start),
			End:   asr.SecondsToDuration(seg.End),
			Text:  text,
		})
		parts = append(parts, text)
	}
	t.Text = strings.TrimSpace(output.Text)
	if t.Text == "" {
		t.Text = strings.Join(parts, " ")
	}
	return t
}

func (b *Backend) fail(err error) error {
	return &asr.CapabilityError{Op: asr.OpTranscribe, Backend: Name, Err: err}
}

// HealthCheck verifies the binary exists, is executable, and runs.
func (b *Backend) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	status := &asr.HealthStatus{Backend: Name}

	info, err := os.Stat(b.cfg.BinaryPath)
	if err != nil {
		status.Message = fmt.Sprintf("binary not found at %q: %v", b.cfg.BinaryPath, err)
		return status, nil
	}
	if info.Mode()&0111 == 0 {
		status.Message = fmt.Sprintf("binary at %q is not executable", b.cfg.BinaryPath)
		return status, nil
	}
	if b.cfg.ModelPath != "" {
		if _, err := os.Stat(b.cfg.ModelPath); err != nil {
			status.Message = fmt.Sprintf("model not found at %q: %v", b.cfg.ModelPath, err)
			return status, nil
		}
	}

	start := time.Now()
	err = exec.CommandContext(ctx, b.cfg.BinaryPath, "--help").Run()
	status.Latency = time.Since(start)

	// --help may exit non-zero on some binaries; it only has to execute.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Message = fmt.Sprintf("binary failed to execute: %v", err)
		return status, nil
	}

	status.OK = true
	status.Message = "binary is available and executable"
	return status, nil
}

func (b *Backend) buildArgs(filePath, language string) []string {
	var args []string
	if b.cfg.ModelPath != "" {
		args = append(args, "--model", b.cfg.ModelPath)
	}
	args = append(args, "--output-json")
	if language != "" {
		args = append(args, "--language", language)
	}
	if b.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(b.cfg.Threads))
	}
	return append(args, filePath)
}
