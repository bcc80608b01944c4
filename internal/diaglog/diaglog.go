// Package diaglog provides structured NDJSON diagnostic logging for memoscribe.
// Activated by MEMOSCRIBE_DEBUG=true. When the env var is absent, all Log
// calls are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// ── Component labels ─────────────────────────────────────────────────────────

const (
	ComponentSession    = "session"
	ComponentProgress   = "progress-simulator"
	ComponentTransport  = "audio-transport"
	ComponentPlaySync   = "playback-sync"
	ComponentASR        = "asr"
	ComponentServer     = "http-server"
	ComponentTemplates  = "template-store"
	ComponentDiagExport = "diag-export"
	ComponentCore       = "memoscribe-core"
)

// ── Event names ──────────────────────────────────────────────────────────────

const (
	EventReset             = "reset"
	EventModeSwitch        = "mode_switch"
	EventFileSelected      = "file_selected"
	EventURLProcessed      = "url_processed"
	EventTranscribeStart   = "transcribe_start"
	EventTranscribeSuccess = "transcribe_success"
	EventTranscribeFailed  = "transcribe_failed"
	EventSummarizeStart    = "summarize_start"
	EventSummarizeDone     = "summarize_done"
	EventSummarizeFailed   = "summarize_failed"
	EventSuggestDone       = "suggest_done"
	EventSuggestFailed     = "suggest_failed"
	EventStaleResult       = "stale_result_discarded"
	EventTransportLoad     = "transport_load"
	EventTransportError    = "transport_error"
	EventASRHealthCheck    = "asr_health_check"
	EventASRRetry          = "asr_retry"
	EventWSConnect         = "ws_connect"
	EventWSDisconnect      = "ws_disconnect"
	EventTemplateSaved     = "template_saved"
	EventCommandReceived   = "command_received"
	EventCommandRejected   = "command_rejected"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`                   // RFC3339Nano
	Component string      `json:"component"`            // see Component* constants
	Event     string      `json:"event"`                // see Event* constants
	SessionID string      `json:"session_id,omitempty"` // per-daemon uuid
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw        *rollingWriter
	mu        sync.Mutex
	enabled   bool
	sessionID string
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := newRollingWriter(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// SetSessionID stamps every subsequent entry that has no SessionID of its own.
func (l *Logger) SetSessionID(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.sessionID = id
	l.mu.Unlock()
}

// Log serialises entry to JSON, appends a newline, and writes to the rolling
// file. Sensitive payload fields are redacted before serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.SessionID == "" {
		entry.SessionID = l.sessionID
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = l.rw.Write(data)
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether MEMOSCRIBE_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("MEMOSCRIBE_DEBUG") == "true"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
