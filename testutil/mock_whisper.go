package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockWhisperServer simulates the remote Whisper HTTP API for testing.
type MockWhisperServer struct {
	*httptest.Server

	mu          sync.Mutex
	mode        string
	token       string
	text        string
	summary     string
	suggestions []string
	calls       map[string]int
	languages   []string
}

// Failure modes define how the mock server behaves
const (
	ModeNormal       = "normal"
	ModeServerError  = "server_error"
	ModeUnauthorized = "unauthorized"
	ModeSlow         = "slow"
	ModeUnhealthy    = "unhealthy"
)

// NewMockWhisper starts a mock server that answers every endpoint with
// canned data. Callers must Close it.
func NewMockWhisper() *MockWhisperServer {
	m := &MockWhisperServer{
		mode:        ModeNormal,
		text:        "hello from the mock",
		summary:     "a short summary",
		suggestions: []string{"List action items", "Summarize in one sentence"},
		calls:       make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", m.handleHealth)
	mux.HandleFunc("/v1/transcribe", m.handleTranscribe)
	mux.HandleFunc("/v1/summarize", m.handleSummarize)
	mux.HandleFunc("/v1/suggest", m.handleSuggest)
	m.Server = httptest.NewServer(mux)
	return m
}

// SetFailureMode configures how the server responds to requests
func (m *MockWhisperServer) SetFailureMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// RequireToken makes every endpoint demand "Bearer <token>".
func (m *MockWhisperServer) RequireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// SetTranscript replaces the text returned by /v1/transcribe.
func (m *MockWhisperServer) SetTranscript(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
}

// Calls returns how many requests hit path.
func (m *MockWhisperServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// Languages returns the language field of every transcribe request.
func (m *MockWhisperServer) Languages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.languages...)
}

// begin records the call and applies the failure mode. It returns false
// when the response has already been written.
func (m *MockWhisperServer) begin(w http.ResponseWriter, r *http.Request) bool {
	m.mu.Lock()
	m.calls[r.URL.Path]++
	mode, token := m.mode, m.token
	m.mu.Unlock()

	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		writeMockJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return false
	}
	switch mode {
	case ModeServerError:
		writeMockJSON(w, http.StatusInternalServerError, map[string]string{"error": "model crashed"})
		return false
	case ModeUnauthorized:
		writeMockJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return false
	case ModeSlow:
		select {
		case <-r.Context().Done():
			return false
		case <-time.After(5 * time.Second):
		}
	}
	return true
}

func (m *MockWhisperServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.calls[r.URL.Path]++
	mode := m.mode
	m.mu.Unlock()
	writeMockJSON(w, http.StatusOK, map[string]bool{"ok": mode != ModeUnhealthy})
}

func (m *MockWhisperServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !m.begin(w, r) {
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeMockJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if _, _, err := r.FormFile("file"); err != nil {
		writeMockJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
		return
	}

	m.mu.Lock()
	m.languages = append(m.languages, r.FormValue("language"))
	text := m.text
	m.mu.Unlock()

	type segment struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	}
	var segs []segment
	for i, word := range strings.Fields(text) {
		segs = append(segs, segment{Start: float64(i), End: float64(i) + 0.9, Text: word})
	}
	writeMockJSON(w, http.StatusOK, map[string]interface{}{
		"text":     text,
		"segments": segs,
		"language": r.FormValue("language"),
	})
}

func (m *MockWhisperServer) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if !m.begin(w, r) {
		return
	}
	m.mu.Lock()
	summary := m.summary
	m.mu.Unlock()
	writeMockJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (m *MockWhisperServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if !m.begin(w, r) {
		return
	}
	m.mu.Lock()
	out := append([]string(nil), m.suggestions...)
	m.mu.Unlock()
	writeMockJSON(w, http.StatusOK, map[string][]string{"suggestions": out})
}

func writeMockJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
