package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/ipc"
	"github.com/tiroq/memoscribe/internal/session"
	"github.com/tiroq/memoscribe/internal/templates"
	"github.com/tiroq/memoscribe/internal/transport"
	"github.com/tiroq/memoscribe/testutil"
)

type fixedProber time.Duration

func (p fixedProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	return time.Duration(p), nil
}

type stubBackend struct {
	healthy bool
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Transcribe(ctx context.Context, encodedAudio, language string) (*asr.Transcript, error) {
	return &asr.Transcript{
		Text: "Hello there. General Kenobi.",
		Segments: []asr.Segment{
			{Start: 0, End: 1500 * time.Millisecond, Text: "Hello there."},
			{Start: 1500 * time.Millisecond, End: 3 * time.Second, Text: "General Kenobi."},
		},
	}, nil
}

func (b *stubBackend) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	return &asr.HealthStatus{OK: b.healthy, Backend: "stub", Message: "checked"}, nil
}

func (b *stubBackend) Summarize(ctx context.Context, transcript, prompt string) (string, error) {
	return "<p>" + prompt + "</p>", nil
}

func (b *stubBackend) SuggestPrompts(ctx context.Context, transcript string) ([]string, error) {
	return []string{"Who spoke?", "List greetings"}, nil
}

type memTemplates struct {
	mu    sync.Mutex
	slots map[int]templates.Template
}

func (m *memTemplates) List() ([]templates.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]templates.Template, templates.Slots)
	for i := range out {
		out[i] = templates.Template{Slot: i + 1}
		if t, ok := m.slots[i+1]; ok {
			out[i] = t
		}
	}
	return out, nil
}

func (m *memTemplates) Get(slot int) (templates.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 1 || slot > templates.Slots {
		return templates.Template{}, templates.ErrInvalidSlot
	}
	t, ok := m.slots[slot]
	if !ok {
		return templates.Template{Slot: slot}, templates.ErrEmptySlot
	}
	return t, nil
}

func (m *memTemplates) Save(slot int, name, prompt string) (templates.Template, error) {
	if slot < 1 || slot > templates.Slots {
		return templates.Template{}, templates.ErrInvalidSlot
	}
	if strings.TrimSpace(prompt) == "" {
		return templates.Template{}, templates.ErrEmptyPrompt
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := templates.Template{Slot: slot, Name: name, Prompt: prompt}
	m.slots[slot] = t
	return t, nil
}

func (m *memTemplates) Delete(slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
	return nil
}

type fixture struct {
	sess    *session.Session
	srv     *Server
	ts      *httptest.Server
	auth    *Auth
	token   string
	dir     string
	backend *stubBackend
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	backend := &stubBackend{healthy: true}
	sess := session.New(session.Config{
		Transcriber:    backend,
		Summarizer:     backend,
		Suggester:      backend,
		Transport:      transport.New(fixedProber(3 * time.Second)),
		URLSettleDelay: 10 * time.Millisecond,
	})
	t.Cleanup(sess.Close)

	dir := t.TempDir()
	auth := NewAuth("test-secret")
	opts := Options{
		Session:     sess,
		Templates:   &memTemplates{slots: map[int]templates.Template{}},
		Health:      backend,
		Auth:        auth,
		CORSOrigins: []string{"http://localhost:5173"},
		ExportDir:   filepath.Join(dir, "exports"),
		UploadDir:   filepath.Join(dir, "uploads"),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	srv := New(opts)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	token, err := auth.Issue("tester", time.Hour)
	testutil.AssertNoError(t, err, "issue token")
	return &fixture{sess: sess, srv: srv, ts: ts, auth: auth, token: token, dir: dir, backend: backend}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, f.ts.URL+path, rd)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (f *fixture) snapshot(t *testing.T, data []byte) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, data)
	}
	return snap
}

func (f *fixture) mediaFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("fake-audio-data"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) waitTranscript(t *testing.T) {
	t.Helper()
	testutil.WaitForCondition(t, func() bool {
		s := f.sess.Snapshot()
		return s.HasTranscript && !s.ProcessingFile
	}, 2*time.Second, "transcription to finish")
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/api/state")
	testutil.AssertNoError(t, err, "GET state")
	resp.Body.Close()
	testutil.AssertEqual(t, http.StatusUnauthorized, resp.StatusCode, "missing token")

	req, _ := http.NewRequest("GET", f.ts.URL+"/api/state", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	testutil.AssertEqual(t, http.StatusUnauthorized, resp.StatusCode, "wrong scheme")

	other, _ := NewAuth("other-secret").Issue("x", time.Hour)
	req.Header.Set("Authorization", "Bearer "+other)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	testutil.AssertEqual(t, http.StatusUnauthorized, resp.StatusCode, "foreign signature")

	resp, _ = http.Get(f.ts.URL + "/api/state?token=" + f.token)
	resp.Body.Close()
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "query token")

	resp, _ = http.Get(f.ts.URL + "/api/health")
	resp.Body.Close()
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "health is public")
}

func TestAuthValidate(t *testing.T) {
	a := NewAuth("k")
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	tok, err := a.Issue("alice", time.Minute)
	testutil.AssertNoError(t, err, "issue")
	claims, err := a.Validate(tok)
	testutil.AssertNoError(t, err, "validate fresh token")
	testutil.AssertEqual(t, "alice", claims.Subject, "subject")

	now = now.Add(2 * time.Minute)
	_, err = a.Validate(tok)
	testutil.AssertTrue(t, errors.Is(err, jwt.ErrTokenExpired), "expired token rejected")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: tokenIssuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	_, err = a.Validate(none)
	testutil.AssertError(t, err, "alg none rejected")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, "GET", "/api/health", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "healthy")
	testutil.AssertJSONContainsKey(t, string(body), "latency_ms", "latency reported")

	f.backend.healthy = false
	resp, _ = f.do(t, "GET", "/api/health", nil)
	testutil.AssertEqual(t, http.StatusServiceUnavailable, resp.StatusCode, "unhealthy")
}

func TestSelectFileTranscribesAndDownloads(t *testing.T) {
	f := newFixture(t)
	path := f.mediaFile(t, "standup.mp3")

	resp, body := f.do(t, "POST", "/api/file", map[string]string{"path": path, "language": "en"})
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, string(body))
	snap := f.snapshot(t, body)
	testutil.AssertEqual(t, session.ModeFile, snap.Mode, "file mode")
	testutil.AssertTrue(t, snap.URLInputDisabled, "url input disabled")

	f.waitTranscript(t)

	resp, body = f.do(t, "GET", "/api/transcript?format=srt", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "download")
	testutil.AssertStringContains(t, resp.Header.Get("Content-Disposition"), "standup.srt", "file name")
	testutil.AssertStringContains(t, string(body), "00:00:01,500 --> 00:00:03,000", "srt cue")

	resp, _ = f.do(t, "GET", "/api/transcript?format=doc", nil)
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "unknown format")
}

func TestSelectFileValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing path", map[string]string{}, http.StatusBadRequest},
		{"bad extension", map[string]string{"path": f.mediaFile(t, "notes.txt")}, http.StatusBadRequest},
		{"bad language", map[string]string{"path": f.mediaFile(t, "a.wav"), "language": "xx"}, http.StatusBadRequest},
		{"missing file", map[string]string{"path": filepath.Join(f.dir, "gone.mp3")}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, "POST", "/api/file", tt.body)
			testutil.AssertEqual(t, tt.want, resp.StatusCode, string(body))
			testutil.AssertJSONContainsKey(t, string(body), "error", "error body")
		})
	}
	testutil.AssertEqual(t, session.ModeIdle, f.sess.Snapshot().Mode, "state untouched")
}

func (f *fixture) upload(t *testing.T, name, language string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if language != "" {
		mw.WriteField("language", language)
	}
	part, _ := mw.CreateFormFile("file", name)
	part.Write([]byte("fake-audio-data"))
	mw.Close()

	req, _ := http.NewRequest("POST", f.ts.URL+"/api/file/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := http.DefaultClient.Do(req)
	testutil.AssertNoError(t, err, "upload")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func (f *fixture) uploadDirs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.dir, "uploads"))
	if os.IsNotExist(err) {
		return 0
	}
	testutil.AssertNoError(t, err, "read upload dir")
	return len(entries)
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	resp, body := f.upload(t, "Team Interview?.M4A", "fr")
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, string(body))

	snap := f.snapshot(t, body)
	testutil.AssertEqual(t, "fr", snap.Language, "language from form")
	testutil.AssertEqual(t, "Team-Interview.m4a", snap.File.Name, "uploaded name sanitized")
	testutil.AssertTrue(t, strings.HasPrefix(snap.File.Path, filepath.Join(f.dir, "uploads")), "stored under upload dir")
	f.waitTranscript(t)
}

func TestUploadsRemovedWhenReleased(t *testing.T) {
	f := newFixture(t)

	resp, body := f.upload(t, "first.mp3", "xx")
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, string(body))
	testutil.AssertEqual(t, 0, f.uploadDirs(t), "rejected upload removed")

	resp, body = f.upload(t, "first.mp3", "")
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, string(body))
	first := f.snapshot(t, body).File.Path
	f.waitTranscript(t)
	testutil.AssertEqual(t, 1, f.uploadDirs(t), "selected upload kept")

	resp, body = f.upload(t, "second.mp3", "")
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, string(body))
	f.waitTranscript(t)
	testutil.AssertEqual(t, 1, f.uploadDirs(t), "replaced upload removed")
	_, err := os.Stat(first)
	testutil.AssertTrue(t, os.IsNotExist(err), "first upload deleted")

	resp, _ = f.do(t, "POST", "/api/reset", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "reset")
	testutil.AssertEqual(t, 0, f.uploadDirs(t), "reset removes upload")

	local := f.mediaFile(t, "local.wav")
	resp, _ = f.do(t, "POST", "/api/file", map[string]string{"path": local})
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "select local file")
	f.waitTranscript(t)
	f.do(t, "POST", "/api/reset", nil)
	_, err = os.Stat(local)
	testutil.AssertNoError(t, err, "files outside the upload dir survive")
}

func TestURLPlaceholderFlow(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/api/url/process", nil)
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "empty url")

	resp, body := f.do(t, "PUT", "/api/url", map[string]string{"url": "https://example.com/talk.mp3"})
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "set url")
	testutil.AssertTrue(t, f.snapshot(t, body).FileInputDisabled, "file input disabled")

	resp, body = f.do(t, "POST", "/api/url/process", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "process url")
	snap := f.snapshot(t, body)
	testutil.AssertEqual(t, session.PlaceholderMessage, snap.Placeholder, "placeholder shown")
	testutil.AssertFalse(t, snap.ShowProgress, "no progress for urls")

	testutil.WaitForCondition(t, func() bool { return !f.sess.Snapshot().ProcessingURL }, time.Second, "url settle")

	resp, body = f.do(t, "POST", "/api/reset", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "reset")
	testutil.AssertEqual(t, "", f.snapshot(t, body).URL, "url cleared")
}

func TestSummarizeAndSuggest(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/api/summarize", nil)
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "no transcript yet")

	f.do(t, "POST", "/api/file", map[string]string{"path": f.mediaFile(t, "a.mp3")})
	f.waitTranscript(t)

	resp, _ = f.do(t, "POST", "/api/suggestions", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "suggest")
	testutil.WaitForCondition(t, func() bool { return len(f.sess.Snapshot().Suggestions) == 2 }, 2*time.Second, "suggestions")

	resp, body := f.do(t, "POST", "/api/suggestions/1/apply", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "apply")
	testutil.AssertEqual(t, "List greetings", f.snapshot(t, body).Prompt, "prompt from suggestion")

	resp, _ = f.do(t, "POST", "/api/suggestions/7/apply", nil)
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "index out of range")

	resp, _ = f.do(t, "POST", "/api/summarize", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "summarize")
	testutil.WaitForCondition(t, func() bool {
		return f.sess.Snapshot().Summary == "<p>List greetings</p>"
	}, 2*time.Second, "summary verbatim")
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/api/templates/2/apply", nil)
	testutil.AssertEqual(t, http.StatusNotFound, resp.StatusCode, "empty slot")

	resp, _ = f.do(t, "PUT", "/api/templates/9", map[string]string{"prompt": "x"})
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "invalid slot")

	f.sess.SetPrompt("Current prompt")
	resp, _ = f.do(t, "PUT", "/api/templates/2", map[string]string{"name": "Mine"})
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "save current prompt")

	f.sess.SetPrompt("")
	resp, body := f.do(t, "POST", "/api/templates/2/apply", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "apply")
	testutil.AssertEqual(t, "Current prompt", f.snapshot(t, body).Prompt, "prompt restored")

	resp, body = f.do(t, "GET", "/api/templates", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "list")
	var list []templates.Template
	testutil.MustUnmarshalJSON(t, string(body), &list)
	testutil.AssertEqual(t, templates.Slots, len(list), "all slots listed")
	testutil.AssertEqual(t, "Mine", list[1].Name, "saved name")

	resp, _ = f.do(t, "DELETE", "/api/templates/2", nil)
	testutil.AssertEqual(t, http.StatusNoContent, resp.StatusCode, "delete")

	f.do(t, "POST", "/api/reset", nil)
	resp, _ = f.do(t, "GET", "/api/templates", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "templates survive reset")
}

func TestCommandEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "POST", "/api/command", map[string]string{"command": "url https://example.com/x"})
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "url command")
	testutil.AssertEqual(t, "https://example.com/x", f.snapshot(t, body).URL, "url set")

	resp, _ = f.do(t, "POST", "/api/command", map[string]string{"command": "quit"})
	testutil.AssertEqual(t, http.StatusForbidden, resp.StatusCode, "quit refused")

	resp, _ = f.do(t, "POST", "/api/command", map[string]string{"command": "explode"})
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "unknown verb")
}

func TestPlaybackWithoutSource(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, "POST", "/api/playback/play", nil)
	testutil.AssertEqual(t, http.StatusConflict, resp.StatusCode, "nothing to play")

	resp, _ = f.do(t, "POST", "/api/playback/seek", map[string]float64{"seconds": 2})
	testutil.AssertEqual(t, http.StatusConflict, resp.StatusCode, "nothing to seek")

	resp, body := f.do(t, "PUT", "/api/playback/volume", map[string]interface{}{"volume": 0.25, "muted": true})
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "volume")
	snap := f.snapshot(t, body)
	testutil.AssertEqual(t, 0.25, snap.Transport.Volume, "volume applied")
	testutil.AssertTrue(t, snap.Transport.Muted, "muted")
}

func TestSeekSegmentAfterTranscription(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/file", map[string]string{"path": f.mediaFile(t, "a.mp3")})
	f.waitTranscript(t)
	testutil.WaitForCondition(t, func() bool {
		return f.sess.Snapshot().Transport.Phase == transport.PhaseReady
	}, 2*time.Second, "transport ready")

	resp, body := f.do(t, "POST", "/api/playback/segment/1", nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "seek segment")
	testutil.AssertEqual(t, "true", resp.Header.Get("X-Seeked"), "seeked")
	testutil.AssertEqual(t, 1500*time.Millisecond, f.snapshot(t, body).Transport.CurrentTime, "playhead at segment start")

	resp, _ = f.do(t, "POST", "/api/playback/segment/5", nil)
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "segment out of range")
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, "POST", "/api/export", map[string]interface{}{})
	testutil.AssertEqual(t, http.StatusBadRequest, resp.StatusCode, "nothing to export")

	f.do(t, "POST", "/api/file", map[string]string{"path": f.mediaFile(t, "retro.wav")})
	f.waitTranscript(t)

	resp, body := f.do(t, "POST", "/api/export", map[string]interface{}{"formats": []string{"txt", "vtt"}})
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Files []string `json:"files"`
	}
	testutil.MustUnmarshalJSON(t, string(body), &out)
	testutil.AssertEqual(t, 2, len(out.Files), "two files")
	for _, p := range out.Files {
		_, err := os.Stat(p)
		testutil.AssertNoError(t, err, "exported file exists")
	}
}

func TestDismissNotice(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/url/process", nil)
	notices := f.sess.Snapshot().Notices
	testutil.AssertEqual(t, 1, len(notices), "validation notice")

	resp, body := f.do(t, "DELETE", fmt.Sprintf("/api/notices/%d", notices[0].ID), nil)
	testutil.AssertEqual(t, http.StatusOK, resp.StatusCode, "dismiss")
	testutil.AssertEqual(t, 0, len(f.snapshot(t, body).Notices), "notice gone")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest("OPTIONS", f.ts.URL+"/api/state", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	testutil.AssertNoError(t, err, "preflight")
	resp.Body.Close()
	testutil.AssertEqual(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"), "allowed origin echoed")
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	f := newFixture(t)
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/ws?token=" + f.token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	testutil.AssertNoError(t, err, "dial")
	defer conn.Close()

	var first wsMessage
	testutil.AssertNoError(t, conn.ReadJSON(&first), "initial frame")
	testutil.AssertEqual(t, "snapshot", first.Type, "initial snapshot")
	testutil.WaitForCondition(t, func() bool { return f.srv.Clients() == 1 }, time.Second, "client registered")

	testutil.AssertNoError(t, conn.WriteJSON(map[string]string{"command": "url https://example.com/live"}), "send command")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg struct {
			Type     string           `json:"type"`
			Snapshot session.Snapshot `json:"snapshot"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "snapshot" && msg.Snapshot.URL == "https://example.com/live" {
			break
		}
	}

	testutil.AssertNoError(t, conn.WriteJSON(map[string]string{"command": "process-url"}), "send process")
	testutil.AssertNoError(t, conn.WriteJSON(map[string]string{"command": "retry"}), "send retry")
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "error" {
			testutil.AssertEqual(t, "retry", msg.Command, "failing command echoed")
			testutil.AssertStringContains(t, msg.Error, "no file", "error text")
			break
		}
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	f := newFixture(t)
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	testutil.AssertError(t, err, "dial without token")
	testutil.AssertEqual(t, http.StatusUnauthorized, resp.StatusCode, "unauthorized")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrBusy, http.StatusConflict},
		{transport.ErrNoSource, http.StatusConflict},
		{fmt.Errorf("seek: %w", ipc.ErrNothingToSeek), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", session.ErrNoCapability), http.StatusNotImplemented},
		{templates.ErrEmptySlot, http.StatusNotFound},
		{session.ErrEmptyPrompt, http.StatusBadRequest},
		{templates.ErrInvalidSlot, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx, "127.0.0.1:0") }()
	cancel()
	select {
	case err := <-done:
		testutil.AssertNoError(t, err, "clean shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRequestLoggingSkipsPolling(t *testing.T) {
	logs := testutil.NewLogCapture()
	f := newFixture(t, func(o *Options) { o.Log = logs.Logger("") })

	f.do(t, "GET", "/api/health", nil)
	f.do(t, "GET", "/api/state", nil)
	f.do(t, "PUT", "/api/prompt", map[string]string{"prompt": "List decisions"})
	f.do(t, "GET", "/api/state", nil)
	f.do(t, "PUT", "/api/prompt", map[string]string{"prompt": "List owners"})
	f.do(t, "POST", "/api/playback/seek", map[string]interface{}{"seconds": -1})

	testutil.AssertFalse(t, logs.Contains("/api/health"), "health polling not logged")
	testutil.AssertFalse(t, logs.Contains("/api/state"), "state polling not logged")
	testutil.AssertEqual(t, 2, logs.Count("PUT /api/prompt 200"), "each mutation logged")
	testutil.AssertTrue(t, logs.Contains("POST /api/playback/seek 400"), "client error logged")
	testutil.AssertEqual(t, 3, len(logs.Lines()), "exactly three lines")
}
