package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/clock"
	"github.com/tiroq/memoscribe/internal/transport"
	"github.com/tiroq/memoscribe/testutil"
)

// fakeTransport records commands. A loaded source is immediately ready.
type fakeTransport struct {
	mu        sync.Mutex
	state     transport.State
	calls     []string
	listeners []func(time.Duration)
	onChange  func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{state: transport.State{Phase: transport.PhaseNoSource, Volume: 1}}
}

func (f *fakeTransport) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) Load(path string) {
	f.mu.Lock()
	f.record("load")
	f.state = transport.State{Source: path, Phase: transport.PhaseReady, Duration: time.Minute, Volume: f.state.Volume}
	f.mu.Unlock()
}

func (f *fakeTransport) Unload() {
	f.mu.Lock()
	f.record("unload")
	f.state = transport.State{Phase: transport.PhaseNoSource, Volume: f.state.Volume, Muted: f.state.Muted}
	f.mu.Unlock()
}

func (f *fakeTransport) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("play")
	if f.state.Source == "" {
		return transport.ErrNoSource
	}
	f.state.Phase = transport.PhasePlaying
	f.state.Playing = true
	return nil
}

// Reset records the pause and the rewind the way the real transport does.
func (f *fakeTransport) Reset() {
	f.Pause()
	f.SeekTo(0)
}

func (f *fakeTransport) Pause() {
	f.mu.Lock()
	f.record("pause")
	if f.state.Playing {
		f.state.Phase = transport.PhasePaused
		f.state.Playing = false
	}
	f.mu.Unlock()
}

func (f *fakeTransport) SeekTo(pos time.Duration) bool {
	f.mu.Lock()
	f.record("seek")
	if f.state.Source == "" {
		f.mu.Unlock()
		return false
	}
	f.state.CurrentTime = pos
	listeners := append(([]func(time.Duration))(nil), f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(pos)
	}
	return true
}

func (f *fakeTransport) SetVolume(v float64) {
	f.mu.Lock()
	f.state.Volume = v
	f.mu.Unlock()
}

func (f *fakeTransport) SetMuted(m bool) {
	f.mu.Lock()
	f.state.Muted = m
	f.mu.Unlock()
}

func (f *fakeTransport) HasSource() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Source != ""
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) OnTimeUpdate(fn func(time.Duration)) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *fakeTransport) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

func (f *fakeTransport) lastCalls(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.calls) {
		n = len(f.calls)
	}
	return append([]string(nil), f.calls[len(f.calls)-n:]...)
}

// stubCapability implements all three capability interfaces. When gated,
// each call signals started and blocks until release receives a value.
// ignoreCtx makes a gated call outlive cancellation, the way a
// non-abortable remote call would.
type stubCapability struct {
	mu          sync.Mutex
	transcript  *asr.Transcript
	err         error
	summary     string
	summaryErr  error
	suggestions []string
	gated       bool
	ignoreCtx   bool
	release     chan struct{}
	started     chan string
	languages   []string
}

func newStub() *stubCapability {
	return &stubCapability{
		release: make(chan struct{}, 8),
		started: make(chan string, 8),
	}
}

func (c *stubCapability) wait(ctx context.Context, op string) error {
	c.mu.Lock()
	gated, ignore := c.gated, c.ignoreCtx
	c.mu.Unlock()
	if !gated {
		return nil
	}
	c.started <- op
	if ignore {
		<-c.release
		return nil
	}
	select {
	case <-c.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *stubCapability) Name() string { return "stub" }

func (c *stubCapability) Transcribe(ctx context.Context, encodedAudio, language string) (*asr.Transcript, error) {
	if err := c.wait(ctx, asr.OpTranscribe); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.languages = append(c.languages, language)
	return c.transcript, c.err
}

func (c *stubCapability) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	return &asr.HealthStatus{OK: true, Backend: "stub"}, nil
}

func (c *stubCapability) Summarize(ctx context.Context, transcript, prompt string) (string, error) {
	if err := c.wait(ctx, asr.OpSummarize); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, c.summaryErr
}

func (c *stubCapability) SuggestPrompts(ctx context.Context, transcript string) ([]string, error) {
	if err := c.wait(ctx, asr.OpSuggest); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suggestions, nil
}

func (c *stubCapability) setGated(gated, ignoreCtx bool) {
	c.mu.Lock()
	c.gated, c.ignoreCtx = gated, ignoreCtx
	c.mu.Unlock()
}

func (c *stubCapability) awaitStart(t *testing.T, op string) {
	t.Helper()
	select {
	case got := <-c.started:
		if got != op {
			t.Fatalf("expected %s call, got %s", op, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s call never started", op)
	}
}

type fixture struct {
	s     *Session
	cap   *stubCapability
	tr    *fakeTransport
	clock *clock.Fake
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		cap:   newStub(),
		tr:    newFakeTransport(),
		clock: clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		dir:   t.TempDir(),
	}
	fx.s = New(Config{
		Transcriber:    fx.cap,
		Summarizer:     fx.cap,
		Suggester:      fx.cap,
		Transport:      fx.tr,
		URLSettleDelay: 20 * time.Millisecond,
		Clock:          fx.clock,
	})
	t.Cleanup(fx.s.Close)
	return fx
}

func (fx *fixture) mediaFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(fx.dir, name)
	if err := os.WriteFile(path, []byte("ID3\x03\x00fake-audio"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// tickProgress advances the fake clock n progress intervals, waiting for
// each tick to land.
func (fx *fixture) tickProgress(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		before := fx.s.Snapshot().Progress
		fx.clock.Advance(500 * time.Millisecond)
		testutil.WaitForCondition(t, func() bool {
			p := fx.s.Snapshot().Progress
			return p > before || p == 95
		}, 2*time.Second, "progress tick")
	}
}

func sceneATranscript() *asr.Transcript {
	return &asr.Transcript{
		Text: "Hello world",
		Segments: []asr.Segment{
			{Start: 0, End: time.Second, Text: "Hello"},
			{Start: time.Second, End: 2 * time.Second, Text: "world"},
		},
	}
}

// assertCanonical checks every core field of the empty state.
func assertCanonical(t *testing.T, snap Snapshot) {
	t.Helper()
	testutil.AssertEqual(t, ModeIdle, snap.Mode, "mode")
	testutil.AssertTrue(t, snap.File == nil, "file cleared")
	testutil.AssertEqual(t, "", snap.URL, "url")
	testutil.AssertEqual(t, "", snap.Placeholder, "placeholder")
	testutil.AssertFalse(t, snap.ProcessingFile, "processing file")
	testutil.AssertFalse(t, snap.ProcessingURL, "processing url")
	testutil.AssertFalse(t, snap.Summarizing, "summarizing")
	testutil.AssertFalse(t, snap.Suggesting, "suggesting")
	testutil.AssertEqual(t, 0, snap.Progress, "progress")
	testutil.AssertEqual(t, "", snap.Transcript, "transcript")
	testutil.AssertEqual(t, 0, len(snap.Segments), "segments")
	testutil.AssertEqual(t, -1, snap.ActiveSegment, "active segment")
	testutil.AssertEqual(t, "", snap.Prompt, "prompt")
	testutil.AssertEqual(t, "", snap.Summary, "summary")
	testutil.AssertEqual(t, 0, len(snap.Suggestions), "suggestions")
	testutil.AssertEqual(t, "", snap.Transport.Source, "transport source")
	testutil.AssertFalse(t, snap.Transport.Playing, "transport playing")
	testutil.AssertEqual(t, time.Duration(0), snap.Transport.CurrentTime, "transport position")
	testutil.AssertFalse(t, snap.IsProcessing, "is processing")
	testutil.AssertFalse(t, snap.HasTranscript, "has transcript")
	testutil.AssertFalse(t, snap.ShowProgress, "show progress")
}

func lastNotice(t *testing.T, snap Snapshot) Notice {
	t.Helper()
	if len(snap.Notices) == 0 {
		t.Fatal("expected a notice")
	}
	return snap.Notices[len(snap.Notices)-1]
}
