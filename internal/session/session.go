// Package session owns the workstation state: which input mode is active,
// the transcription pipeline, the transcript and summary, and the link
// between transcript segments and the audio transport. All mutation goes
// through Session methods; observers read immutable Snapshots.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/clock"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
	"github.com/tiroq/memoscribe/internal/playsync"
	"github.com/tiroq/memoscribe/internal/progress"
	"github.com/tiroq/memoscribe/internal/transport"
)

// Mode is the logically active input.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModeFile Mode = "file"
	ModeURL  Mode = "url"
)

// PlaceholderMessage is the fixed response of the remote-URL path, which
// performs no transcription.
const PlaceholderMessage = "Transcribing remote URLs is not supported yet. " +
	"Download the media and select it as a local file instead."

// Transport is the command surface the session needs from the audio
// transport. The session is its only owner.
type Transport interface {
	Load(path string)
	Unload()
	Play() error
	Pause()
	SeekTo(pos time.Duration) bool
	Reset()
	SetVolume(v float64)
	SetMuted(m bool)
	HasSource() bool
	State() transport.State
	OnTimeUpdate(fn func(time.Duration))
	OnChange(fn func())
}

// Config wires a Session to its collaborators.
type Config struct {
	Transcriber asr.Transcriber
	Summarizer  asr.Summarizer
	Suggester   asr.PromptSuggester
	Transport   Transport

	// Encode converts a validated file to the payload handed to the
	// transcriber. Defaults to media.EncodeDataURI.
	Encode func(*media.File) (string, error)

	ProgressStep     int
	ProgressInterval time.Duration
	ProgressCap      int

	// URLSettleDelay is how long ProcessingURL stays set after the
	// placeholder is shown.
	URLSettleDelay time.Duration
	// CallTimeout bounds each capability call.
	CallTimeout time.Duration

	Clock clock.Clock
}

func (c *Config) setDefaults() {
	if c.Encode == nil {
		c.Encode = media.EncodeDataURI
	}
	if c.ProgressStep <= 0 {
		c.ProgressStep = progress.DefaultStep
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = progress.DefaultInterval
	}
	if c.ProgressCap <= 0 {
		c.ProgressCap = progress.DefaultCap
	}
	if c.URLSettleDelay <= 0 {
		c.URLSettleDelay = 500 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
}

// Session is the single owned state record. Every async completion is
// tagged with the generation it started in and dropped if a reset or a
// newer attempt superseded it.
type Session struct {
	cfg Config
	id  string

	mu         sync.Mutex
	gen        uint64
	callCtx    context.Context
	cancelCall context.CancelFunc

	file        *media.File
	language    string
	urlText     string
	placeholder string

	processingFile bool
	processingURL  bool
	summarizing    bool
	suggesting     bool

	transcript  string
	segments    []asr.Segment
	prompt      string
	summary     string
	suggestions []string

	notices   []Notice
	noticeSeq uint64

	// released holds paths of dropped selections until flushReleased.
	released  []string
	onRelease func(path string)
	relMu     sync.RWMutex

	sim    *progress.Simulator
	bridge *playsync.Bridge
	tr     Transport

	subMu sync.Mutex
	subs  map[int]chan struct{}
	subID int

	wg sync.WaitGroup

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New builds an idle session and wires the transport's time updates into
// the playback bridge.
func New(cfg Config) *Session {
	cfg.setDefaults()
	s := &Session{
		cfg:      cfg,
		id:       uuid.NewString(),
		language: media.DefaultLanguage,
		tr:       cfg.Transport,
		subs:     make(map[int]chan struct{}),
	}
	s.callCtx, s.cancelCall = context.WithCancel(context.Background())
	s.sim = progress.NewWithClock(cfg.Clock, s.notify)
	s.bridge = playsync.New(cfg.Transport, func(int) { s.notify() })
	cfg.Transport.OnTimeUpdate(s.bridge.Update)
	cfg.Transport.OnChange(s.notify)
	return s
}

// ID is the per-session uuid stamped on diagnostic log entries.
func (s *Session) ID() string { return s.id }

// SetLogger injects a diaglog.Logger for debug logging.
func (s *Session) SetLogger(l *diaglog.Logger) {
	s.loggerMu.Lock()
	s.logger = l
	s.loggerMu.Unlock()
}

func (s *Session) log(entry diaglog.LogEntry) {
	s.loggerMu.RLock()
	l := s.logger
	s.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentSession
	}
	if entry.SessionID == "" {
		entry.SessionID = s.id
	}
	l.Log(entry)
}

// OnFileReleased registers fn to receive the path of every selected file
// the session lets go of: replaced by another selection, dropped by a reset
// or left behind at Close. fn runs without the session lock held.
func (s *Session) OnFileReleased(fn func(path string)) {
	s.relMu.Lock()
	s.onRelease = fn
	s.relMu.Unlock()
}

func (s *Session) releaseLocked(f *media.File) {
	if f != nil {
		s.released = append(s.released, f.Path)
	}
}

// flushReleased hands queued paths to the release hook. Call without s.mu.
func (s *Session) flushReleased() {
	s.mu.Lock()
	paths := s.released
	s.released = nil
	s.mu.Unlock()

	s.relMu.RLock()
	fn := s.onRelease
	s.relMu.RUnlock()
	if fn == nil {
		return
	}
	for _, p := range paths {
		fn(p)
	}
}

// Subscribe returns a coalescing change signal and a cancel func. A receive
// means "something changed; take a new Snapshot".
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	id := s.subID
	s.subID++
	s.subs[id] = ch
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify never takes s.mu, so it is safe from any callback or lock context.
func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// bumpLocked starts a new generation: in-flight capability calls are
// cancelled and their completions will be discarded.
func (s *Session) bumpLocked() uint64 {
	s.gen++
	s.cancelCall()
	s.callCtx, s.cancelCall = context.WithCancel(context.Background())
	return s.gen
}

// staleLocked reports whether gen was superseded, logging the discard.
func (s *Session) staleLocked(gen uint64, op string) bool {
	if gen == s.gen {
		return false
	}
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventStaleResult,
		Reason:  op,
		Payload: map[string]interface{}{"generation": gen, "current": s.gen},
	})
	return true
}

// clearDerivedLocked drops transcript and everything derived from it.
func (s *Session) clearDerivedLocked() {
	s.transcript = ""
	s.segments = nil
	s.prompt = ""
	s.summary = ""
	s.suggestions = nil
	s.summarizing = false
	s.suggesting = false
	s.bridge.SetSegments(nil)
}

// Wait blocks until every background completion has returned.
func (s *Session) Wait() { s.wg.Wait() }

// Close cancels timers and in-flight calls and waits for goroutines.
func (s *Session) Close() {
	s.mu.Lock()
	s.sim.Cancel()
	s.bumpLocked()
	s.releaseLocked(s.file)
	s.mu.Unlock()
	s.wg.Wait()
	s.flushReleased()
}
