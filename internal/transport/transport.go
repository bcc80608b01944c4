// Package transport models a media element: source loading, play/pause,
// seeking, volume and continuous time updates.
package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tiroq/memoscribe/internal/clock"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
)

// Phase is the transport lifecycle position for the current source.
type Phase string

const (
	PhaseNoSource Phase = "no_source"
	PhaseLoading  Phase = "loading"
	PhaseReady    Phase = "ready"
	PhasePlaying  Phase = "playing"
	PhasePaused   Phase = "paused"
	PhaseEnded    Phase = "ended"
	PhaseError    Phase = "error"
)

// TimeUpdateInterval matches the cadence of a browser media element's
// timeupdate event.
const TimeUpdateInterval = 250 * time.Millisecond

var (
	ErrNoSource = errors.New("no audio source loaded")
	ErrNotReady = errors.New("audio source not ready")
)

// State is a copy of the playback state. Consumers read CurrentTime and
// issue commands; they never write fields.
type State struct {
	Source      string        `json:"source,omitempty"`
	Phase       Phase         `json:"phase"`
	CurrentTime time.Duration `json:"current_time"`
	Duration    time.Duration `json:"duration"`
	Playing     bool          `json:"playing"`
	Volume      float64       `json:"volume"`
	Muted       bool          `json:"muted"`
	Loading     bool          `json:"loading"`
	LastError   string        `json:"last_error,omitempty"`
}

// Transport owns exactly one source at a time.
type Transport struct {
	mu        sync.Mutex
	state     State
	loadGen   uint64
	playStop  chan struct{}
	lastTick  time.Time
	listeners []func(time.Duration)
	onChange  func()

	prober      media.Prober
	clock       clock.Clock
	sourceCheck func(string) error

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// Option configures a Transport.
type Option func(*Transport)

// WithClock replaces the wall clock driving playback.
func WithClock(c clock.Clock) Option { return func(t *Transport) { t.clock = c } }

// WithSourceCheck replaces the per-tick source availability check.
func WithSourceCheck(fn func(string) error) Option {
	return func(t *Transport) { t.sourceCheck = fn }
}

// New returns a transport with no source, full volume, unmuted.
func New(prober media.Prober, opts ...Option) *Transport {
	t := &Transport{
		state:  State{Phase: PhaseNoSource, Volume: 1},
		prober: prober,
		clock:  clock.Real(),
		sourceCheck: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetLogger injects a diaglog.Logger for debug logging.
func (t *Transport) SetLogger(l *diaglog.Logger) {
	t.loggerMu.Lock()
	t.logger = l
	t.loggerMu.Unlock()
}

func (t *Transport) log(entry diaglog.LogEntry) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l == nil {
		return
	}
	entry.Component = diaglog.ComponentTransport
	l.Log(entry)
}

// OnTimeUpdate registers fn to receive every position change. fn runs
// without the transport lock held.
func (t *Transport) OnTimeUpdate(fn func(time.Duration)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// OnChange registers a coarse notification for any state change.
func (t *Transport) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// State returns a copy of the current playback state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// CurrentTime returns the playback position.
func (t *Transport) CurrentTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.CurrentTime
}

// HasSource reports whether real audio is attached.
func (t *Transport) HasSource() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Source != ""
}

// Load replaces the source. Prior position and duration are discarded and
// the transport passes through Loading while the duration is probed.
func (t *Transport) Load(path string) {
	t.mu.Lock()
	t.stopClockLocked()
	t.loadGen++
	gen := t.loadGen
	t.state = State{
		Source:  path,
		Phase:   PhaseLoading,
		Loading: true,
		Volume:  t.state.Volume,
		Muted:   t.state.Muted,
	}
	t.mu.Unlock()
	t.changed(0)

	t.log(diaglog.LogEntry{Event: diaglog.EventTransportLoad, Payload: map[string]interface{}{"source": path}})
	go t.probe(gen, path)
}

func (t *Transport) probe(gen uint64, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d, err := t.prober.Duration(ctx, path)

	t.mu.Lock()
	if gen != t.loadGen {
		t.mu.Unlock()
		return
	}
	t.state.Loading = false
	switch {
	case err != nil:
		t.state.Phase = PhaseError
		t.state.LastError = fmt.Sprintf("load %s: %v", path, err)
	case d <= 0:
		t.state.Phase = PhaseError
		t.state.LastError = fmt.Sprintf("load %s: zero duration", path)
	default:
		t.state.Phase = PhaseReady
		t.state.Duration = d
	}
	st := t.state
	t.mu.Unlock()

	if st.Phase == PhaseError {
		t.log(diaglog.LogEntry{Event: diaglog.EventTransportError, Reason: st.LastError})
	}
	t.changed(st.CurrentTime)
}

// Unload detaches the source and returns to NoSource. Volume and mute
// survive.
func (t *Transport) Unload() {
	t.mu.Lock()
	t.stopClockLocked()
	t.loadGen++
	t.state = State{Phase: PhaseNoSource, Volume: t.state.Volume, Muted: t.state.Muted}
	t.mu.Unlock()
	t.changed(0)
}

// Play starts the playback clock. Playing from Ended restarts at zero.
func (t *Transport) Play() error {
	t.mu.Lock()
	switch t.state.Phase {
	case PhaseNoSource:
		t.mu.Unlock()
		return ErrNoSource
	case PhaseLoading, PhaseError:
		t.mu.Unlock()
		return ErrNotReady
	case PhasePlaying:
		t.mu.Unlock()
		return nil
	case PhaseEnded:
		t.state.CurrentTime = 0
	}
	t.state.Phase = PhasePlaying
	t.state.Playing = true
	t.lastTick = t.clock.Now()
	stop := make(chan struct{})
	t.playStop = stop
	ticker := t.clock.NewTicker(TimeUpdateInterval)
	pos := t.state.CurrentTime
	t.mu.Unlock()

	go t.run(ticker, stop)
	t.changed(pos)
	return nil
}

func (t *Transport) run(ticker clock.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			if !t.advance(stop, now) {
				return
			}
		}
	}
}

// advance moves the position by the elapsed time. It returns false when the
// clock should stop.
func (t *Transport) advance(stop chan struct{}, now time.Time) bool {
	t.mu.Lock()
	if t.playStop != stop {
		t.mu.Unlock()
		return false
	}
	if err := t.sourceCheck(t.state.Source); err != nil {
		t.stopClockLocked()
		t.state.Phase = PhaseError
		t.state.LastError = fmt.Sprintf("playback: %v", err)
		pos := t.state.CurrentTime
		msg := t.state.LastError
		t.mu.Unlock()
		t.log(diaglog.LogEntry{Event: diaglog.EventTransportError, Reason: msg})
		t.changed(pos)
		return false
	}

	elapsed := now.Sub(t.lastTick)
	if elapsed < 0 {
		elapsed = 0
	}
	t.lastTick = now
	t.state.CurrentTime += elapsed
	cont := true
	if t.state.CurrentTime >= t.state.Duration {
		t.state.CurrentTime = t.state.Duration
		t.stopClockLocked()
		t.state.Phase = PhaseEnded
		cont = false
	}
	pos := t.state.CurrentTime
	t.mu.Unlock()

	t.changed(pos)
	return cont
}

// Pause stops the playback clock. Pausing when not playing is a no-op.
func (t *Transport) Pause() {
	t.mu.Lock()
	if t.state.Phase != PhasePlaying {
		t.mu.Unlock()
		return
	}
	t.stopClockLocked()
	t.state.Phase = PhasePaused
	pos := t.state.CurrentTime
	t.mu.Unlock()
	t.changed(pos)
}

// stopClockLocked cancels the playback goroutine. Caller holds t.mu.
func (t *Transport) stopClockLocked() {
	if t.playStop != nil {
		close(t.playStop)
		t.playStop = nil
	}
	t.state.Playing = false
}

// SeekTo moves the position, clamped to [0, duration]. Requests before the
// duration is known are ignored and reported as false.
func (t *Transport) SeekTo(pos time.Duration) bool {
	t.mu.Lock()
	if t.state.Duration <= 0 {
		t.mu.Unlock()
		return false
	}
	if pos < 0 {
		pos = 0
	}
	if pos > t.state.Duration {
		pos = t.state.Duration
	}
	t.state.CurrentTime = pos
	if t.state.Phase == PhaseEnded && pos < t.state.Duration {
		t.state.Phase = PhasePaused
	}
	if t.state.Playing {
		t.lastTick = t.clock.Now()
	}
	t.mu.Unlock()
	t.changed(pos)
	return true
}

// SetVolume sets the volume, clamped to [0,1].
func (t *Transport) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	t.mu.Lock()
	t.state.Volume = v
	pos := t.state.CurrentTime
	t.mu.Unlock()
	t.notify(pos, false)
}

// SetMuted toggles mute without touching volume.
func (t *Transport) SetMuted(m bool) {
	t.mu.Lock()
	t.state.Muted = m
	pos := t.state.CurrentTime
	t.mu.Unlock()
	t.notify(pos, false)
}

// Reset pauses and seeks to zero while keeping the source attached.
func (t *Transport) Reset() {
	t.Pause()
	t.SeekTo(0)
}

func (t *Transport) changed(pos time.Duration) { t.notify(pos, true) }

func (t *Transport) notify(pos time.Duration, timeUpdate bool) {
	t.mu.Lock()
	listeners := append(([]func(time.Duration))(nil), t.listeners...)
	onChange := t.onChange
	t.mu.Unlock()

	if timeUpdate {
		for _, fn := range listeners {
			fn(pos)
		}
	}
	if onChange != nil {
		onChange()
	}
}
