// Package progress drives a simulated percentage while a long-running call
// that reports no intermediate progress is in flight.
package progress

import (
	"sync"
	"time"

	"github.com/tiroq/memoscribe/internal/clock"
)

// Default parameters used by the transcription pipeline.
const (
	DefaultStep     = 5
	DefaultInterval = 500 * time.Millisecond
	DefaultCap      = 95
)

// Simulator owns a single cancellable ticker slot. Starting while a ticker is
// active cancels the previous one first.
type Simulator struct {
	mu       sync.Mutex
	value    int
	active   *run
	onChange func()
	clock    clock.Clock
}

type run struct {
	ticker clock.Ticker
	stop   chan struct{}
	step   int
	limit  int
}

// New returns an idle simulator at 0%. onChange, if non-nil, is called after
// every tick that changed the value. It runs on the ticker goroutine without
// the simulator lock held.
func New(onChange func()) *Simulator {
	return NewWithClock(clock.Real(), onChange)
}

// NewWithClock is New with an explicit clock.
func NewWithClock(c clock.Clock, onChange func()) *Simulator {
	return &Simulator{onChange: onChange, clock: c}
}

// Start begins ticking from the current value. Each tick adds step; once the
// value would reach limit it is clamped and held there until Cancel.
func (s *Simulator) Start(step int, interval time.Duration, limit int) {
	if limit > 100 {
		limit = 100
	}
	s.mu.Lock()
	s.cancelLocked()
	r := &run{
		ticker: s.clock.NewTicker(interval),
		stop:   make(chan struct{}),
		step:   step,
		limit:  limit,
	}
	s.active = r
	s.mu.Unlock()

	go s.loop(r)
}

func (s *Simulator) loop(r *run) {
	defer r.ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C():
			if s.tick(r) && s.onChange != nil {
				s.onChange()
			}
		}
	}
}

// tick advances the value for run r. Ticks from a run that is no longer the
// active one are dropped.
func (s *Simulator) tick(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != r {
		return false
	}
	if s.value >= r.limit {
		return false
	}
	next := s.value + r.step
	if next >= r.limit {
		next = r.limit
	}
	s.value = next
	return true
}

// Cancel stops the active ticker. Safe to call repeatedly and when idle.
func (s *Simulator) Cancel() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
}

func (s *Simulator) cancelLocked() {
	if s.active == nil {
		return
	}
	close(s.active.stop)
	s.active = nil
}

// Set forces the value, clamped to [0,100]. It does not touch the ticker.
func (s *Simulator) Set(v int) {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// Value returns the current percentage.
func (s *Simulator) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Running reports whether a ticker is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
