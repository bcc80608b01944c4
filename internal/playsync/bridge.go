// Package playsync links transcript segments to the audio transport: the
// position selects the active segment, and clicking a segment seeks.
package playsync

import (
	"fmt"
	"sync"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
)

// Tolerance widens each segment's end to mask rounding at boundaries.
const Tolerance = 100 * time.Millisecond

// IsActive reports whether pos falls in [seg.Start, seg.End+Tolerance].
func IsActive(seg asr.Segment, pos time.Duration) bool {
	return pos >= seg.Start && pos <= seg.End+Tolerance
}

// ActiveIndex scans segments in order and returns the first active one, or
// -1. Segment lists are small enough that a linear scan per update is fine.
func ActiveIndex(segments []asr.Segment, pos time.Duration) int {
	for i, seg := range segments {
		if IsActive(seg, pos) {
			return i
		}
	}
	return -1
}

// Seeker is the narrow command surface the bridge needs from the transport.
type Seeker interface {
	SeekTo(pos time.Duration) bool
	HasSource() bool
}

// Bridge tracks the active segment for the current transcript.
type Bridge struct {
	mu       sync.Mutex
	seeker   Seeker
	segments []asr.Segment
	active   int
	enabled  bool
	onActive func(int)
}

// New returns a bridge with no segments. onActive, if non-nil, is called
// whenever the active index changes, without the bridge lock held.
func New(seeker Seeker, onActive func(int)) *Bridge {
	return &Bridge{seeker: seeker, active: -1, onActive: onActive}
}

// SetSegments replaces the transcript wholesale and clears the highlight.
func (b *Bridge) SetSegments(segments []asr.Segment) {
	b.mu.Lock()
	b.segments = segments
	changed := b.active != -1
	b.active = -1
	b.mu.Unlock()
	if changed {
		b.emit(-1)
	}
}

// SetEnabled gates click-to-seek. It is false whenever no real audio backs
// the transcript, e.g. in URL placeholder mode.
func (b *Bridge) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

// Update recomputes the active segment for pos. Wire it to the transport's
// time updates.
func (b *Bridge) Update(pos time.Duration) {
	b.mu.Lock()
	idx := ActiveIndex(b.segments, pos)
	changed := idx != b.active
	b.active = idx
	b.mu.Unlock()
	if changed {
		b.emit(idx)
	}
}

// Active returns the active segment index, or -1.
func (b *Bridge) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SeekToSegment seeks the transport to segment i's start. It returns false
// without seeking when no real audio exists.
func (b *Bridge) SeekToSegment(i int) (bool, error) {
	b.mu.Lock()
	if i < 0 || i >= len(b.segments) {
		n := len(b.segments)
		b.mu.Unlock()
		return false, fmt.Errorf("segment %d out of range (have %d)", i, n)
	}
	start := b.segments[i].Start
	enabled := b.enabled
	b.mu.Unlock()

	if !enabled || !b.seeker.HasSource() {
		return false, nil
	}
	return b.seeker.SeekTo(start), nil
}

func (b *Bridge) emit(idx int) {
	if b.onActive != nil {
		b.onActive(idx)
	}
}
