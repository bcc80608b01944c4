package session

import (
	"time"

	"github.com/tiroq/memoscribe/internal/transport"
)

// Play starts playback of the loaded file. There is no source in URL mode.
func (s *Session) Play() error { return s.tr.Play() }

// Pause halts playback.
func (s *Session) Pause() { s.tr.Pause() }

// TogglePlay flips between playing and paused.
func (s *Session) TogglePlay() error {
	if s.tr.State().Phase == transport.PhasePlaying {
		s.tr.Pause()
		return nil
	}
	return s.tr.Play()
}

// Seek moves the playhead. It reports false when nothing is seekable.
func (s *Session) Seek(pos time.Duration) bool { return s.tr.SeekTo(pos) }

// SetVolume sets the output volume in [0,1].
func (s *Session) SetVolume(v float64) { s.tr.SetVolume(v) }

// SetMuted toggles mute without touching the volume.
func (s *Session) SetMuted(m bool) { s.tr.SetMuted(m) }

// SeekToSegment seeks to the start of segment i. It is a no-op returning
// false when no real audio exists.
func (s *Session) SeekToSegment(i int) (bool, error) {
	return s.bridge.SeekToSegment(i)
}
