package session

import "github.com/tiroq/memoscribe/internal/diaglog"

// Reset returns the session to its canonical empty state. It is
// unconditional: it may run mid-transcription, and any completion that
// started before it is discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked("user")
	s.mu.Unlock()
	s.notify()
	s.flushReleased()
}

// resetLocked performs the total reset. Notices and the chosen language
// survive; everything else returns to its zero value and the transport is
// paused, rewound and unloaded.
func (s *Session) resetLocked(reason string) {
	s.sim.Cancel()
	s.sim.Set(0)
	s.bumpLocked()

	s.processingFile = false
	s.processingURL = false
	s.releaseLocked(s.file)
	s.file = nil
	s.urlText = ""
	s.placeholder = ""
	s.clearDerivedLocked()
	s.bridge.SetEnabled(false)

	s.tr.Reset()
	s.tr.Unload()

	s.log(diaglog.LogEntry{Event: diaglog.EventReset, Reason: reason,
		Payload: map[string]interface{}{"generation": s.gen}})
}
