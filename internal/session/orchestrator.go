package session

import (
	"context"
	"strings"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
)

// startTranscriptionLocked runs the clear phase of a processing attempt and
// launches the call. The call phase and apply phase happen in
// runTranscription under the generation captured here.
func (s *Session) startTranscriptionLocked() {
	gen := s.bumpLocked()
	ctx := s.callCtx

	s.sim.Cancel()
	s.sim.Set(0)
	s.clearDerivedLocked()
	s.tr.Reset()
	s.tr.Load(s.file.Path)
	s.bridge.SetEnabled(true)
	s.processingFile = true

	s.sim.Start(s.cfg.ProgressStep, s.cfg.ProgressInterval, s.cfg.ProgressCap)

	f, lang := s.file, s.language
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventTranscribeStart,
		Payload: map[string]interface{}{"generation": gen, "file": f.Name, "language": lang},
	})

	s.wg.Add(1)
	go s.runTranscription(ctx, gen, f, lang)
}

func (s *Session) runTranscription(ctx context.Context, gen uint64, f *media.File, lang string) {
	defer s.wg.Done()

	result, err := s.transcribe(ctx, f, lang)

	s.mu.Lock()
	if s.staleLocked(gen, asr.OpTranscribe) {
		s.mu.Unlock()
		return
	}
	s.sim.Cancel()
	switch {
	case err != nil:
		s.sim.Set(0)
		s.clearDerivedLocked()
		msg := asr.UserMessage(err)
		s.noticeLocked(NoticeDestructive, "Transcription failed", msg)
		s.log(diaglog.LogEntry{Event: diaglog.EventTranscribeFailed, Reason: msg})
	case result.IsEmpty():
		s.sim.Set(100)
		s.clearDerivedLocked()
		s.noticeLocked(NoticeInfo, "No speech detected", "The transcription finished but returned no text.")
		s.log(diaglog.LogEntry{Event: diaglog.EventTranscribeSuccess, Reason: "empty"})
	default:
		s.sim.Set(100)
		s.applyTranscriptLocked(result)
		s.noticeLocked(NoticeInfo, "Transcription complete", "")
		s.log(diaglog.LogEntry{
			Event:   diaglog.EventTranscribeSuccess,
			Payload: map[string]interface{}{"segments": len(result.Segments), "backend": result.Backend},
		})
	}
	s.processingFile = false
	s.mu.Unlock()
	s.notify()
}

// transcribe covers the two suspension points of a file attempt: encoding
// the file and the capability call.
func (s *Session) transcribe(ctx context.Context, f *media.File, lang string) (*asr.Transcript, error) {
	if s.cfg.Transcriber == nil {
		return nil, &asr.CapabilityError{Op: asr.OpTranscribe, Backend: "none", Err: ErrNoCapability}
	}
	encoded, err := s.cfg.Encode(f)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.cfg.Transcriber.Transcribe(ctx, encoded, lang)
}

func (s *Session) applyTranscriptLocked(t *asr.Transcript) {
	segs := make([]asr.Segment, len(t.Segments))
	copy(segs, t.Segments)
	text := t.Text
	if strings.TrimSpace(text) == "" {
		parts := make([]string, 0, len(segs))
		for _, seg := range segs {
			if p := strings.TrimSpace(seg.Text); p != "" {
				parts = append(parts, p)
			}
		}
		text = strings.Join(parts, " ")
	}
	s.transcript = text
	s.segments = segs
	s.bridge.SetSegments(segs)
}
