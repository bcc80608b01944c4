package session

import (
	"strings"
	"time"

	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
)

// SelectFile validates path and language, switches to file mode and starts
// transcription. An active URL or placeholder triggers a full reset first.
// Validation failures raise a notice and leave state untouched. A new
// selection is refused with ErrBusy while a file is still processing.
func (s *Session) SelectFile(path, language string) error {
	s.mu.Lock()
	defer s.flushReleased()
	defer s.notify()
	defer s.mu.Unlock()

	if s.processingFile {
		return ErrBusy
	}

	if language == "" {
		language = s.language
	}
	lang, err := media.NormalizeLanguage(language)
	if err != nil {
		s.noticeLocked(NoticeDestructive, "Unsupported language", err.Error())
		return err
	}
	f, err := media.ValidateFile(path)
	if err != nil {
		s.noticeLocked(NoticeDestructive, "Cannot use this file", err.Error())
		return err
	}

	if s.urlText != "" || s.placeholder != "" || s.processingURL {
		s.log(diaglog.LogEntry{Event: diaglog.EventModeSwitch, Reason: "url_to_file"})
		s.resetLocked("mode_switch")
	}

	if s.file != nil && s.file.Path != f.Path {
		s.releaseLocked(s.file)
	}
	s.file = f
	s.language = lang
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventFileSelected,
		Payload: map[string]interface{}{"name": f.Name, "mime_type": f.MIMEType, "size": f.Size, "language": lang},
	})
	s.startTranscriptionLocked()
	return nil
}

// RetryFile re-runs transcription for the selected file. Failures are never
// retried automatically.
func (s *Session) RetryFile() error {
	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	if s.file == nil {
		s.noticeLocked(NoticeDestructive, "No file selected", "")
		return ErrNoFile
	}
	if s.processingFile {
		return ErrBusy
	}
	s.startTranscriptionLocked()
	return nil
}

// SetLanguage changes the language used for the next transcription.
func (s *Session) SetLanguage(language string) error {
	lang, err := media.NormalizeLanguage(language)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetURLText updates the URL input. Entering text while a file is selected
// or processing resets the session first. Changing the text clears any
// result tied to the previous value; unchanged text is a no-op.
func (s *Session) SetURLText(text string) {
	s.mu.Lock()
	if text == s.urlText {
		s.mu.Unlock()
		return
	}

	if text != "" && (s.file != nil || s.processingFile) {
		s.log(diaglog.LogEntry{Event: diaglog.EventModeSwitch, Reason: "file_to_url"})
		s.resetLocked("mode_switch")
	} else if s.placeholder != "" || s.processingURL || s.transcript != "" || s.summary != "" || s.tr.HasSource() {
		s.bumpLocked()
		s.processingURL = false
		s.placeholder = ""
		s.clearDerivedLocked()
		s.bridge.SetEnabled(false)
		s.tr.Unload()
	}
	s.urlText = text
	s.mu.Unlock()
	s.notify()
	s.flushReleased()
}

// ProcessURL runs the remote-URL path. It never transcribes: it sets the
// fixed placeholder message at once and clears ProcessingURL after the
// settle delay.
func (s *Session) ProcessURL() error {
	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	url := strings.TrimSpace(s.urlText)
	if url == "" {
		s.noticeLocked(NoticeDestructive, "Missing URL", ErrEmptyURL.Error())
		return ErrEmptyURL
	}
	if s.processingURL {
		return ErrBusy
	}

	gen := s.bumpLocked()
	s.sim.Cancel()
	s.sim.Set(0)
	s.clearDerivedLocked()
	s.bridge.SetEnabled(false)
	s.tr.Unload()

	s.processingURL = true
	s.placeholder = PlaceholderMessage
	s.noticeLocked(NoticeInfo, "Remote URLs are not supported", PlaceholderMessage)
	s.log(diaglog.LogEntry{Event: diaglog.EventURLProcessed, Payload: map[string]interface{}{"url": url}})

	s.wg.Add(1)
	time.AfterFunc(s.cfg.URLSettleDelay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.staleLocked(gen, "url_settle") {
			s.mu.Unlock()
			return
		}
		s.processingURL = false
		s.mu.Unlock()
		s.notify()
	})
	return nil
}
