package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/diaglog"
)

// SetPrompt replaces the summary prompt.
func (s *Session) SetPrompt(prompt string) {
	s.mu.Lock()
	s.prompt = prompt
	s.mu.Unlock()
	s.notify()
}

// Summarize asks the summarizer to condense the current transcript using
// the current prompt. The result replaces the previous summary verbatim.
func (s *Session) Summarize() error {
	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	if strings.TrimSpace(s.transcript) == "" {
		s.noticeLocked(NoticeDestructive, "Nothing to summarize", ErrNoTranscript.Error())
		return ErrNoTranscript
	}
	if strings.TrimSpace(s.prompt) == "" {
		s.noticeLocked(NoticeDestructive, "Missing prompt", ErrEmptyPrompt.Error())
		return ErrEmptyPrompt
	}
	if s.summarizing {
		return ErrBusy
	}
	if s.cfg.Summarizer == nil {
		s.noticeLocked(NoticeDestructive, "Summarization unavailable", ErrNoCapability.Error())
		return ErrNoCapability
	}

	s.summarizing = true
	s.summary = ""
	gen, ctx := s.gen, s.callCtx
	transcript, prompt := s.transcript, s.prompt
	s.log(diaglog.LogEntry{Event: diaglog.EventSummarizeStart,
		Payload: map[string]interface{}{"generation": gen, "prompt_chars": len(prompt)}})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		out, err := s.cfg.Summarizer.Summarize(cctx, transcript, prompt)
		cancel()

		s.mu.Lock()
		if s.staleLocked(gen, asr.OpSummarize) {
			s.mu.Unlock()
			return
		}
		s.summarizing = false
		if err != nil {
			msg := asr.UserMessage(err)
			s.noticeLocked(NoticeDestructive, "Summarization failed", msg)
			s.log(diaglog.LogEntry{Event: diaglog.EventSummarizeFailed, Reason: msg})
		} else {
			s.summary = out
			s.log(diaglog.LogEntry{Event: diaglog.EventSummarizeDone,
				Payload: map[string]interface{}{"chars": len(out)}})
		}
		s.mu.Unlock()
		s.notify()
	}()
	return nil
}

// SuggestPrompts asks the suggester for prompts tailored to the transcript.
// The list replaces any previous suggestions.
func (s *Session) SuggestPrompts() error {
	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	if strings.TrimSpace(s.transcript) == "" {
		s.noticeLocked(NoticeDestructive, "Nothing to analyze", ErrNoTranscript.Error())
		return ErrNoTranscript
	}
	if s.suggesting {
		return ErrBusy
	}
	if s.cfg.Suggester == nil {
		s.noticeLocked(NoticeDestructive, "Suggestions unavailable", ErrNoCapability.Error())
		return ErrNoCapability
	}

	s.suggesting = true
	s.suggestions = nil
	gen, ctx, transcript := s.gen, s.callCtx, s.transcript

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		out, err := s.cfg.Suggester.SuggestPrompts(cctx, transcript)
		cancel()

		s.mu.Lock()
		if s.staleLocked(gen, asr.OpSuggest) {
			s.mu.Unlock()
			return
		}
		s.suggesting = false
		if err == nil {
			out = asr.NormalizeSuggestions(out)
			if len(out) == 0 {
				err = asr.ErrNoSuggestions
			}
		}
		if err != nil {
			msg := asr.UserMessage(err)
			s.noticeLocked(NoticeDestructive, "Prompt suggestions failed", msg)
			s.log(diaglog.LogEntry{Event: diaglog.EventSuggestFailed, Reason: msg})
		} else {
			s.suggestions = out
			s.log(diaglog.LogEntry{Event: diaglog.EventSuggestDone,
				Payload: map[string]interface{}{"count": len(out)}})
		}
		s.mu.Unlock()
		s.notify()
	}()
	return nil
}

// ApplySuggestion copies suggestion i into the prompt.
func (s *Session) ApplySuggestion(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.suggestions) {
		n := len(s.suggestions)
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrBadSuggestion, i, n)
	}
	s.prompt = s.suggestions[i]
	s.mu.Unlock()
	s.notify()
	return nil
}
