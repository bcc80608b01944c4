package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tiroq/memoscribe/internal/diaglog"
)

func (s *Server) slot(w http.ResponseWriter, r *http.Request) (int, bool) {
	if s.opts.Templates == nil {
		jsonError(w, "template store not configured", http.StatusNotImplemented)
		return 0, false
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		jsonError(w, "invalid slot", http.StatusBadRequest)
		return 0, false
	}
	return slot, true
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	if s.opts.Templates == nil {
		jsonError(w, "template store not configured", http.StatusNotImplemented)
		return
	}
	list, err := s.opts.Templates.List()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) saveTemplate(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.slot(w, r)
	if !ok {
		return
	}
	var req struct {
		Name   string `json:"name"`
		Prompt string `json:"prompt"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// An empty prompt saves the session's current prompt.
	if req.Prompt == "" {
		req.Prompt = s.opts.Session.Snapshot().Prompt
	}
	tpl, err := s.opts.Templates.Save(slot, req.Name, req.Prompt)
	if err != nil {
		fail(w, err)
		return
	}
	s.log(diaglog.LogEntry{Event: diaglog.EventTemplateSaved, Payload: map[string]interface{}{"slot": slot}})
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.slot(w, r)
	if !ok {
		return
	}
	if err := s.opts.Templates.Delete(slot); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyTemplate(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.slot(w, r)
	if !ok {
		return
	}
	tpl, err := s.opts.Templates.Get(slot)
	if err != nil {
		fail(w, err)
		return
	}
	s.opts.Session.SetPrompt(tpl.Prompt)
	s.snapshot(w)
}
