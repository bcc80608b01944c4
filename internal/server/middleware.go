package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tiroq/memoscribe/internal/ipc"
	"github.com/tiroq/memoscribe/internal/media"
	"github.com/tiroq/memoscribe/internal/session"
	"github.com/tiroq/memoscribe/internal/templates"
	"github.com/tiroq/memoscribe/internal/transcript"
	"github.com/tiroq/memoscribe/internal/transport"
)

// Polled endpoints that are not logged unless they fail.
var silentPaths = map[string]bool{
	"/api/health": true,
	"/api/state":  true,
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if silentPaths[r.URL.Path] && status < 400 {
			return
		}
		s.logf("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start).Round(time.Millisecond))
	})
}

func corsOptions(allowed []string) cors.Options {
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	allowCreds := true
	for _, o := range allowed {
		if o == "*" {
			allowCreds = false
			break
		}
	}
	return cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, ipc.ErrNothingToSeek),
		errors.Is(err, transport.ErrNoSource),
		errors.Is(err, transport.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoCapability):
		return http.StatusNotImplemented
	case errors.Is(err, templates.ErrEmptySlot),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyURL),
		errors.Is(err, session.ErrNoFile),
		errors.Is(err, session.ErrNoTranscript),
		errors.Is(err, session.ErrEmptyPrompt),
		errors.Is(err, session.ErrBadSuggestion),
		errors.Is(err, media.ErrUnsupportedFormat),
		errors.Is(err, media.ErrFileTooLarge),
		errors.Is(err, media.ErrUnsupportedLanguage),
		errors.Is(err, templates.ErrInvalidSlot),
		errors.Is(err, templates.ErrEmptyPrompt),
		errors.Is(err, transcript.ErrUnknownFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, err error) {
	jsonError(w, err.Error(), statusFor(err))
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.opts.Log != nil {
		s.opts.Log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

var errQuitOverWS = errors.New("quit is only accepted from the command file")
