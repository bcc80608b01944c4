// Package server exposes the session over HTTP and pushes snapshots to
// WebSocket clients.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/ipc"
	"github.com/tiroq/memoscribe/internal/session"
	"github.com/tiroq/memoscribe/internal/templates"
)

// TemplateStore is the template persistence the API needs.
type TemplateStore interface {
	List() ([]templates.Template, error)
	Get(slot int) (templates.Template, error)
	Save(slot int, name, prompt string) (templates.Template, error)
	Delete(slot int) error
}

// HealthChecker reports backend health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*asr.HealthStatus, error)
}

// Options wires the server.
type Options struct {
	Session   *session.Session
	Templates TemplateStore
	Health    HealthChecker

	// Auth nil disables bearer checks.
	Auth        *Auth
	CORSOrigins []string

	ExportDir string
	UploadDir string

	Log *log.Logger
}

// Server is the HTTP front of one session.
type Server struct {
	opts Options
	disp *ipc.Dispatcher
	hub  *Hub

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New builds a server. Options.Session is required.
func New(opts Options) *Server {
	var tpl ipc.TemplateSource
	if opts.Templates != nil {
		tpl = opts.Templates
	}
	s := &Server{
		opts: opts,
		disp: ipc.NewDispatcher(opts.Session, tpl, opts.ExportDir),
	}
	s.hub = newHub(s, opts.CORSOrigins)
	if opts.Session != nil && opts.UploadDir != "" {
		opts.Session.OnFileReleased(s.removeUpload)
	}
	return s
}

// SetLogger injects a diaglog.Logger for debug logging.
func (s *Server) SetLogger(l *diaglog.Logger) {
	s.loggerMu.Lock()
	s.logger = l
	s.loggerMu.Unlock()
}

func (s *Server) log(entry diaglog.LogEntry) {
	s.loggerMu.RLock()
	l := s.logger
	s.loggerMu.RUnlock()
	if l == nil {
		return
	}
	entry.Component = diaglog.ComponentServer
	l.Log(entry)
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(corsOptions(s.opts.CORSOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Group(func(r chi.Router) {
			if s.opts.Auth != nil {
				r.Use(s.opts.Auth.Middleware)
			}

			r.Get("/state", s.state)
			r.Get("/languages", s.languages)
			r.Post("/reset", s.reset)
			r.Post("/command", s.command)
			r.Get("/ws", s.hub.serve)

			r.Post("/file", s.selectFile)
			r.Post("/file/upload", s.uploadFile)
			r.Post("/file/retry", s.retryFile)
			r.Put("/language", s.setLanguage)

			r.Put("/url", s.setURL)
			r.Post("/url/process", s.processURL)

			r.Put("/prompt", s.setPrompt)
			r.Post("/summarize", s.summarize)
			r.Post("/suggestions", s.suggest)
			r.Post("/suggestions/{index}/apply", s.applySuggestion)

			r.Post("/playback/play", s.play)
			r.Post("/playback/pause", s.pause)
			r.Post("/playback/toggle", s.toggle)
			r.Post("/playback/seek", s.seek)
			r.Post("/playback/segment/{index}", s.seekSegment)
			r.Put("/playback/volume", s.volume)

			r.Delete("/notices/{id}", s.dismissNotice)

			r.Get("/transcript", s.transcript)
			r.Post("/export", s.export)

			r.Get("/templates", s.listTemplates)
			r.Put("/templates/{slot}", s.saveTemplate)
			r.Delete("/templates/{slot}", s.deleteTemplate)
			r.Post("/templates/{slot}/apply", s.applyTemplate)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int { return s.hub.count() }
