package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/fileutil"
	"github.com/tiroq/memoscribe/internal/ipc"
	"github.com/tiroq/memoscribe/internal/media"
	"github.com/tiroq/memoscribe/internal/transcript"
)

func (s *Server) snapshot(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, s.opts.Session.Snapshot())
}

// respond answers a mutating request with the resulting snapshot, or the
// mapped error.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		fail(w, err)
		return
	}
	s.snapshot(w)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	start := time.Now()
	st, err := s.opts.Health.HealthCheck(ctx)
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if st.Latency == 0 {
		st.Latency = time.Since(start)
	}
	status := http.StatusOK
	if !st.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ok":         st.OK,
		"backend":    st.Backend,
		"message":    st.Message,
		"latency_ms": st.Latency.Milliseconds(),
		"clients":    s.hub.count(),
	})
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) { s.snapshot(w) }

func (s *Server) languages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"languages": media.Languages,
		"default":   media.DefaultLanguage,
	})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.opts.Session.Reset()
	s.snapshot(w)
}

// command accepts the same line syntax as the command file.
func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := ipc.Parse(req.Command)
	if err != nil || cmd.Verb == "" {
		jsonError(w, fmt.Sprintf("invalid command %q", req.Command), http.StatusBadRequest)
		return
	}
	if cmd.Verb == ipc.CmdQuit {
		jsonError(w, errQuitOverWS.Error(), http.StatusForbidden)
		return
	}
	s.log(diaglog.LogEntry{Event: diaglog.EventCommandReceived, Reason: "http", Payload: map[string]string{"command": string(cmd.Verb)}})
	s.respond(w, s.disp.Dispatch(cmd))
}

func (s *Server) selectFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		Language string `json:"language"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}
	s.respond(w, s.opts.Session.SelectFile(req.Path, req.Language))
}

// uploadFile stores a multipart "file" part in UploadDir and selects it.
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if s.opts.UploadDir == "" {
		jsonError(w, "uploads are disabled", http.StatusNotImplemented)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxFileSize+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		jsonError(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}

	var path, language string
	// Uploads abandoned by an early return are removed on the way out.
	handled := false
	defer func() {
		if path != "" && !handled {
			s.removeUpload(path)
		}
	}()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			jsonError(w, "invalid multipart body", http.StatusBadRequest)
			return
		}
		switch part.FormName() {
		case "language":
			b, _ := io.ReadAll(io.LimitReader(part, 32))
			language = strings.TrimSpace(string(b))
		case "file":
			name := filepath.Base(part.FileName())
			ext := filepath.Ext(name)
			if !media.IsSupported(name) {
				fail(w, fmt.Errorf("%w: %s", media.ErrUnsupportedFormat, ext))
				return
			}
			name = fileutil.SanitizeForFilename(fileutil.Stem(name), "upload") + strings.ToLower(ext)
			if path != "" {
				s.removeUpload(path)
			}
			path, err = s.storeUpload(name, part)
			if err != nil {
				s.logf("upload failed: %v", err)
				jsonError(w, "failed to store upload", http.StatusInternalServerError)
				return
			}
		}
		part.Close()
	}
	if path == "" {
		jsonError(w, "file part is required", http.StatusBadRequest)
		return
	}
	err = s.opts.Session.SelectFile(path, language)
	if err != nil {
		s.removeUpload(path)
	}
	handled = true
	s.respond(w, err)
}

// removeUpload deletes the per-upload directory holding path. Paths outside
// UploadDir are left alone.
func (s *Server) removeUpload(path string) {
	if s.opts.UploadDir == "" {
		return
	}
	dir := filepath.Dir(path)
	rel, err := filepath.Rel(s.opts.UploadDir, dir)
	if err != nil || rel == "." || rel == ".." || strings.ContainsRune(rel, filepath.Separator) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logf("remove upload %s: %v", dir, err)
	}
}

func (s *Server) storeUpload(name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0755); err != nil {
		return "", err
	}
	dir := filepath.Join(s.opts.UploadDir, uuid.NewString())
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return "", err
	}
	return path, f.Close()
}

func (s *Server) retryFile(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.opts.Session.RetryFile())
}

func (s *Server) setLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.respond(w, s.opts.Session.SetLanguage(req.Language))
}

func (s *Server) setURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.opts.Session.SetURLText(req.URL)
	s.snapshot(w)
}

func (s *Server) processURL(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.opts.Session.ProcessURL())
}

func (s *Server) setPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.opts.Session.SetPrompt(req.Prompt)
	s.snapshot(w)
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.opts.Session.Summarize())
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.opts.Session.SuggestPrompts())
}

func (s *Server) applySuggestion(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		jsonError(w, "invalid suggestion index", http.StatusBadRequest)
		return
	}
	s.respond(w, s.opts.Session.ApplySuggestion(i))
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.opts.Session.Play())
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.opts.Session.Pause()
	s.snapshot(w)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.opts.Session.TogglePlay())
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := decode(r, &req); err != nil || req.Seconds < 0 {
		jsonError(w, "seconds must be a non-negative number", http.StatusBadRequest)
		return
	}
	if !s.opts.Session.Seek(time.Duration(req.Seconds * float64(time.Second))) {
		fail(w, ipc.ErrNothingToSeek)
		return
	}
	s.snapshot(w)
}

func (s *Server) seekSegment(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		jsonError(w, "invalid segment index", http.StatusBadRequest)
		return
	}
	ok, err := s.opts.Session.SeekToSegment(i)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("X-Seeked", strconv.FormatBool(ok))
	s.snapshot(w)
}

func (s *Server) volume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
		Muted  *bool    `json:"muted"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Volume != nil {
		s.opts.Session.SetVolume(*req.Volume)
	}
	if req.Muted != nil {
		s.opts.Session.SetMuted(*req.Muted)
	}
	s.snapshot(w)
}

func (s *Server) dismissNotice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid notice id", http.StatusBadRequest)
		return
	}
	s.opts.Session.DismissNotice(id)
	s.snapshot(w)
}

// transcript renders the current transcript as a download.
func (s *Server) transcript(w http.ResponseWriter, r *http.Request) {
	format := transcript.FormatText
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := transcript.ParseFormat(q)
		if err != nil {
			fail(w, err)
			return
		}
		format = f
	}
	t, err := s.opts.Session.Transcript()
	if err != nil {
		fail(w, err)
		return
	}
	body, err := transcript.Render(format, t)
	if err != nil {
		fail(w, err)
		return
	}
	name := s.opts.Session.ExportName()
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+string(format)))
	w.Write(body)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dir     string   `json:"dir"`
		Formats []string `json:"formats"`
	}
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	dir := req.Dir
	if dir == "" {
		dir = s.opts.ExportDir
	}
	if dir == "" {
		jsonError(w, "dir is required", http.StatusBadRequest)
		return
	}
	if len(req.Formats) == 0 {
		req.Formats = []string{string(transcript.FormatText)}
	}
	formats := make([]transcript.Format, 0, len(req.Formats))
	for _, name := range req.Formats {
		f, err := transcript.ParseFormat(name)
		if err != nil {
			fail(w, err)
			return
		}
		formats = append(formats, f)
	}
	paths, err := s.opts.Session.Export(dir, formats)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": paths})
}
