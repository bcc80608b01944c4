package testutil

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogCapture collects log output. It is an io.Writer, so it can back a
// *log.Logger directly or replace the standard logger's output via Start.
type LogCapture struct {
	buf      bytes.Buffer
	mu       sync.Mutex
	original io.Writer
}

// NewLogCapture creates a new log capture instance
func NewLogCapture() *LogCapture {
	return &LogCapture{original: log.Writer()}
}

// Write appends p under the capture's lock.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// Logger returns a logger that writes into the capture.
func (lc *LogCapture) Logger(prefix string) *log.Logger {
	return log.New(lc, prefix, 0)
}

// Start redirects the standard logger into the capture.
func (lc *LogCapture) Start() {
	log.SetOutput(lc)
}

// Stop restores the standard logger's original output.
func (lc *LogCapture) Stop() {
	log.SetOutput(lc.original)
}

// String returns all captured log output
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the capture buffer
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}

// Contains checks if the log output contains the given substring
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// Count returns the number of times a substring appears in the log
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns all captured log lines
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}

// StdoutCapture temporarily redirects os.Stdout.
type StdoutCapture struct {
	buf      bytes.Buffer
	original *os.File
	r, w     *os.File
	done     chan struct{}
}

// NewStdoutCapture creates a new stdout capture instance
func NewStdoutCapture() *StdoutCapture {
	return &StdoutCapture{original: os.Stdout}
}

// Start begins capturing stdout
func (sc *StdoutCapture) Start() error {
	var err error
	sc.r, sc.w, err = os.Pipe()
	if err != nil {
		return err
	}
	os.Stdout = sc.w
	sc.done = make(chan struct{})
	go func() {
		defer close(sc.done)
		_, _ = io.Copy(&sc.buf, sc.r)
	}()
	return nil
}

// Stop restores stdout and returns everything written while capturing.
func (sc *StdoutCapture) Stop() string {
	os.Stdout = sc.original
	if sc.w == nil {
		return sc.buf.String()
	}
	_ = sc.w.Close()
	<-sc.done
	_ = sc.r.Close()
	sc.w, sc.r = nil, nil
	return sc.buf.String()
}
