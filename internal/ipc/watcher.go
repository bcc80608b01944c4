package ipc

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval backs up fsnotify, which can miss events on some
// filesystems, and replaces it entirely when no watcher is available.
const pollInterval = time.Second

// settleDelay lets a writer finish before the file is read.
const settleDelay = 50 * time.Millisecond

// Watcher delivers commands written to dir/cmd.txt.
type Watcher struct {
	dir     string
	handle  func(Command)
	onBad   func(error)
	logf    func(string, ...interface{})
	lastRun time.Time
}

// NewWatcher creates a watcher for dir. onBad receives unparsable lines and
// read failures; logf receives lifecycle messages. Either may be nil.
func NewWatcher(dir string, handle func(Command), onBad func(error), logf func(string, ...interface{})) *Watcher {
	if onBad == nil {
		onBad = func(error) {}
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Watcher{dir: dir, handle: handle, onBad: onBad, logf: logf}
}

// Run blocks until ctx is cancelled. Commands already queued at start are
// delivered first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	w.drain()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logf("fsnotify not available, falling back to polling: %v", err)
		return w.poll(ctx)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		w.logf("failed to watch %s, falling back to polling: %v", w.dir, err)
		return w.poll(ctx)
	}
	w.logf("command watcher started on %s (fsnotify)", w.dir)

	cmdPath := CommandPath(w.dir)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				w.logf("fsnotify closed, switching to polling")
				return w.poll(ctx)
			}
			if filepath.Clean(ev.Name) == cmdPath && ev.Has(fsnotify.Write|fsnotify.Create) {
				if !sleepCtx(ctx, settleDelay) {
					return nil
				}
				w.drain()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				w.logf("fsnotify error channel closed, switching to polling")
				return w.poll(ctx)
			}
			w.logf("fsnotify error: %v", err)
		case <-ticker.C:
			w.checkModified()
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	w.logf("command watcher started on %s (polling every %s)", w.dir, pollInterval)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.checkModified()
		}
	}
}

func (w *Watcher) checkModified() {
	info, err := os.Stat(CommandPath(w.dir))
	if err != nil || info.Size() == 0 || !info.ModTime().After(w.lastRun) {
		return
	}
	time.Sleep(settleDelay)
	w.drain()
}

func (w *Watcher) drain() {
	w.lastRun = time.Now()
	cmds, bad, err := ReadCommands(w.dir)
	if err != nil {
		w.onBad(err)
		return
	}
	for _, e := range bad {
		w.onBad(e)
	}
	for _, c := range cmds {
		w.handle(c)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
