package diaglog

import (
	"os"
	"sync"
)

// rollingWriter appends to path and, when the next write would cross
// maxSize, moves the file to path+".1" and starts a fresh one. At most two
// generations exist on disk.
type rollingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
	size    int64
}

func newRollingWriter(path string, maxSize int64) (*rollingWriter, error) {
	rw := &rollingWriter{path: path, maxSize: maxSize}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *rollingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rw.f, rw.size = f, info.Size()
	return nil
}

// rotate must be called with mu held.
func (rw *rollingWriter) rotate() error {
	_ = rw.f.Close()
	if err := os.Rename(rw.path, BackupPath(rw.path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return rw.open()
}

// Write appends p, rotating first when the file would outgrow maxSize. A
// single entry larger than maxSize is still written whole.
func (rw *rollingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.size > 0 && rw.size+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rw.f.Write(p)
	rw.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = rw.f.Sync()
	return n, nil
}

func (rw *rollingWriter) close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	_ = rw.f.Sync()
	return rw.f.Close()
}

// BackupPath is where the previous log generation lives.
func BackupPath(path string) string { return path + ".1" }
