package vectorworker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
)

// ErrPIDFileNotFound is returned when the PID file doesn't exist.
var ErrPIDFileNotFound = errors.New("worker PID file not found")

// PIDFile guards a worker process's identity and single-owner invariant:
// a cross-process advisory lock held for the worker's lifetime prevents a
// second worker from attaching to the same socket/index pair.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path, lock: flock.New(path + ".lock")}
}

func (p *PIDFile) Path() string { return p.path }

// Acquire takes the advisory lock and writes the current PID, failing if
// another process already holds the lock (a worker is already running).
func (p *PIDFile) Acquire() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pidfile directory: %w", err)
	}

	ok, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire worker lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another vector worker already holds %s", p.path)
	}

	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = p.lock.Unlock()
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}

// Release unlocks and removes the PID file. Safe to call multiple times.
func (p *PIDFile) Release() error {
	_ = os.Remove(p.path)
	if p.lock.Locked() {
		return p.lock.Unlock()
	}
	return nil
}

// Read reads the PID recorded in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("read pidfile: %w", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether the process recorded in the PID file exists.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
