package bootstrap

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Aman-CERP/ragcore/internal/vectorworker"
)

// workerHandle tracks whether this process owns the vector worker it is
// talking to, so Close only tells the worker to clean up when it was the
// one that spawned it.
type workerHandle struct {
	owned bool
	cmd   *exec.Cmd
}

// spawnWorker re-execs the current binary into the hidden vector-worker
// subcommand as a detached background process.
func spawnWorker(socketPath, pidfilePath string) (*workerHandle, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(pidfilePath), 0o755); err != nil {
		return nil, err
	}

	exePath, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exePath, vectorworker.HiddenSubcommand, socketPath, pidfilePath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// Don't wait for the process - it runs in the background. Reap it in
	// a goroutine so it doesn't become a zombie when it eventually exits.
	go func() {
		_ = cmd.Wait()
	}()

	return &workerHandle{owned: true, cmd: cmd}, nil
}
