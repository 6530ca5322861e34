package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/ragcore/internal/config"
	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

// Rebuild destructively resets a corpus: it verifies no other process
// holds the store or index file, then deletes both. The check-then-delete
// is all-or-nothing — if either target can't be removed, neither is
// touched, so a partial failure never leaves the pair out of sync.
// Callers re-ingest from scratch via Open + Coordinator.Ingest afterward.
func Rebuild(ctx context.Context, cfg *config.Config) error {
	if running, err := workerIsRunning(ctx, cfg); err != nil {
		return err
	} else if running {
		return coreerrors.InternalError(
			"vector worker is still running against this store", nil).
			WithSuggestion("stop the running ragcore process before rebuilding")
	}

	targets := []string{cfg.Paths.StorePath, cfg.Paths.IndexPath}
	locks := make([]*flock.Flock, 0, len(targets))
	defer func() {
		for _, l := range locks {
			_ = l.Unlock()
		}
	}()

	for _, path := range targets {
		if !fileExists(path) {
			continue
		}
		lock := flock.New(path + ".lock")
		ok, err := lock.TryLock()
		if err != nil || !ok {
			return coreerrors.InternalError(
				fmt.Sprintf("%s is locked by another process", path), err).
				WithSuggestion("stop any other ragcore process and retry")
		}
		locks = append(locks, lock)
	}

	// Move every present target aside before deleting anything, so a
	// failure part-way through can be undone and leave both files in place.
	var moved []string
	for _, path := range targets {
		if !fileExists(path) {
			continue
		}
		if err := os.Rename(path, path+".rebuild"); err != nil {
			for _, done := range moved {
				_ = os.Rename(done+".rebuild", done)
			}
			return coreerrors.InternalError(fmt.Sprintf("remove %s", path), err).
				WithSuggestion("check file permissions and retry 'ragcore rebuild'")
		}
		moved = append(moved, path)
	}
	for _, path := range moved {
		_ = os.Remove(path + ".rebuild")
	}

	return nil
}

func workerIsRunning(_ context.Context, cfg *config.Config) (bool, error) {
	pidfilePath := filepath.Join(cfg.Worker.PIDFileDir, "vector.pid")
	lock := flock.New(pidfilePath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return false, coreerrors.InternalError("check vector worker pidfile lock", err)
	}
	if !ok {
		return true, nil
	}
	_ = lock.Unlock()
	return false, nil
}
