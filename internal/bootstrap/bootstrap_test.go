package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragcore/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.StorePath = filepath.Join(dir, "store.db")
	cfg.Paths.IndexPath = filepath.Join(dir, "index.rlvi")
	cfg.Paths.ContentDir = filepath.Join(dir, "content")
	cfg.Worker.SocketDir = filepath.Join(dir, "run")
	cfg.Worker.PIDFileDir = filepath.Join(dir, "run")
	return cfg
}

func TestCheckLayout_BothAbsentIsFine(t *testing.T) {
	cfg := testConfig(t)
	assert.NoError(t, checkLayout(cfg))
}

func TestCheckLayout_BothPresentIsFine(t *testing.T) {
	cfg := testConfig(t)
	writeEmpty(t, cfg.Paths.StorePath)
	writeEmpty(t, cfg.Paths.IndexPath)
	assert.NoError(t, checkLayout(cfg))
}

func TestCheckLayout_OnlyStoreIsRejected(t *testing.T) {
	cfg := testConfig(t)
	writeEmpty(t, cfg.Paths.StorePath)
	assert.Error(t, checkLayout(cfg))
}

func TestCheckLayout_OnlyIndexIsRejected(t *testing.T) {
	cfg := testConfig(t)
	writeEmpty(t, cfg.Paths.IndexPath)
	assert.Error(t, checkLayout(cfg))
}

func writeEmpty(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}
