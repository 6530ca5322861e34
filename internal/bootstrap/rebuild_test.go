package bootstrap

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuild_RemovesBothFilesWhenPresent(t *testing.T) {
	cfg := testConfig(t)
	writeEmpty(t, cfg.Paths.StorePath)
	writeEmpty(t, cfg.Paths.IndexPath)

	require.NoError(t, Rebuild(context.Background(), cfg))

	_, err := os.Stat(cfg.Paths.StorePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.Paths.IndexPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRebuild_NoFilesIsNoOp(t *testing.T) {
	cfg := testConfig(t)
	assert.NoError(t, Rebuild(context.Background(), cfg))
}

func TestRebuild_OnlyStorePresent(t *testing.T) {
	cfg := testConfig(t)
	writeEmpty(t, cfg.Paths.StorePath)

	require.NoError(t, Rebuild(context.Background(), cfg))
	_, err := os.Stat(cfg.Paths.StorePath)
	assert.True(t, os.IsNotExist(err))
}
