package vectorworker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *Client {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "worker.sock")
	server := NewServer(socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = server.ListenAndServe(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client := NewClient(socketPath, 5*time.Second)
	require.Eventually(t, client.IsRunning, time.Second, 10*time.Millisecond)
	return client
}

func TestClientServer_InitAddSearch(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()

	require.NoError(t, client.Init(ctx, InitParams{Dims: 3, MaxElements: 100}))
	require.NoError(t, client.AddVector(ctx, 1, []float32{1, 0, 0}))
	require.NoError(t, client.AddVector(ctx, 2, []float32{0, 1, 0}))

	count, err := client.GetCurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	result, err := client.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, result.Neighbours, 1)
	assert.Equal(t, uint64(1), result.Neighbours[0])
}

func TestClientServer_SaveAndLoadIndex(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()
	require.NoError(t, client.Init(ctx, InitParams{Dims: 2, MaxElements: 100}))
	require.NoError(t, client.AddVector(ctx, 1, []float32{1, 0}))

	path := filepath.Join(t.TempDir(), "index.rlvi")

	exists, err := client.IndexExists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.SaveIndex(ctx, path))

	exists, err = client.IndexExists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClientServer_SearchBeforeInitReturnsError(t *testing.T) {
	client := startTestServer(t)
	_, err := client.Search(context.Background(), []float32{1, 2}, 1)
	require.Error(t, err)
}

func TestClientServer_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	client := startTestServer(t)
	err := client.call(context.Background(), "bogus", nil, nil)
	require.Error(t, err)
}
