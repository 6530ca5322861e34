package vectorworker

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

func readyEngine(t *testing.T, dims int) *engine {
	t.Helper()
	e := newEngine()
	require.NoError(t, e.init(InitParams{Dims: dims, MaxElements: 1000}))
	return e
}

func TestEngine_SearchBeforeInitIsRejected(t *testing.T) {
	e := newEngine()
	_, err := e.search([]float32{1, 2, 3}, 1)
	require.Error(t, err)
}

func TestEngine_AddAndSearch_FindsExactMatch(t *testing.T) {
	e := readyEngine(t, 4)

	require.NoError(t, e.addVector(1, []float32{1, 0, 0, 0}))
	require.NoError(t, e.addVector(2, []float32{0, 1, 0, 0}))
	require.NoError(t, e.addVector(3, []float32{0, 0, 1, 0}))

	result, err := e.search([]float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, result.Neighbours, 1)
	assert.Equal(t, uint64(1), result.Neighbours[0])
}

func TestEngine_AddVector_RejectsDimensionMismatch(t *testing.T) {
	e := readyEngine(t, 4)
	err := e.addVector(1, []float32{1, 2})
	require.Error(t, err)
	assert.Equal(t, coreerrors.KindDimensionMismatch, coreerrors.GetKind(err))
}

func TestEngine_Search_RejectsDimensionMismatch(t *testing.T) {
	e := readyEngine(t, 4)
	require.NoError(t, e.addVector(1, []float32{1, 0, 0, 0}))
	_, err := e.search([]float32{1, 0}, 1)
	require.Error(t, err)
	assert.Equal(t, coreerrors.KindDimensionMismatch, coreerrors.GetKind(err))
}

func TestEngine_AddVector_ReplacingIDOrphansOldNode(t *testing.T) {
	e := readyEngine(t, 2)
	require.NoError(t, e.addVector(1, []float32{1, 0}))
	require.NoError(t, e.addVector(1, []float32{0, 1}))

	stats := e.stats()
	assert.Equal(t, 1, stats.ValidIDs)
	assert.Equal(t, 2, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
	assert.Equal(t, 1, e.currentCount())
}

func TestEngine_ResizeIndex_RejectsShrink(t *testing.T) {
	e := readyEngine(t, 2)
	err := e.resizeIndex(500)
	require.Error(t, err)
}

func TestEngine_ResizeIndex_GrowsMax(t *testing.T) {
	e := readyEngine(t, 2)
	require.NoError(t, e.resizeIndex(2000))
}

func TestEngine_SaveLoad_RoundTrips(t *testing.T) {
	e := readyEngine(t, 3)
	require.NoError(t, e.addVectors([]AddVectorParams{
		{ID: 1, Vector: []float32{1, 0, 0}},
		{ID: 2, Vector: []float32{0, 1, 0}},
		{ID: 3, Vector: []float32{0, 0, 1}},
	}))

	path := filepath.Join(t.TempDir(), "index.rlvi")
	require.NoError(t, e.saveIndex(path))

	fresh := newEngine()
	count, err := fresh.loadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, fresh.currentCount())

	result, err := fresh.search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, result.Neighbours, 1)
	assert.Equal(t, uint64(2), result.Neighbours[0])
}

func TestEngine_LoadIndex_RejectsDimensionMismatchAgainstExistingInit(t *testing.T) {
	e := readyEngine(t, 3)
	require.NoError(t, e.addVector(1, []float32{1, 0, 0}))

	other := readyEngine(t, 8)
	path := filepath.Join(t.TempDir(), "index.rlvi")
	require.NoError(t, e.saveIndex(path))

	_, err := other.loadIndex(path)
	require.Error(t, err)
	assert.Equal(t, coreerrors.KindDimensionMismatch, coreerrors.GetKind(err))
}

func TestEngine_Reset_ClearsGraphButKeepsDims(t *testing.T) {
	e := readyEngine(t, 2)
	require.NoError(t, e.addVector(1, []float32{1, 0}))
	e.reset()
	assert.Equal(t, 0, e.currentCount())
	require.NoError(t, e.addVector(2, []float32{0, 1}))
}
