//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/arxiv-corpus/internal/record"
)

// setupTestStorage creates a test storage instance on a scratch collection.
// Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T) *QdrantStorage {
	storage, err := NewQdrantStorage(Config{Host: "localhost", Port: 6334, Collection: "papers_test"}, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func testPapers(n int) ([]record.MetadataRow, [][]float32) {
	rows := make([]record.MetadataRow, n)
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		summary := fmt.Sprintf("Summary %d", i)
		cat := "cs.AI"
		if i%2 == 1 {
			cat = "cs.CL"
		}
		rows[i] = record.MetadataRow{
			ID:           fmt.Sprintf("2401.%05d", i),
			Title:        fmt.Sprintf("Paper %d", i),
			Summary:      &summary,
			Authors:      []string{"A. Author"},
			Categories:   []string{cat},
			Affiliations: []string{},
			Keywords:     []string{},
			Language:     "en",
		}
		vectors[i] = unitVector(8, i)
	}
	return rows, vectors
}

func TestPublishAndSearch(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	rows, vectors := testPapers(6)
	require.NoError(t, storage.Publish(ctx, rows, vectors))

	results, err := storage.Search(ctx, vectors[3], 1, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2401.00003", results[0].ID)
	assert.Equal(t, 3, results[0].Ordinal)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	filtered, err := storage.Search(ctx, vectors[3], 10, Filter{Categories: []string{"cs.AI"}})
	require.NoError(t, err)
	for _, r := range filtered {
		assert.Equal(t, []string{"cs.AI"}, r.Categories)
	}

	info, err := storage.GetCollectionInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), info.PointsCount)
}

func TestPublishBatchesAndReplaces(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	rows, vectors := testPapers(250)
	require.NoError(t, storage.Publish(ctx, rows, vectors))
	info, err := storage.GetCollectionInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), info.PointsCount)

	rows, vectors = testPapers(3)
	require.NoError(t, storage.Publish(ctx, rows, vectors))
	info, err = storage.GetCollectionInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.PointsCount)
}

func TestGetPaper(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	rows, vectors := testPapers(2)
	require.NoError(t, storage.Publish(ctx, rows, vectors))

	paper, err := storage.GetPaper(ctx, "2401.00001")
	require.NoError(t, err)
	assert.Equal(t, "Paper 1", paper.Title)
	assert.Equal(t, "Summary 1", record.Deref(paper.Summary))

	_, err = storage.GetPaper(ctx, "9999.99999")
	assert.ErrorIs(t, err, ErrPaperNotFound)
}

func TestDimensionValidation(t *testing.T) {
	storage := setupTestStorage(t)

	rows, vectors := testPapers(2)
	vectors[1] = vectors[1][:4]
	err := storage.Publish(context.Background(), rows, vectors)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
