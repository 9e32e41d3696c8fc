package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/arxiv-corpus/internal/corpus"
	"github.com/bull/arxiv-corpus/internal/record"
	"github.com/bull/arxiv-corpus/internal/vectorindex"
)

// hashEmbedder derives a unit vector from each text.
type hashEmbedder struct {
	dim   int
	texts []string
	err   error
}

func (h *hashEmbedder) Model() string { return "hash" }

func (h *hashEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	h.texts = append(h.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embed(t, h.dim)
	}
	return out, nil
}

func embed(text string, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for j := range v {
		f := fnv.New32a()
		fmt.Fprintf(f, "%d:%s", j, text)
		v[j] = float32(f.Sum32()%1000) + 1
		norm += float64(v[j]) * float64(v[j])
	}
	for j := range v {
		v[j] /= float32(math.Sqrt(norm))
	}
	return v
}

type recordingPublisher struct {
	rows    []record.MetadataRow
	vectors [][]float32
}

func (p *recordingPublisher) Publish(_ context.Context, rows []record.MetadataRow, vectors [][]float32) error {
	p.rows, p.vectors = rows, vectors
	return nil
}

func doc(id string) record.EnrichedDocument {
	d := record.NewEnriched(record.RawDocument{
		ID:        id,
		Title:     "Title " + id,
		Abstract:  "Abstract of " + id,
		Published: "2024-01-01T00:00:00Z",
	})
	d.Language = "en"
	return d
}

func docs(ids ...string) []record.EnrichedDocument {
	out := make([]record.EnrichedDocument, len(ids))
	for i, id := range ids {
		out[i] = doc(id)
	}
	return out
}

func newTestStore(t *testing.T) *corpus.DirStore {
	s, err := corpus.NewDirStore(t.TempDir())
	require.NoError(t, err)
	return s
}

// seedTenIDs writes three processed batches with ten unique ids in total.
func seedTenIDs(t *testing.T, s corpus.Store) {
	require.NoError(t, corpus.WriteRecords(s, corpus.StageProcessed, "20240101_000000_cs_AI.jsonl", docs("a1", "a2", "a3")))
	require.NoError(t, corpus.WriteRecords(s, corpus.StageProcessed, "20240102_000000_cs_AI.jsonl", docs("b1", "b2", "b3", "b4")))
	require.NoError(t, corpus.WriteRecords(s, corpus.StageProcessed, "20240103_000000_cs_AI.jsonl", docs("c1", "c2", "c3")))
}

func TestBuild_WithLimit(t *testing.T) {
	store := newTestStore(t)
	seedTenIDs(t, store)
	indexDir := filepath.Join(t.TempDir(), "faiss")

	b := NewBuilder(store, &hashEmbedder{dim: 8}, Options{IndexDir: indexDir}, nil)
	res, err := b.Build(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, 6, res.Merge.Truncated)

	snapshot, err := store.ReadSnapshot()
	require.NoError(t, err)
	require.Len(t, snapshot, 4)
	ids := make([]string, len(snapshot))
	for i, r := range snapshot {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "b1"}, ids)

	a, err := vectorindex.LoadArtifacts(indexDir)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Index.Len())
	assert.Len(t, a.Metadata, 4)
	assert.Equal(t, 4, a.Manifest.Rows)
	assert.Equal(t, "hash", a.Manifest.Model)

	pending, err := store.ListPending(corpus.StageProcessed)
	require.NoError(t, err)
	assert.Empty(t, pending, "merged batches removed")
}

func TestBuild_OrdinalAlignmentAndNormalization(t *testing.T) {
	store := newTestStore(t)
	seedTenIDs(t, store)
	indexDir := filepath.Join(t.TempDir(), "faiss")
	pub := &recordingPublisher{}

	b := NewBuilder(store, &hashEmbedder{dim: 8}, Options{IndexDir: indexDir, Publisher: pub}, nil)
	res, err := b.Build(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, res.Published)
	assert.Equal(t, 8, res.Dimension)

	a, err := vectorindex.LoadArtifacts(indexDir)
	require.NoError(t, err)
	require.Equal(t, 10, a.Index.Len())

	for i, row := range a.Metadata {
		v := a.Index.Vector(i)
		assert.Equal(t, embed(row.Abstract, 8), v, "vector %d comes from metadata row %d", i, i)

		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	}

	require.Len(t, pub.rows, 10)
	assert.Equal(t, a.Metadata[3].ID, pub.rows[3].ID)
	assert.Equal(t, a.Index.Vector(3), pub.vectors[3])
}

func TestMerge_FirstSeenWinsAcrossRuns(t *testing.T) {
	store := newTestStore(t)
	b := NewBuilder(store, &hashEmbedder{dim: 4}, Options{}, nil)

	first := doc("x")
	first.Title = "original"
	require.NoError(t, corpus.WriteRecords(store, corpus.StageProcessed, "1.jsonl", []record.EnrichedDocument{first, doc("y")}))
	_, _, err := b.Merge(context.Background(), 0)
	require.NoError(t, err)

	again := doc("x")
	again.Title = "re-enriched"
	require.NoError(t, corpus.WriteRecords(store, corpus.StageProcessed, "2.jsonl", []record.EnrichedDocument{again, doc("z")}))
	rows, res, err := b.Merge(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "x", rows[0].ID)
	assert.Equal(t, "original", rows[0].Title)
	assert.Equal(t, []string{"x", "y", "z"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.Previous)
}

func TestMerge_Idempotent(t *testing.T) {
	store := newTestStore(t)
	seedTenIDs(t, store)
	b := NewBuilder(store, &hashEmbedder{dim: 4}, Options{}, nil)

	first, _, err := b.Merge(context.Background(), 0)
	require.NoError(t, err)
	second, res, err := b.Merge(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, res.Files)
	assert.Equal(t, 10, res.Rows)
}

func TestMerge_RerunAfterInterruptedDelete(t *testing.T) {
	store := newTestStore(t)
	seedTenIDs(t, store)
	b := NewBuilder(store, &hashEmbedder{dim: 4}, Options{}, nil)

	_, _, err := b.Merge(context.Background(), 0)
	require.NoError(t, err)

	// A crash between snapshot write and batch removal leaves a batch behind.
	require.NoError(t, corpus.WriteRecords(store, corpus.StageProcessed, "20240102_000000_cs_AI.jsonl", docs("b1", "b2", "b3", "b4")))

	rows, res, err := b.Merge(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
	assert.Equal(t, 4, res.Duplicates)
}

func TestMerge_CorruptBatchIsFatal(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, corpus.WriteRecords(store, corpus.StageProcessed, "1.jsonl", docs("a")))
	require.NoError(t, store.Put(corpus.StageProcessed, "2.jsonl", func(w io.Writer) error {
		_, err := w.Write([]byte("{not json"))
		return err
	}))
	indexDir := filepath.Join(t.TempDir(), "faiss")

	b := NewBuilder(store, &hashEmbedder{dim: 4}, Options{IndexDir: indexDir}, nil)
	_, err := b.Build(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrMalformedLine)

	_, err = store.ReadSnapshot()
	assert.ErrorIs(t, err, corpus.ErrNotFound, "no snapshot written")
	pending, _ := store.ListPending(corpus.StageProcessed)
	assert.Len(t, pending, 2, "no batch removed")
	assert.False(t, vectorindex.Exists(indexDir))
}

func TestMerge_RejectsInvalidRecords(t *testing.T) {
	store := corpus.NewMemStore()
	bad := doc("")
	require.NoError(t, corpus.WriteRecords(store, corpus.StageProcessed, "1.jsonl", []record.EnrichedDocument{doc("a"), bad}))

	rows, res, err := NewBuilder(store, &hashEmbedder{dim: 4}, Options{}, nil).Merge(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, res.Rejected)
}

func TestMerge_NothingToDo(t *testing.T) {
	b := NewBuilder(corpus.NewMemStore(), &hashEmbedder{dim: 4}, Options{}, nil)
	_, _, err := b.Merge(context.Background(), 0)
	assert.ErrorIs(t, err, corpus.ErrNoPending)
}

func TestBuild_EmbeddingFailureWritesNoIndex(t *testing.T) {
	store := newTestStore(t)
	seedTenIDs(t, store)
	indexDir := filepath.Join(t.TempDir(), "faiss")

	b := NewBuilder(store, &hashEmbedder{dim: 4, err: errors.New("rate limited")}, Options{IndexDir: indexDir}, nil)
	_, err := b.Build(context.Background(), 0)
	require.Error(t, err)
	assert.False(t, vectorindex.Exists(indexDir))

	// The snapshot survives, so a retry rebuilds from it.
	b.embedder = &hashEmbedder{dim: 4}
	res, err := b.Build(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Rows)
}
