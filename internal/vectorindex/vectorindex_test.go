package vectorindex

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/arxiv-corpus/internal/record"
)

func unit(v ...float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func TestFlatIndex_SearchOrdersByInnerProduct(t *testing.T) {
	idx := NewFlatIndex(3)
	require.NoError(t, idx.Add(
		unit(1, 0, 0),
		unit(0, 1, 0),
		unit(1, 1, 0),
		unit(0, 0, 1),
	))
	assert.Equal(t, 4, idx.Len())

	hits, err := idx.Search(context.Background(), unit(1, 0.2, 0), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 0, hits[0].Ordinal)
	assert.Equal(t, 2, hits[1].Ordinal)
	assert.Equal(t, 1, hits[2].Ordinal)
	for _, h := range hits {
		assert.LessOrEqual(t, h.Score, float32(1.0001))
		assert.GreaterOrEqual(t, h.Score, float32(-1.0001))
	}
}

func TestFlatIndex_TiesOrderedByOrdinal(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Add(unit(1, 0), unit(1, 0), unit(1, 0)))

	hits, err := idx.Search(context.Background(), unit(1, 0), 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].Ordinal, hits[1].Ordinal, hits[2].Ordinal})
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx := NewFlatIndex(3)
	err := idx.Add(unit(1, 0, 0), unit(1, 0))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Zero(t, idx.Len(), "no partial insert")

	_, err = idx.Search(context.Background(), unit(1, 0), 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatIndex_SearchCancelled(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Add(unit(1, 0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, unit(1, 0), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Add(unit(1, 2), unit(3, 4)))

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	loaded, err := LoadFlat(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Dim())
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, idx.Vector(1), loaded.Vector(1))
}

func TestNPY_HeaderAndRoundTrip(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	var buf bytes.Buffer
	require.NoError(t, WriteNPY(&buf, 2, 3, data))

	raw := buf.Bytes()
	assert.Equal(t, "\x93NUMPY", string(raw[:6]))
	headerLen := int(raw[8]) | int(raw[9])<<8
	assert.Zero(t, (10+headerLen)%64, "data offset is 64-byte aligned")
	assert.Contains(t, string(raw[10:10+headerLen]), "'shape': (2, 3)")
	assert.Equal(t, byte('\n'), raw[10+headerLen-1])
	assert.Len(t, raw, 10+headerLen+len(data)*4)

	rows, dim, got, err := ReadNPY(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, dim)
	assert.Equal(t, data, got)
}

func TestNPY_RejectsOtherDtypes(t *testing.T) {
	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (1, 1), }"
	for len(header)+11 < 64 {
		header += " "
	}
	header += "\n"
	raw := append([]byte("\x93NUMPY\x01\x00"), byte(len(header)), 0)
	raw = append(raw, header...)
	raw = append(raw, make([]byte, 8)...)

	_, _, _, err := ReadNPY(bytes.NewReader(raw))
	assert.Error(t, err)
}

func testRows(n int) ([][]float32, []record.MetadataRow) {
	vectors := make([][]float32, n)
	rows := make([]record.MetadataRow, n)
	for i := 0; i < n; i++ {
		vectors[i] = unit(float32(i+1), 1, 0)
		rows[i] = record.MetadataRow{ID: string(rune('a' + i)), Title: "T", Authors: []string{}}
	}
	return vectors, rows
}

func TestArtifacts_WriteAndLoadAligned(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	vectors, rows := testRows(4)
	built := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, WriteArtifacts(dir, Manifest{Model: "m", BuiltAt: built}, vectors, rows))
	for _, name := range []string{EmbeddingsFile, MetadataFile, IndexFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.True(t, Exists(dir))

	a, err := LoadArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, "m", a.Manifest.Model)
	assert.Equal(t, 3, a.Manifest.Dimension)
	assert.Equal(t, 4, a.Manifest.Rows)
	assert.True(t, a.Manifest.BuiltAt.Equal(built))
	assert.Equal(t, 4, a.Index.Len())
	require.Len(t, a.Metadata, 4)

	for i := range rows {
		assert.Equal(t, rows[i].ID, a.Metadata[i].ID)
		assert.Equal(t, vectors[i], a.Index.Vector(i))
	}

	hits, err := a.Index.Search(context.Background(), vectors[2], 1)
	require.NoError(t, err)
	assert.Equal(t, "c", a.Row(hits[0]).ID)
}

func TestArtifacts_RebuildReplacesAllFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	v4, r4 := testRows(4)
	require.NoError(t, WriteArtifacts(dir, Manifest{Model: "m"}, v4, r4))
	v2, r2 := testRows(2)
	require.NoError(t, WriteArtifacts(dir, Manifest{Model: "m"}, v2, r2))

	a, err := LoadArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Index.Len())

	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging or backup directories left behind")
}

func TestArtifacts_WriteRejectsMisalignedInput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	vectors, rows := testRows(3)

	err := WriteArtifacts(dir, Manifest{}, vectors, rows[:2])
	assert.ErrorIs(t, err, ErrMisaligned)

	vectors[1] = []float32{1}
	err = WriteArtifacts(dir, Manifest{}, vectors, rows)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = WriteArtifacts(dir, Manifest{}, nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	assert.NoDirExists(t, dir)
}

func TestArtifacts_LoadDetectsTruncatedMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	vectors, rows := testRows(3)
	require.NoError(t, WriteArtifacts(dir, Manifest{Model: "m"}, vectors, rows))

	var buf bytes.Buffer
	require.NoError(t, record.WriteJSONL(&buf, rows[:2]))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), buf.Bytes(), 0o644))

	_, err := LoadArtifacts(dir)
	assert.ErrorIs(t, err, ErrMisaligned)
}
