package vectorindex

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bull/arxiv-corpus/internal/record"
)

// Artifact file names inside an index directory.
const (
	EmbeddingsFile = "embeddings.npy"
	MetadataFile   = "metadata.jsonl"
	IndexFile      = "flat.index"
	ManifestFile   = "manifest.json"
)

// MetricInnerProduct is the only supported similarity metric.
const MetricInnerProduct = "inner_product"

// Manifest describes one index build.
type Manifest struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Rows      int       `json:"rows"`
	Metric    string    `json:"metric"`
	BuiltAt   time.Time `json:"built_at"`
}

// Artifacts is a loaded, alignment-checked index directory. Metadata[i]
// describes the vector at ordinal i of Index.
type Artifacts struct {
	Manifest Manifest
	Metadata []record.MetadataRow
	Index    *FlatIndex
}

// Row returns the metadata row for a search hit.
func (a *Artifacts) Row(h Hit) record.MetadataRow {
	return a.Metadata[h.Ordinal]
}

// WriteArtifacts writes the embedding matrix, metadata table, flat index and
// manifest to dir. All files are written to a staging directory first and
// swapped in together, so dir never holds a mix of two builds.
func WriteArtifacts(dir string, m Manifest, vectors [][]float32, rows []record.MetadataRow) error {
	if len(vectors) != len(rows) {
		return fmt.Errorf("%w: %d vectors for %d metadata rows", ErrMisaligned, len(vectors), len(rows))
	}
	if len(vectors) == 0 {
		return ErrEmpty
	}
	dim := len(vectors[0])
	if m.Dimension != 0 && m.Dimension != dim {
		return fmt.Errorf("%w: manifest says %d, vectors have %d", ErrDimensionMismatch, m.Dimension, dim)
	}

	idx := NewFlatIndex(dim)
	if err := idx.Add(vectors...); err != nil {
		return err
	}
	matrix := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		matrix = append(matrix, v...)
	}

	m.Dimension = dim
	m.Rows = len(rows)
	m.Metric = MetricInnerProduct
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now().UTC()
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create index parent: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := writeFile(filepath.Join(staging, EmbeddingsFile), func(w io.Writer) error {
		return WriteNPY(w, len(vectors), dim, matrix)
	}); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	if err := writeFile(filepath.Join(staging, MetadataFile), func(w io.Writer) error {
		return record.WriteJSONL(w, rows)
	}); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := writeFile(filepath.Join(staging, IndexFile), idx.Save); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := writeFile(filepath.Join(staging, ManifestFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return swapDir(staging, dir)
}

// swapDir replaces dir with staging. A previous build is moved aside and
// removed only once the new one is in place.
func swapDir(staging, dir string) error {
	old := ""
	if _, err := os.Stat(dir); err == nil {
		old = dir + ".old"
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("clear previous backup: %w", err)
		}
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("install index: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadManifest reads only the manifest of an index directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// LoadArtifacts reads an index directory and verifies that the embedding
// matrix, metadata table, index and manifest describe the same rows in the
// same order.
func LoadArtifacts(dir string) (*Artifacts, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	rows, dim, matrix, err := readNPYFile(filepath.Join(dir, EmbeddingsFile))
	if err != nil {
		return nil, err
	}

	mf, err := os.Open(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	meta, err := record.ReadJSONL[record.MetadataRow](mf)
	mf.Close()
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	xf, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}
	idx, err := LoadFlat(xf)
	xf.Close()
	if err != nil {
		return nil, err
	}

	if rows != len(meta) || rows != idx.Len() || rows != m.Rows {
		return nil, fmt.Errorf("%w: embeddings=%d metadata=%d index=%d manifest=%d",
			ErrMisaligned, rows, len(meta), idx.Len(), m.Rows)
	}
	if dim != idx.Dim() || dim != m.Dimension {
		return nil, fmt.Errorf("%w: embeddings=%d index=%d manifest=%d",
			ErrDimensionMismatch, dim, idx.Dim(), m.Dimension)
	}
	for i := 0; i < rows; i++ {
		want := matrix[i*dim : (i+1)*dim]
		got := idx.Vector(i)
		for j := range want {
			if want[j] != got[j] {
				return nil, fmt.Errorf("%w: index vector %d differs from embedding row %d", ErrMisaligned, i, i)
			}
		}
	}

	return &Artifacts{Manifest: *m, Metadata: meta, Index: idx}, nil
}

func readNPYFile(path string) (int, int, []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()
	rows, dim, data, err := ReadNPY(f)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("read embeddings: %w", err)
	}
	return rows, dim, data, nil
}

// Exists reports whether dir holds an index manifest.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil
}
