// Package vectorindex stores paper embeddings in an exact inner-product index
// and persists the index artifacts that retrieval loads.
//
// Vectors have no identifiers: a vector's ordinal (insertion position) is the
// only link to its metadata row, so every artifact is written in one order
// and loaders verify that the counts agree.
package vectorindex

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

const flatFormatVersion = 1

// Hit is one search result.
type Hit struct {
	Ordinal int
	Score   float32
}

// FlatIndex is a brute-force inner-product index. Inserted vectors are
// expected to be unit length so scores are cosine similarities.
type FlatIndex struct {
	mu   sync.RWMutex
	dim  int
	data []float32 // row-major, Len()*dim values
}

// NewFlatIndex creates an empty index for dim-dimensional vectors.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Dim returns the vector dimension.
func (x *FlatIndex) Dim() int { return x.dim }

// Len returns the number of stored vectors.
func (x *FlatIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.dim == 0 {
		return 0
	}
	return len(x.data) / x.dim
}

// Add appends vectors in order. Either all vectors are added or none.
func (x *FlatIndex) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", ErrDimensionMismatch, i, len(v), x.dim)
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, v := range vectors {
		x.data = append(x.data, v...)
	}
	return nil
}

// Vector returns a copy of the vector at ordinal i.
func (x *FlatIndex) Vector(i int) []float32 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]float32, x.dim)
	copy(out, x.data[i*x.dim:(i+1)*x.dim])
	return out
}

// Search returns the k highest inner products with query, best first.
// Equal scores are ordered by ordinal.
func (x *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := len(x.data) / max(x.dim, 1)
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := x.data[i*x.dim : (i+1)*x.dim]
		var dot float32
		for j, q := range query {
			dot += row[j] * q
		}
		hits[i] = Hit{Ordinal: i, Score: dot}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Ordinal < hits[b].Ordinal
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// flatSnapshot is the on-disk layout of a FlatIndex.
type flatSnapshot struct {
	FormatVersion int       `msgpack:"format_version"`
	Metric        string    `msgpack:"metric"`
	Dim           int       `msgpack:"dim"`
	Count         int       `msgpack:"count"`
	Data          []float32 `msgpack:"data"`
}

// Save writes the index as a msgpack snapshot.
func (x *FlatIndex) Save(w io.Writer) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	snap := flatSnapshot{
		FormatVersion: flatFormatVersion,
		Metric:        MetricInnerProduct,
		Dim:           x.dim,
		Count:         len(x.data) / max(x.dim, 1),
		Data:          x.data,
	}
	return msgpack.NewEncoder(w).Encode(&snap)
}

// LoadFlat reads an index written by Save.
func LoadFlat(r io.Reader) (*FlatIndex, error) {
	var snap flatSnapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if snap.FormatVersion != flatFormatVersion {
		return nil, fmt.Errorf("unsupported index format version %d", snap.FormatVersion)
	}
	if snap.Metric != MetricInnerProduct {
		return nil, fmt.Errorf("unsupported index metric %q", snap.Metric)
	}
	if snap.Dim < 0 || len(snap.Data) != snap.Count*snap.Dim {
		return nil, fmt.Errorf("%w: index holds %d values for %d vectors of dimension %d", ErrMisaligned, len(snap.Data), snap.Count, snap.Dim)
	}
	return &FlatIndex{dim: snap.Dim, data: snap.Data}, nil
}
