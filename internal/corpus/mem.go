package corpus

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bull/arxiv-corpus/internal/record"
)

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu       sync.Mutex
	files    map[Stage]map[string][]byte
	snapshot []byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[Stage]map[string][]byte)}
}

func (m *MemStore) ListPending(stage Stage) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.files[stage]))
	for name := range m.files[stage] {
		if strings.HasSuffix(name, BatchExt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemStore) Open(stage Stage, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.files[stage][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, stage, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemStore) Put(stage Stage, name string, write func(io.Writer) error) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[stage] == nil {
		m.files[stage] = make(map[string][]byte)
	}
	m.files[stage][name] = buf.Bytes()
	return nil
}

func (m *MemStore) Archive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.files[StageRaw][name]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, StageRaw, name)
	}
	delete(m.files[StageRaw], name)
	if m.files[StageArchive] == nil {
		m.files[StageArchive] = make(map[string][]byte)
	}
	m.files[StageArchive][name] = data
	return nil
}

func (m *MemStore) Remove(stage Stage, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files[stage], name)
	return nil
}

func (m *MemStore) WriteSnapshot(rows []record.CorpusRow) error {
	var buf bytes.Buffer
	if err := record.WriteJSONL(&buf, rows); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	m.mu.Lock()
	// Non-nil even for zero rows: an empty snapshot exists.
	m.snapshot = append([]byte{}, buf.Bytes()...)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) ReadSnapshot() ([]record.CorpusRow, error) {
	m.mu.Lock()
	data := m.snapshot
	m.mu.Unlock()

	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, SnapshotName)
	}
	return record.ReadJSONL[record.CorpusRow](bytes.NewReader(data))
}

// PutRaw stores raw bytes as a batch, bypassing encoding. Tests use it to
// plant corrupt files.
func (m *MemStore) PutRaw(stage Stage, name string, data []byte) {
	_ = m.Put(stage, name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
