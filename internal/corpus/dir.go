package corpus

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bull/arxiv-corpus/internal/record"
)

// PDFCacheDir is the directory under the store root used by the PDF cache.
const PDFCacheDir = "pdf_cache"

// DirStore keeps the staging areas as directories under a single root:
//
//	<root>/raw/        harvested batches
//	<root>/processed/  enriched batches
//	<root>/archive/    raw batches already enriched
//	<root>/pdf_cache/  downloaded PDFs
//	<root>/merged.jsonl
type DirStore struct {
	root string
}

// NewDirStore creates the staging directories under root if needed.
func NewDirStore(root string) (*DirStore, error) {
	for _, dir := range []string{string(StageRaw), string(StageProcessed), string(StageArchive), PDFCacheDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &DirStore{root: root}, nil
}

// Root returns the store root directory.
func (s *DirStore) Root() string { return s.root }

// CacheDir returns the PDF cache directory.
func (s *DirStore) CacheDir() string { return filepath.Join(s.root, PDFCacheDir) }

func (s *DirStore) path(stage Stage, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(s.root, string(stage), name), nil
}

func (s *DirStore) ListPending(stage Stage) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, string(stage)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", stage, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || filepath.Ext(e.Name()) != BatchExt {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirStore) Open(stage Stage, name string) (io.ReadCloser, error) {
	p, err := s.path(stage, name)
	if err != nil {
		return nil, err
	}
	return openFile(p)
}

func (s *DirStore) Put(stage Stage, name string, write func(io.Writer) error) error {
	p, err := s.path(stage, name)
	if err != nil {
		return err
	}
	return writeAtomic(p, write)
}

func (s *DirStore) Archive(name string) error {
	src, err := s.path(StageRaw, name)
	if err != nil {
		return err
	}
	dst, _ := s.path(StageArchive, name)
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, StageRaw, name)
		}
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) Remove(stage Stage, name string) error {
	p, err := s.path(stage, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s/%s: %w", stage, name, err)
	}
	return nil
}

func (s *DirStore) WriteSnapshot(rows []record.CorpusRow) error {
	return writeAtomic(filepath.Join(s.root, SnapshotName), func(w io.Writer) error {
		return record.WriteJSONL(w, rows)
	})
}

func (s *DirStore) ReadSnapshot() ([]record.CorpusRow, error) {
	rc, err := openFile(filepath.Join(s.root, SnapshotName))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := record.ReadJSONL[record.CorpusRow](rc)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return rows, nil
}

func openFile(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	return f, nil
}

// writeAtomic writes into a temp file in the destination directory and
// renames it over dest only after write and close both succeed.
func writeAtomic(dest string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".corpus-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	writeErr := write(tmp)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", filepath.Base(dest), writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", filepath.Base(dest), closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(dest), err)
	}
	return nil
}
