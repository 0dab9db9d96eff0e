package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// tempPrefix marks in-flight writes; List skips them.
const tempPrefix = ".tmp-"

// LocalStore implements ReadStore using one file per blob under a root
// directory. Slashes in blob names become subdirectories.
//
// Writes go to a pre-allocated, memory-mapped temp file in the target
// directory that is flushed and renamed into place, so readers never
// observe a partially written blob.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

// Root returns the store's root directory.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blobstore: invalid blob name %q", name)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes data under name atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	file, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmp := file.Name()

	if err := writeMapped(file, data); err != nil {
		return errors.Join(err, file.Close(), os.Remove(tmp))
	}
	if err := file.Close(); err != nil {
		return errors.Join(fmt.Errorf("close temp blob: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, dst); err != nil {
		return errors.Join(fmt.Errorf("rename blob: %w", err), os.Remove(tmp))
	}
	return nil
}

// writeMapped sizes file to len(data) and copies data in through a
// writable mapping.
func writeMapped(file *os.File, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	// Pre-allocate disk blocks to prevent SIGBUS on disk full
	if err := fallocateFile(file, int64(len(data))); err != nil {
		return fmt.Errorf("failed to allocate disk space: %w", err)
	}

	mm, err := mmap.MapRegion(file, len(data), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	prefaultRegion(mm)
	copy(mm, data)

	if err := mm.Flush(); err != nil {
		return errors.Join(fmt.Errorf("mmap flush failed: %w", err), mm.Unmap())
	}
	if err := mm.Unmap(); err != nil {
		return fmt.Errorf("mmap unmap failed: %w", err)
	}
	return nil
}

// Get reads the blob into memory.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	fadviseSequential(int(f.Fd()), 0, st.Size())

	buf := make([]byte, st.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read blob %q: %w", name, err)
	}
	return buf, nil
}

// List returns the sorted names under root that start with prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
