// Package filesystem provides filesystem helpers shared by the canonical
// store and the preview cache: atomic writes and retry logic for stale NFS
// file handles.
package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// WriteAtomic writes to a temporary file in the same directory as path and
// renames it into place, so a crash mid-write never leaves a partial file
// visible under its final name. The write callback receives the temp file.
func WriteAtomic(path string, write func(w io.Writer) error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			// Leftover temp files are harmless; the dot prefix hides them.
			_ = rmErr
		}
	}

	counter := &countingWriter{w: tmp}
	if err := write(counter); err != nil {
		cleanup()
		return 0, err
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			_ = rmErr
		}
		return 0, fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}

	return counter.n, nil
}

// WriteFileAtomic is WriteAtomic for a byte slice.
func WriteFileAtomic(path string, data []byte) error {
	_, err := WriteAtomic(path, func(w io.Writer) error {
		_, wErr := w.Write(data)
		return wErr
	})
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// IsNoSpace reports whether err indicates an exhausted filesystem.
func IsNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT)
}
