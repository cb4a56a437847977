// Package storage provides key-value persistence backends, atomic file
// writes and manuscript rendering.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriter writes to a temp file in the target directory and renames it
// over the target on Commit, so readers never see a partial file.
type AtomicWriter struct {
	targetPath string
	perm       os.FileMode
	tempFile   *os.File
}

// NewAtomicWriter creates the parent directory of targetPath and a temp
// file next to it.
func NewAtomicWriter(targetPath string, perm os.FileMode) (*AtomicWriter, error) {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(targetPath)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &AtomicWriter{targetPath: targetPath, perm: perm, tempFile: tempFile}, nil
}

// Write implements io.Writer.
func (w *AtomicWriter) Write(p []byte) (n int, err error) {
	return w.tempFile.Write(p)
}

// Commit syncs and renames the temp file to the target path. On failure
// the temp file is removed and the target is left as it was.
func (w *AtomicWriter) Commit() error {
	tempPath := w.tempFile.Name()
	fail := func(step string, err error) error {
		_ = w.tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to %s: %w", step, err)
	}

	if err := w.tempFile.Chmod(w.perm); err != nil {
		return fail("set file mode", err)
	}
	if err := w.tempFile.Sync(); err != nil {
		return fail("sync temp file", err)
	}
	if err := w.tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, w.targetPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(w.targetPath), err)
	}
	return nil
}

// Abort cancels the write and cleans up the temp file.
func (w *AtomicWriter) Abort() error {
	tempPath := w.tempFile.Name()
	w.tempFile.Close()
	return os.Remove(tempPath)
}

// AtomicWriteFile writes data to path atomically with mode 0644.
func AtomicWriteFile(path string, data []byte) error {
	return AtomicWriteFileMode(path, data, 0o644)
}

// AtomicWriteFileMode writes data to path atomically with the given mode.
// Credentials are written with 0600.
func AtomicWriteFileMode(path string, data []byte, perm os.FileMode) error {
	w, err := NewAtomicWriter(path, perm)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return w.Commit()
}
