package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileKVSuffix = ".kv"

// FileKV stores each key in its own file under a directory. Writes are
// atomic. A quota of zero means unlimited.
type FileKV struct {
	mu    sync.Mutex
	dir   string
	quota int64
}

// FileKVOption configures a FileKV.
type FileKVOption func(*FileKV)

// WithQuota limits the total size of all stored values in bytes.
func WithQuota(bytes int64) FileKVOption {
	return func(f *FileKV) {
		f.quota = bytes
	}
}

// NewFileKV opens a file-backed store rooted at dir, creating it if needed.
func NewFileKV(dir string, opts ...FileKVOption) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	f := &FileKV{dir: dir}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileKVSuffix)
}

// Get implements KV.
func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set implements KV.
func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.quota > 0 {
		used, err := f.usageExcept(key)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > f.quota {
			return ErrQuotaExceeded
		}
	}

	if err := AtomicWriteFileMode(f.path(key), []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Close implements KV.
func (f *FileKV) Close() error {
	return nil
}

func (f *FileKV) usageExcept(key string) (int64, error) {
	skip := filepath.Base(f.path(key))
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to measure store: %w", err)
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() || e.Name() == skip || !strings.HasSuffix(e.Name(), fileKVSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

var _ KV = (*FileKV)(nil)
