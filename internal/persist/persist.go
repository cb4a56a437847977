// Package persist mirrors the document store into key-value storage and
// implements the project file import and export contract.
//
// Storage is best effort. A failed write is logged and the application
// keeps running on its in-memory state; only explicit commands such as
// export and reset report storage errors to the caller.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/schema"
	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/internal/store"
)

// Storage keys. The version suffix changes only when the stored shape can
// no longer be migrated by the schema package.
const (
	DocumentKey   = "novelcraft_document_v1"
	CredentialKey = "novelcraft_api_key_v1"
	OnboardingKey = "novelcraft_has_loaded"
)

// ExportFileName is the file name used by ExportFile.
const ExportFileName = "novelcraft_project.json"

// ErrMalformedImport is returned when an imported file is not a project.
var ErrMalformedImport = errors.New("malformed project file")

// Persister connects a store to a KV backend.
type Persister struct {
	kv       storage.KV
	logger   *slog.Logger
	onImport func()

	mu       sync.Mutex
	attached *store.Store
}

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger for storage warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persister) {
		p.logger = logger
	}
}

// WithImportHook registers fn to run after every successful import.
func WithImportHook(fn func()) Option {
	return func(p *Persister) {
		p.onImport = fn
	}
}

// New creates a Persister over kv.
func New(kv storage.KV, opts ...Option) *Persister {
	p := &Persister{
		kv:     kv,
		logger: slog.Default().With("component", "persist"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load restores the stored document into s. A missing, unreadable or
// corrupt entry leaves s on its defaults.
func (p *Persister) Load(s *store.Store) {
	value, ok, err := p.kv.Get(DocumentKey)
	if err != nil {
		p.logger.Warn("failed to read stored document", "error", err)
		return
	}
	if !ok {
		p.logger.Debug("no stored document, starting fresh")
		return
	}

	raw, err := schema.Parse([]byte(value))
	if err != nil {
		p.logger.Warn("stored document is corrupt, starting fresh", "error", err)
		return
	}
	if migrated := schema.Detect([]byte(value)); len(migrated) > 0 {
		p.logger.Info("migrating stored document", "migrations", migrated)
	}
	s.Dispatch(store.SetDocument{Raw: raw})
}

// Attach writes the document to storage after every change to s. The
// returned func stops mirroring.
func (p *Persister) Attach(s *store.Store) (detach func()) {
	p.mu.Lock()
	p.attached = s
	p.mu.Unlock()

	unsubscribe := s.Subscribe(func(c store.Change) {
		p.writeDocument(c.Document)
	})
	return func() {
		unsubscribe()
		p.mu.Lock()
		if p.attached == s {
			p.attached = nil
		}
		p.mu.Unlock()
	}
}

func (p *Persister) writeDocument(doc novel.Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		p.logger.Warn("failed to serialize document", "error", err)
		return
	}
	if err := p.kv.Set(DocumentKey, string(data)); err != nil {
		p.logger.Warn("failed to save document, changes are kept for this session only", "error", err)
	}
}

// APIKey returns the stored credential, or "" when none is saved.
func (p *Persister) APIKey() string {
	value, _, err := p.kv.Get(CredentialKey)
	if err != nil {
		p.logger.Warn("failed to read api key", "error", err)
		return ""
	}
	return value
}

// SetAPIKey stores key after trimming whitespace. An empty key removes the
// credential. The attached document is written alongside it.
func (p *Persister) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)

	var err error
	if key == "" {
		err = p.kv.Delete(CredentialKey)
	} else {
		err = p.kv.Set(CredentialKey, key)
	}
	if err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}

	p.mu.Lock()
	s := p.attached
	p.mu.Unlock()
	if s != nil {
		p.writeDocument(s.Document())
	}
	return nil
}

// Onboarded reports whether the first-run flow has completed.
func (p *Persister) Onboarded() bool {
	value, ok, err := p.kv.Get(OnboardingKey)
	if err != nil {
		p.logger.Warn("failed to read onboarding flag", "error", err)
		return false
	}
	return ok && value == "true"
}

// MarkOnboarded records that the first-run flow has completed.
func (p *Persister) MarkOnboarded() {
	if err := p.kv.Set(OnboardingKey, "true"); err != nil {
		p.logger.Warn("failed to save onboarding flag", "error", err)
	}
}

// Export serializes doc as indented JSON.
func Export(doc novel.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return data, nil
}

// ExportFile writes doc to dir/novelcraft_project.json and returns the path.
func ExportFile(doc novel.Document, dir string) (string, error) {
	data, err := Export(doc)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ExportFileName)
	if err := storage.AtomicWriteFile(path, data); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// Import replaces the document in s with data. The payload must be a JSON
// object carrying chapters and characters keys; otherwise s is untouched
// and the error wraps ErrMalformedImport.
func (p *Persister) Import(s *store.Store, data []byte) error {
	if err := schema.CheckShape(data); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedImport, err)
	}
	raw, err := schema.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedImport, err)
	}

	if migrated := schema.Detect(data); len(migrated) > 0 {
		p.logger.Info("migrating imported document", "migrations", migrated)
	}
	s.Dispatch(store.SetDocument{Raw: raw})

	if p.onImport != nil {
		p.onImport()
	}
	return nil
}

// ResetApplication resets s to a fresh document and removes every stored
// key. The document is reset first so an attached mirror cannot write the
// factory document back after the keys are gone. Storage errors are joined
// and returned after the reset.
func (p *Persister) ResetApplication(s *store.Store) error {
	s.Dispatch(store.ResetDocument{})

	var errs []error
	for _, key := range []string{DocumentKey, CredentialKey, OnboardingKey} {
		if err := p.kv.Delete(key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
