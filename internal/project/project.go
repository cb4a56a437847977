package project

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/azyu/novelcraft/internal/search"
	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/pkg/types"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrInvalidName     = errors.New("invalid project name")
	ErrUnknownBackend  = errors.New("unknown storage backend")
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Manager handles project lifecycle operations.
type Manager struct {
	projectsDir string
}

// NewManager creates a new project manager.
func NewManager(projectsDir string) (*Manager, error) {
	// Expand ~ if present
	if strings.HasPrefix(projectsDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		projectsDir = filepath.Join(home, projectsDir[2:])
	}

	// Ensure projects directory exists
	if err := os.MkdirAll(projectsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create projects directory: %w", err)
	}

	return &Manager{
		projectsDir: projectsDir,
	}, nil
}

// Dir returns the directory holding all projects.
func (m *Manager) Dir() string {
	return m.projectsDir
}

// Project represents an open novel project.
type Project struct {
	Info   *types.Project
	Config *types.ProjectConfig
	KV     storage.KV
	path   string

	// searchDB is the database the reference index lives in. With the
	// sqlite backend it is shared with KV.
	searchDB    *sql.DB
	ownSearchDB bool
}

// Create creates a new project.
func (m *Manager) Create(name string, config *types.ProjectConfig) (*Project, error) {
	if !isValidName(name) {
		return nil, ErrInvalidName
	}

	projectPath := filepath.Join(m.projectsDir, name)

	// Check if project already exists
	if _, err := os.Stat(projectPath); err == nil {
		return nil, ErrProjectExists
	}

	for _, dir := range []string{MetaDir, "exports"} {
		if err := os.MkdirAll(filepath.Join(projectPath, dir), 0755); err != nil {
			// Clean up on failure
			os.RemoveAll(projectPath)
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if config.Name == "" {
		config.Name = name
	}
	if err := SaveProjectConfig(projectPath, config); err != nil {
		os.RemoveAll(projectPath)
		return nil, fmt.Errorf("failed to save project config: %w", err)
	}

	readme := fmt.Sprintf("# %s\n\nA novel written with novelcraft.\n\nCreated: %s\n",
		config.Name, config.CreatedAt.Format("2006-01-02"))
	if err := storage.AtomicWriteFile(filepath.Join(projectPath, "README.md"), []byte(readme)); err != nil {
		os.RemoveAll(projectPath)
		return nil, fmt.Errorf("failed to create README: %w", err)
	}

	p, err := m.Open(name)
	if err != nil {
		os.RemoveAll(projectPath)
		return nil, err
	}
	return p, nil
}

// Open opens an existing project and its key-value store.
func (m *Manager) Open(name string) (*Project, error) {
	if !isValidName(name) {
		return nil, ErrInvalidName
	}
	projectPath := filepath.Join(m.projectsDir, name)

	// Check if project exists
	if _, err := os.Stat(projectPath); os.IsNotExist(err) {
		return nil, ErrProjectNotFound
	}

	config, err := LoadProjectConfig(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}

	p := &Project{
		Info: &types.Project{
			Name:      config.Name,
			Path:      projectPath,
			CreatedAt: config.CreatedAt,
			UpdatedAt: time.Now(),
		},
		Config: config,
		path:   projectPath,
	}

	switch config.Storage.Backend {
	case "", BackendSQLite:
		kv, err := storage.NewSQLiteKV(filepath.Join(projectPath, MetaDir, "store.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		p.KV = kv
		p.searchDB = kv.DB()
	case BackendFile:
		var opts []storage.FileKVOption
		if config.Storage.QuotaBytes > 0 {
			opts = append(opts, storage.WithQuota(config.Storage.QuotaBytes))
		}
		kv, err := storage.NewFileKV(filepath.Join(projectPath, MetaDir, "kv"), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		p.KV = kv
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Storage.Backend)
	}

	return p, nil
}

// List returns all available projects.
func (m *Manager) List() ([]*types.Project, error) {
	entries, err := os.ReadDir(m.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.Project{}, nil
		}
		return nil, err
	}

	var projects []*types.Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		projectPath := filepath.Join(m.projectsDir, entry.Name())
		config, err := LoadProjectConfig(projectPath)
		if err != nil {
			continue // Skip invalid projects
		}

		updated := config.CreatedAt
		if info, err := entry.Info(); err == nil {
			updated = info.ModTime()
		}
		projects = append(projects, &types.Project{
			Name:      config.Name,
			Path:      projectPath,
			CreatedAt: config.CreatedAt,
			UpdatedAt: updated,
		})
	}

	return projects, nil
}

// Delete removes a project.
func (m *Manager) Delete(name string) error {
	if !isValidName(name) {
		return ErrInvalidName
	}
	projectPath := filepath.Join(m.projectsDir, name)

	if _, err := os.Stat(projectPath); os.IsNotExist(err) {
		return ErrProjectNotFound
	}

	return os.RemoveAll(projectPath)
}

// isValidName checks if a project name is valid.
func isValidName(name string) bool {
	if name == "" || len(name) > 100 {
		return false
	}

	// Check for invalid characters
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "..", " "}
	for _, char := range invalid {
		if strings.Contains(name, char) {
			return false
		}
	}

	// Check for reserved names
	reserved := []string{".", "..", "con", "prn", "aux", "nul"}
	nameLower := strings.ToLower(name)
	for _, r := range reserved {
		if nameLower == r {
			return false
		}
	}

	return true
}

// Path returns the project's filesystem path.
func (p *Project) Path() string {
	return p.path
}

// ExportDir returns the directory exports and manuscripts are written to.
func (p *Project) ExportDir() string {
	return filepath.Join(p.path, "exports")
}

// SaveConfig writes the project's configuration back to disk.
func (p *Project) SaveConfig() error {
	return SaveProjectConfig(p.path, p.Config)
}

// OpenIndex opens the full-text reference index. With the file backend the
// index gets its own database next to the key-value files.
func (p *Project) OpenIndex(counter search.TokenCounter) (*search.Indexer, error) {
	if p.searchDB == nil {
		db, err := storage.OpenSQLite(filepath.Join(p.path, MetaDir, "search.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open search database: %w", err)
		}
		p.searchDB = db
		p.ownSearchDB = true
	}

	engine, err := search.NewFTSEngine(p.searchDB)
	if err != nil {
		return nil, err
	}
	return search.NewIndexer(engine, counter, p.Config.Search.ChunkSize, p.Config.Search.ChunkOverlap), nil
}

// Close releases project resources.
func (p *Project) Close() error {
	var errs []error
	if p.ownSearchDB && p.searchDB != nil {
		errs = append(errs, p.searchDB.Close())
	}
	if p.KV != nil {
		errs = append(errs, p.KV.Close())
	}
	return errors.Join(errs...)
}
