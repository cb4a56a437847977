// Package project manages novel workspaces on disk.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/pkg/types"
	"gopkg.in/yaml.v3"
)

// MetaDir is the per-project directory holding config and storage.
const MetaDir = ".novelcraft"

var (
	ErrConfigNotFound = errors.New("configuration file not found")
)

// LoadProjectConfig loads a project's configuration. Fields missing from
// the file keep the values of types.DefaultProjectConfig.
func LoadProjectConfig(projectPath string) (*types.ProjectConfig, error) {
	configPath := filepath.Join(projectPath, MetaDir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	config := types.DefaultProjectConfig("")
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}

	return config, nil
}

// SaveProjectConfig saves a project's configuration.
func SaveProjectConfig(projectPath string, config *types.ProjectConfig) error {
	configDir := filepath.Join(projectPath, MetaDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", MetaDir, err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := storage.AtomicWriteFile(configPath, data); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}

	return nil
}
