// Package app wires configuration, projects, storage and generation into a
// running application.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/pkg/types"
)

var (
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOVELCRAFT_"

// ConfigManager loads and saves the global configuration.
type ConfigManager struct {
	globalConfigPath string
	globalConfig     *types.GlobalConfig
}

// NewConfigManager creates a configuration manager for the user's config
// directory.
func NewConfigManager() (*ConfigManager, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return NewConfigManagerAt(filepath.Join(configDir, "config.yaml")), nil
}

// NewConfigManagerAt creates a configuration manager for the file at path.
func NewConfigManagerAt(path string) *ConfigManager {
	return &ConfigManager{globalConfigPath: path}
}

// Path returns the config file location.
func (cm *ConfigManager) Path() string {
	return cm.globalConfigPath
}

func getConfigDir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "novelcraft"), nil
}

var loadDotenv sync.Once

// LoadGlobalConfig loads the global configuration. Settings are layered:
// defaults, then the YAML file, then NOVELCRAFT_* environment variables
// (a .env file in the working directory is read first). The result is
// validated.
func (cm *ConfigManager) LoadGlobalConfig() (*types.GlobalConfig, error) {
	if cm.globalConfig != nil {
		return cm.globalConfig, nil
	}

	loadDotenv.Do(func() {
		_ = godotenv.Load()
	})

	config, err := cm.readFile()
	if err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	for _, provider := range config.Providers {
		if provider == nil {
			continue
		}
		provider.APIKey = expandEnv(provider.APIKey)
		provider.BaseURL = expandEnv(provider.BaseURL)
	}
	config.ProjectsDir = expandPath(config.ProjectsDir)

	if err := ValidateGlobalConfig(config); err != nil {
		return nil, err
	}

	cm.globalConfig = config
	return cm.globalConfig, nil
}

// readFile returns the defaults overlaid with the config file, without
// environment overrides.
func (cm *ConfigManager) readFile() (*types.GlobalConfig, error) {
	config := types.DefaultGlobalConfig()
	data, err := os.ReadFile(cm.globalConfigPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse global config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read global config: %w", err)
	}
	if config.Providers == nil {
		config.Providers = make(map[string]*types.ProviderConfig)
	}
	return config, nil
}

// SaveGlobalConfig writes config to the config file.
func (cm *ConfigManager) SaveGlobalConfig(config *types.GlobalConfig) error {
	if err := ValidateGlobalConfig(config); err != nil {
		return err
	}

	dir := filepath.Dir(cm.globalConfigPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := storage.AtomicWriteFileMode(cm.globalConfigPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Reload on next use so environment overrides apply again.
	cm.globalConfig = nil
	return nil
}

var (
	configValidateOnce sync.Once
	configValidate     *validator.Validate
)

func configValidator() *validator.Validate {
	configValidateOnce.Do(func() {
		configValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return configValidate
}

// ValidateGlobalConfig checks config against its validate tags. Every
// failing field is reported.
func ValidateGlobalConfig(config *types.GlobalConfig) error {
	err := configValidator().Struct(config)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

// expandEnv resolves a whole-value ${VAR} reference.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// GetProjectsDir returns the projects directory path.
func (cm *ConfigManager) GetProjectsDir() (string, error) {
	config, err := cm.LoadGlobalConfig()
	if err != nil {
		return "", err
	}
	return config.ProjectsDir, nil
}

// GetProviderConfig returns the configuration for a specific provider.
func (cm *ConfigManager) GetProviderConfig(providerName string) (*types.ProviderConfig, error) {
	config, err := cm.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}

	provider, ok := config.Providers[providerName]
	if !ok || provider == nil {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, providerName)
	}
	return provider, nil
}

// Set changes one setting by its dotted YAML path and saves the file.
// Environment overrides and ${VAR} references are not written back.
// Supported keys are listed by SettableKeys.
func (cm *ConfigManager) Set(key, value string) error {
	updated, err := cm.readFile()
	if err != nil {
		return err
	}

	provider := func(name string) *types.ProviderConfig {
		p, ok := updated.Providers[name]
		if !ok || p == nil {
			p = &types.ProviderConfig{}
			updated.Providers[name] = p
		}
		return p
	}

	switch parts := strings.Split(key, "."); {
	case key == "projects_dir":
		updated.ProjectsDir = value
	case key == "defaults.provider":
		updated.Defaults.Provider = value
	case key == "defaults.model":
		updated.Defaults.Model = value
	case key == "logging.level":
		updated.Logging.Level = value
	case key == "logging.format":
		updated.Logging.Format = value
	case key == "logging.file":
		updated.Logging.File = value
	case key == "storage.backend":
		updated.Storage.Backend = value
	case len(parts) == 3 && parts[0] == "providers":
		p := provider(parts[1])
		switch parts[2] {
		case "api_key":
			p.APIKey = value
		case "default_model":
			p.DefaultModel = value
		case "base_url":
			p.BaseURL = value
		default:
			return fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, key)
		}
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, key)
	}

	return cm.SaveGlobalConfig(updated)
}

// SettableKeys lists the keys accepted by Set. Provider keys take the
// provider name in place of <name>.
func SettableKeys() []string {
	return []string{
		"projects_dir",
		"defaults.provider",
		"defaults.model",
		"logging.level",
		"logging.format",
		"logging.file",
		"storage.backend",
		"providers.<name>.api_key",
		"providers.<name>.default_model",
		"providers.<name>.base_url",
	}
}
