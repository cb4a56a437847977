// Package types provides shared configuration models for novelcraft.
package types

import (
	"time"
)

// Project is a named novel workspace on disk.
type Project struct {
	Name      string    `yaml:"name" json:"name"`
	Path      string    `yaml:"-" json:"path"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// ProjectConfig is the per-project configuration stored in .novelcraft/config.yaml.
type ProjectConfig struct {
	Version   int           `yaml:"version"`
	Name      string        `yaml:"name" validate:"required"`
	CreatedAt time.Time     `yaml:"created_at"`
	LLM       LLMConfig     `yaml:"llm"`
	Storage   StorageConfig `yaml:"storage"`
	Search    SearchConfig  `yaml:"search"`
	Budget    BudgetConfig  `yaml:"token_budget"`
}

// LLMConfig overrides the global provider for one project. Empty fields
// fall back to the global defaults.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"omitempty,oneof=openai gemini local"`
	Model    string `yaml:"model"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend    string `yaml:"backend" env:"STORAGE_BACKEND" validate:"omitempty,oneof=sqlite file"`
	QuotaBytes int64  `yaml:"quota_bytes" env:"STORAGE_QUOTA_BYTES" validate:"gte=0"`
}

// SearchConfig controls the reference index.
type SearchConfig struct {
	ChunkSize     int     `yaml:"chunk_size" validate:"gte=0"`
	ChunkOverlap  float64 `yaml:"chunk_overlap" validate:"gte=0,lt=1"`
	MaxReferences int     `yaml:"max_references" validate:"gte=0"`
}

// BudgetConfig divides the context window between prompt sections.
type BudgetConfig struct {
	Instructions float64 `yaml:"instructions"`
	Summaries    float64 `yaml:"summaries"`
	References   float64 `yaml:"references"`
	Previous     float64 `yaml:"previous_chapter"`
	Response     float64 `yaml:"response"`
}

// GlobalConfig is the user-wide configuration at ~/.config/novelcraft/config.yaml.
type GlobalConfig struct {
	Version     int                        `yaml:"version"`
	ProjectsDir string                     `yaml:"projects_dir" env:"PROJECTS_DIR" validate:"required"`
	Providers   map[string]*ProviderConfig `yaml:"providers" validate:"dive,keys,oneof=openai gemini local,endkeys,required"`
	Defaults    DefaultsConfig             `yaml:"defaults"`
	Logging     LoggingConfig              `yaml:"logging"`
	Storage     StorageConfig              `yaml:"storage"`
	Generation  GenerationConfig           `yaml:"generation"`
}

// ProviderConfig holds API configuration for an LLM provider.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url,omitempty" validate:"omitempty,url"`
}

// DefaultsConfig specifies default settings.
type DefaultsConfig struct {
	Provider string `yaml:"provider" env:"PROVIDER" validate:"required,oneof=openai gemini local"`
	Model    string `yaml:"model,omitempty" env:"MODEL"`
}

// LoggingConfig specifies logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"required,oneof=text json"`
	File   string `yaml:"file,omitempty" env:"LOG_FILE"`
}

// GenerationConfig bounds calls to the generation provider.
type GenerationConfig struct {
	RateLimitRPM   int `yaml:"rate_limit_rpm" env:"RATE_LIMIT_RPM" validate:"gt=0"`
	Burst          int `yaml:"burst" env:"RATE_LIMIT_BURST" validate:"gt=0"`
	MaxRetries     int `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=0,lte=10"`
	TimeoutSeconds int `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS" validate:"gt=0"`
}

// Timeout returns the per-request timeout.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// DefaultProjectConfig returns a new ProjectConfig with sensible defaults.
func DefaultProjectConfig(name string) *ProjectConfig {
	return &ProjectConfig{
		Version:   1,
		Name:      name,
		CreatedAt: time.Now(),
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Search: SearchConfig{
			ChunkSize:     400,
			ChunkOverlap:  0.15,
			MaxReferences: 5,
		},
		Budget: DefaultBudget(),
	}
}

// DefaultBudget returns the default prompt section ratios.
func DefaultBudget() BudgetConfig {
	return BudgetConfig{
		Instructions: 0.10,
		Summaries:    0.20,
		References:   0.25,
		Previous:     0.10,
		Response:     0.35,
	}
}

// DefaultGlobalConfig returns a new GlobalConfig with sensible defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version:     1,
		ProjectsDir: "~/novelcraft-projects",
		Providers:   make(map[string]*ProviderConfig),
		Defaults: DefaultsConfig{
			Provider: "gemini",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Generation: GenerationConfig{
			RateLimitRPM:   30,
			Burst:          3,
			MaxRetries:     3,
			TimeoutSeconds: 120,
		},
	}
}
