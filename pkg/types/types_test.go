package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultProjectConfig(t *testing.T) {
	tests := []struct {
		name        string
		projectName string
	}{
		{name: "creates config with a name", projectName: "Harbor of Lanterns"},
		{name: "creates config with an empty name", projectName: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			cfg := DefaultProjectConfig(tt.projectName)

			assert.Equal(t, tt.projectName, cfg.Name)
			assert.Equal(t, 1, cfg.Version)
			assert.False(t, cfg.CreatedAt.Before(before))

			// Provider is inherited from the global config unless set.
			assert.Empty(t, cfg.LLM.Provider)
			assert.Equal(t, "sqlite", cfg.Storage.Backend)

			assert.Equal(t, 400, cfg.Search.ChunkSize)
			assert.Equal(t, 0.15, cfg.Search.ChunkOverlap)
			assert.Equal(t, 5, cfg.Search.MaxReferences)
		})
	}
}

func TestDefaultBudget(t *testing.T) {
	b := DefaultBudget()
	sum := b.Instructions + b.Summaries + b.References + b.Previous + b.Response
	assert.InDelta(t, 1.0, sum, 0.001)
	assert.Greater(t, b.Response, b.Summaries)
}

func TestDefaultGlobalConfig(t *testing.T) {
	cfg := DefaultGlobalConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "~/novelcraft-projects", cfg.ProjectsDir)
	assert.NotNil(t, cfg.Providers)
	assert.Empty(t, cfg.Providers)
	assert.Equal(t, "gemini", cfg.Defaults.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 30, cfg.Generation.RateLimitRPM)
	assert.Equal(t, 120*time.Second, cfg.Generation.Timeout())
}
