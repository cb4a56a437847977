package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/persist"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/token"
	"github.com/azyu/novelcraft/pkg/types"
)

func writeConfig(t *testing.T, body string) *ConfigManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return NewConfigManagerAt(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NOVELCRAFT_PROVIDER", "NOVELCRAFT_MODEL", "NOVELCRAFT_LOG_LEVEL", "NOVELCRAFT_LOG_FORMAT",
		"NOVELCRAFT_PROJECTS_DIR", "NOVELCRAFT_STORAGE_BACKEND", "NOVELCRAFT_RATE_LIMIT_RPM",
		"OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// ============================================================================
// Configuration
// ============================================================================

func TestLoadGlobalConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		clearEnv(t)
		cm := NewConfigManagerAt(filepath.Join(t.TempDir(), "missing.yaml"))
		cfg, err := cm.LoadGlobalConfig()
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Defaults.Provider)
		assert.Equal(t, 30, cfg.Generation.RateLimitRPM)
		assert.False(t, strings.HasPrefix(cfg.ProjectsDir, "~"), "home is expanded")
	})

	t.Run("file values over defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
		cm := writeConfig(t, `
projects_dir: /tmp/novels
defaults:
  provider: openai
providers:
  openai:
    api_key: ${TEST_OPENAI_KEY}
    default_model: gpt-4o-mini
logging:
  level: debug
`)
		cfg, err := cm.LoadGlobalConfig()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/novels", cfg.ProjectsDir)
		assert.Equal(t, "openai", cfg.Defaults.Provider)
		assert.Equal(t, "sk-from-env", cfg.Providers["openai"].APIKey)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "text", cfg.Logging.Format, "unset fields keep defaults")

		again, err := cm.LoadGlobalConfig()
		require.NoError(t, err)
		assert.Same(t, cfg, again)
	})

	t.Run("environment over file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NOVELCRAFT_PROVIDER", "local")
		t.Setenv("NOVELCRAFT_LOG_FORMAT", "json")
		t.Setenv("NOVELCRAFT_RATE_LIMIT_RPM", "90")
		cm := writeConfig(t, "defaults:\n  provider: openai\n")

		cfg, err := cm.LoadGlobalConfig()
		require.NoError(t, err)
		assert.Equal(t, "local", cfg.Defaults.Provider)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, 90, cfg.Generation.RateLimitRPM)
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		clearEnv(t)
		cm := writeConfig(t, `
defaults:
  provider: claude
logging:
  level: loud
`)
		_, err := cm.LoadGlobalConfig()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "Provider")
		assert.Contains(t, err.Error(), "Level")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		clearEnv(t)
		cm := writeConfig(t, "defaults: [")
		_, err := cm.LoadGlobalConfig()
		assert.Error(t, err)
	})
}

func TestConfigSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_GEMINI_KEY", "secret")
	cm := writeConfig(t, "providers:\n  gemini:\n    api_key: ${TEST_GEMINI_KEY}\n")

	require.NoError(t, cm.Set("defaults.provider", "openai"))
	require.NoError(t, cm.Set("providers.openai.default_model", "gpt-4.1"))

	cfg, err := cm.LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Defaults.Provider)
	assert.Equal(t, "gpt-4.1", cfg.Providers["openai"].DefaultModel)

	data, err := os.ReadFile(cm.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "${TEST_GEMINI_KEY}", "references are kept unexpanded")
	assert.NotContains(t, string(data), "secret")

	t.Run("unknown key", func(t *testing.T) {
		assert.ErrorIs(t, cm.Set("colors.theme", "dark"), ErrInvalidConfig)
		assert.ErrorIs(t, cm.Set("providers.openai.region", "eu"), ErrInvalidConfig)
	})

	t.Run("invalid value", func(t *testing.T) {
		assert.ErrorIs(t, cm.Set("logging.level", "verbose"), ErrInvalidConfig)
	})

	assert.Contains(t, SettableKeys(), "defaults.provider")
}

func TestGetProviderConfig(t *testing.T) {
	clearEnv(t)
	cm := writeConfig(t, "providers:\n  local:\n    base_url: http://127.0.0.1:8080\n")
	pc, err := cm.GetProviderConfig("local")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", pc.BaseURL)

	_, err = cm.GetProviderConfig("openai")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

// ============================================================================
// Logging
// ============================================================================

func TestNewLogger(t *testing.T) {
	t.Run("json at warn", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(types.LoggingConfig{Level: "warn", Format: "json"}, &buf)
		logger.Info("hidden")
		logger.Warn("shown", "chapter", 2)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "shown", entry["msg"])
		assert.EqualValues(t, 2, entry["chapter"])
	})

	t.Run("text by default", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(types.LoggingConfig{Level: "debug"}, &buf).Debug("details")
		assert.Contains(t, buf.String(), "msg=details")
	})
}

func TestLogFilePath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/state")
	path, err := LogFilePath(types.LoggingConfig{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/state", "novelcraft", "novelcraft.log"), path)

	path, err = LogFilePath(types.LoggingConfig{File: "/tmp/custom.log"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.log", path)
}

// ============================================================================
// Application
// ============================================================================

// echoProvider answers every chat with a fixed reply.
type echoProvider struct {
	reply  string
	closed bool
}

func (p *echoProvider) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: p.reply},
		FinishReason: llm.FinishReasonStop,
	}, nil
}

func (p *echoProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{SupportsSchema: true, MaxContextTokens: 8192}
}

func (p *echoProvider) Close() error {
	p.closed = true
	return nil
}

func newTestApp(t *testing.T, configBody string, opts ...Option) *App {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	body := "projects_dir: " + filepath.Join(dir, "projects") + "\nstorage:\n  backend: file\n" + configBody
	cm := writeConfig(t, body)

	var logs bytes.Buffer
	opts = append([]Option{
		WithConfigManager(cm),
		WithLogger(NewLogger(types.LoggingConfig{Level: "debug"}, &logs)),
		WithTokenizer(token.Estimator{}),
	}, opts...)
	a, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_Projects(t *testing.T) {
	a := newTestApp(t, "")

	t.Run("operations need a project", func(t *testing.T) {
		assert.ErrorIs(t, a.Import([]byte(`{}`)), ErrNoProject)
		_, err := a.Export()
		assert.ErrorIs(t, err, ErrNoProject)
		_, err = a.Writer(context.Background())
		assert.ErrorIs(t, err, ErrNoProject)
	})

	require.NoError(t, a.CreateProject("harbor"))
	assert.Equal(t, "file", a.CurrentProject.Config.Storage.Backend)

	a.Store.Dispatch(store.AddCharacter{Character: novel.Character{ID: 5, Name: "Mara"}})

	t.Run("document survives reopening", func(t *testing.T) {
		require.NoError(t, a.OpenProject("harbor"))
		doc := a.Store.Document()
		require.Len(t, doc.Characters, 1)
		assert.Equal(t, "Mara", doc.Characters[0].Name)
	})

	t.Run("export writes a project file", func(t *testing.T) {
		path, err := a.Export()
		require.NoError(t, err)
		assert.Equal(t, persist.ExportFileName, filepath.Base(path))
	})

	t.Run("list", func(t *testing.T) {
		projects, err := a.ListProjects()
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "harbor", projects[0].Name)
	})
}

func TestApp_ImportHooks(t *testing.T) {
	a := newTestApp(t, "")
	require.NoError(t, a.CreateProject("gate"))

	calls := 0
	a.OnImport(func() { calls++ })

	require.NoError(t, a.Import([]byte(`{"chapters":[{"title":"One","content":"x"}],"characters":[]}`)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "One", a.Store.Document().Chapters[0].Title)

	err := a.Import([]byte(`[1,2]`))
	assert.ErrorIs(t, err, persist.ErrMalformedImport)
	assert.Equal(t, 1, calls, "failed imports do not fire hooks")

	require.NoError(t, a.ResetApplication())
	assert.Equal(t, 2, calls)
	assert.Equal(t, novel.DefaultChapterTitle, a.Store.Document().Chapters[0].Title)

	require.NoError(t, a.ResetDocument())
	assert.Equal(t, 3, calls)
}

func TestApp_ProviderSettings(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		a := newTestApp(t, "defaults:\n  provider: openai\n")
		_, err := a.ProviderSettings()
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("environment key", func(t *testing.T) {
		a := newTestApp(t, "defaults:\n  provider: openai\n")
		t.Setenv("OPENAI_API_KEY", "sk-env")
		s, err := a.ProviderSettings()
		require.NoError(t, err)
		assert.Equal(t, "sk-env", s.APIKey)
	})

	t.Run("stored credential wins", func(t *testing.T) {
		a := newTestApp(t, "defaults:\n  provider: gemini\nproviders:\n  gemini:\n    api_key: from-file\n    default_model: gemini-2.5-pro\n")
		require.NoError(t, a.CreateProject("keys"))
		require.NoError(t, a.SetAPIKey("from-store"))

		s, err := a.ProviderSettings()
		require.NoError(t, err)
		assert.Equal(t, "from-store", s.APIKey)
		assert.Equal(t, "gemini-2.5-pro", s.Model)
	})

	t.Run("project override", func(t *testing.T) {
		a := newTestApp(t, "defaults:\n  provider: gemini\n  model: gemini-2.5-flash\n")
		require.NoError(t, a.CreateProject("local-one"))
		a.CurrentProject.Config.LLM = types.LLMConfig{Provider: "local", Model: "qwen2.5"}

		s, err := a.ProviderSettings()
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, s.Name)
		assert.Equal(t, "qwen2.5", s.Model)
		assert.Equal(t, DefaultLocalURL, s.BaseURL)
	})
}

func TestApp_Writer(t *testing.T) {
	provider := &echoProvider{reply: "Act 1 (Setup): a storm."}
	var got ProviderSettings
	factory := func(_ context.Context, s ProviderSettings) (llm.Provider, error) {
		got = s
		return provider, nil
	}
	a := newTestApp(t, "defaults:\n  provider: local\n", WithProviderFactory(factory))
	require.NoError(t, a.CreateProject("draft"))

	w, err := a.Writer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, got.Name)

	again, err := a.Writer(context.Background())
	require.NoError(t, err)
	assert.Same(t, w, again)

	choices := novel.DefaultChoices()
	choices.Genre = novel.Ptr("Fantasy")
	choices.Premise = "A storm strands a ferry."
	out, err := w.Synopsis(context.Background(), choices)
	require.NoError(t, err)
	a.Store.DispatchAll(out.Actions()...)
	assert.Equal(t, "Act 1 (Setup): a storm.", a.Store.Document().Choices.Synopsis)

	require.NoError(t, a.SetAPIKey("new-key"))
	assert.True(t, provider.closed, "changing the key drops the provider")
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, ProviderSettings{Name: ProviderLocal, BaseURL: DefaultLocalURL})
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1"}, p.Capabilities().Models)

	p, err = NewProvider(ctx, ProviderSettings{Name: ProviderOpenAI, APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.True(t, p.Capabilities().SupportsSchema)

	_, err = NewProvider(ctx, ProviderSettings{Name: "claude"})
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}
