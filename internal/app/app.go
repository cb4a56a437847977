package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/llm/adapters"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/persist"
	"github.com/azyu/novelcraft/internal/project"
	"github.com/azyu/novelcraft/internal/search"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/token"
	"github.com/azyu/novelcraft/internal/writer"
	"github.com/azyu/novelcraft/pkg/types"
)

var (
	ErrNoProject       = errors.New("no project is open")
	ErrMissingAPIKey   = errors.New("no API key configured")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrIndexDisabled   = errors.New("reference search is not available")
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// DefaultLocalURL is used for the local provider when no base URL is set.
const DefaultLocalURL = "http://localhost:11434"

// App represents the main application instance.
type App struct {
	Config         *ConfigManager
	Global         *types.GlobalConfig
	ProjectManager *project.Manager
	Logger         *slog.Logger

	// Set by OpenProject and CreateProject.
	CurrentProject *project.Project
	Store          *store.Store
	Persister      *persist.Persister
	Index          *search.Indexer

	detach func()

	mu        sync.Mutex
	importFns []func()
	provider  llm.Provider
	writer    *writer.Writer
	tokenizer token.Tokenizer

	// newProvider is swapped in tests.
	newProvider func(ctx context.Context, s ProviderSettings) (llm.Provider, error)
}

// Option configures an App.
type Option func(*App)

// WithConfigManager sets where configuration is read from.
func WithConfigManager(cm *ConfigManager) Option {
	return func(a *App) {
		a.Config = cm
	}
}

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.Logger = logger
	}
}

// WithTokenizer sets the token counter instead of loading tiktoken ranks.
func WithTokenizer(t token.Tokenizer) Option {
	return func(a *App) {
		a.tokenizer = t
	}
}

// WithProviderFactory replaces the generation provider constructor.
func WithProviderFactory(fn func(ctx context.Context, s ProviderSettings) (llm.Provider, error)) Option {
	return func(a *App) {
		a.newProvider = fn
	}
}

// New creates a new application instance.
func New(opts ...Option) (*App, error) {
	a := &App{newProvider: NewProvider}
	for _, opt := range opts {
		opt(a)
	}

	if a.Config == nil {
		configManager, err := NewConfigManager()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize config manager: %w", err)
		}
		a.Config = configManager
	}

	globalConfig, err := a.Config.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	a.Global = globalConfig

	if a.Logger == nil {
		a.Logger = NewLogger(globalConfig.Logging, os.Stderr)
	}

	projectManager, err := project.NewManager(globalConfig.ProjectsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize project manager: %w", err)
	}
	a.ProjectManager = projectManager
	return a, nil
}

// OpenProject opens an existing project by name and loads its document.
func (a *App) OpenProject(name string) error {
	proj, err := a.ProjectManager.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}
	a.startSession(proj)
	return nil
}

// CreateProject creates a new project and opens it.
func (a *App) CreateProject(name string) error {
	config := types.DefaultProjectConfig(name)
	if a.Global.Storage.Backend != "" {
		config.Storage.Backend = a.Global.Storage.Backend
	}
	config.Storage.QuotaBytes = a.Global.Storage.QuotaBytes

	proj, err := a.ProjectManager.Create(name, config)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	a.startSession(proj)
	return nil
}

func (a *App) startSession(proj *project.Project) {
	a.closeSession()
	a.CurrentProject = proj

	logger := a.Logger.With("project", proj.Info.Name)
	a.Store = store.New(novel.NewDocument(),
		store.WithLogger(logger.With("component", "store")),
		store.WithIDSource(novel.Default),
	)
	a.Persister = persist.New(proj.KV,
		persist.WithLogger(logger.With("component", "persist")),
		persist.WithImportHook(a.runImportHooks),
	)
	a.Persister.Load(a.Store)
	a.detach = a.Persister.Attach(a.Store)

	idx, err := proj.OpenIndex(a.Tokenizer())
	if err != nil {
		logger.Warn("reference search disabled", "error", err)
		return
	}
	a.Index = idx
}

// OnImport registers fn to run after every successful import or reset.
func (a *App) OnImport(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.importFns = append(a.importFns, fn)
}

func (a *App) runImportHooks() {
	a.mu.Lock()
	fns := append([]func(){}, a.importFns...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ListProjects returns all available projects.
func (a *App) ListProjects() ([]*types.Project, error) {
	return a.ProjectManager.List()
}

// Import replaces the open document with an exported project file.
func (a *App) Import(data []byte) error {
	if a.Store == nil {
		return ErrNoProject
	}
	return a.Persister.Import(a.Store, data)
}

// Export writes the open document to the project's export directory.
func (a *App) Export() (string, error) {
	if a.Store == nil {
		return "", ErrNoProject
	}
	return persist.ExportFile(a.Store.Document(), a.CurrentProject.ExportDir())
}

// ResetDocument starts the open project over with an empty document.
func (a *App) ResetDocument() error {
	if a.Store == nil {
		return ErrNoProject
	}
	a.Store.Dispatch(store.ResetDocument{})
	a.runImportHooks()
	return nil
}

// ResetApplication clears every stored key of the open project, including
// the API key, and resets the document.
func (a *App) ResetApplication() error {
	if a.Store == nil {
		return ErrNoProject
	}
	err := a.Persister.ResetApplication(a.Store)
	a.mu.Lock()
	a.dropProviderLocked()
	a.mu.Unlock()
	a.runImportHooks()
	return err
}

// Search runs a full-text query over the open document.
func (a *App) Search(query string, opts search.SearchOptions) ([]search.SearchResult, error) {
	if a.Store == nil {
		return nil, ErrNoProject
	}
	if a.Index == nil {
		return nil, ErrIndexDisabled
	}
	if _, err := a.Index.Sync(a.Store.Document()); err != nil {
		return nil, fmt.Errorf("failed to index document: %w", err)
	}
	return a.Index.Search(query, opts)
}

// Tokenizer returns the token counter for the configured model. Without
// tiktoken ranks it falls back to the character estimate.
func (a *App) Tokenizer() token.Tokenizer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tokenizer != nil {
		return a.tokenizer
	}

	model := ""
	if s, err := a.providerSettingsLocked(); err == nil {
		model = s.Model
	}
	counter, err := token.NewCounter(token.EncodingForModel(model))
	if err != nil {
		a.Logger.Warn("tokenizer unavailable, estimating token counts", "error", err)
		a.tokenizer = token.Estimator{}
		return a.tokenizer
	}
	a.tokenizer = counter
	return a.tokenizer
}

// ProviderSettings is the resolved generation provider configuration.
type ProviderSettings struct {
	Name       string
	Model      string
	APIKey     string
	BaseURL    string
	MaxRetries int
	Generation types.GenerationConfig
}

// ProviderSettings resolves the provider for the open project. The project
// override wins over the global default. The API key comes from the
// project's stored credential, then the config file, then the provider's
// usual environment variable.
func (a *App) ProviderSettings() (ProviderSettings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.providerSettingsLocked()
}

func (a *App) providerSettingsLocked() (ProviderSettings, error) {
	s := ProviderSettings{
		Name:       a.Global.Defaults.Provider,
		Model:      a.Global.Defaults.Model,
		MaxRetries: a.Global.Generation.MaxRetries,
		Generation: a.Global.Generation,
	}
	if p := a.CurrentProject; p != nil {
		if p.Config.LLM.Provider != "" {
			s.Name = p.Config.LLM.Provider
			s.Model = ""
		}
		if p.Config.LLM.Model != "" {
			s.Model = p.Config.LLM.Model
		}
	}

	if pc := a.Global.Providers[s.Name]; pc != nil {
		if s.Model == "" {
			s.Model = pc.DefaultModel
		}
		s.APIKey = pc.APIKey
		s.BaseURL = pc.BaseURL
	}
	if a.Persister != nil {
		if key := a.Persister.APIKey(); key != "" {
			s.APIKey = key
		}
	}

	switch s.Name {
	case ProviderOpenAI:
		if s.APIKey == "" {
			s.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case ProviderGemini:
		if s.APIKey == "" {
			s.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		if s.APIKey == "" {
			s.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	case ProviderLocal:
		if s.BaseURL == "" {
			s.BaseURL = DefaultLocalURL
		}
		return s, nil
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Name)
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return s, fmt.Errorf("%w for %s", ErrMissingAPIKey, s.Name)
	}
	return s, nil
}

// NewProvider constructs the adapter named by s.
func NewProvider(ctx context.Context, s ProviderSettings) (llm.Provider, error) {
	switch s.Name {
	case ProviderOpenAI:
		var opts []adapters.OpenAIOption
		if s.BaseURL != "" {
			opts = append(opts, adapters.WithOpenAIBaseURL(s.BaseURL))
		}
		opts = append(opts, adapters.WithOpenAIRetry(s.MaxRetries, adapters.DefaultRetryDelay))
		return adapters.NewOpenAIAdapter(s.APIKey, s.Model, opts...)
	case ProviderGemini:
		var opts []adapters.GeminiAdapterOption
		if s.BaseURL != "" {
			opts = append(opts, adapters.WithGeminiBaseURL(s.BaseURL))
		}
		return adapters.NewGeminiAdapter(ctx, s.APIKey, s.Model, opts...)
	case ProviderLocal:
		model := s.Model
		if model == "" {
			model = "llama3.1"
		}
		return adapters.NewLocalAdapter(s.BaseURL, model, adapters.WithTimeout(s.Generation.Timeout())), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Name)
	}
}

// Writer returns the generation workflows for the open project, creating
// the provider on first use.
func (a *App) Writer(ctx context.Context) (*writer.Writer, error) {
	if a.Store == nil {
		return nil, ErrNoProject
	}
	tokenizer := a.Tokenizer()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.writer != nil {
		return a.writer, nil
	}

	settings, err := a.providerSettingsLocked()
	if err != nil {
		return nil, err
	}
	provider, err := a.newProvider(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", settings.Name, err)
	}

	gen := settings.Generation
	client := llm.NewClient(provider,
		llm.WithRateLimit(gen.RateLimitRPM, gen.Burst),
		llm.WithRequestTimeout(gen.Timeout()),
		llm.WithClientLogger(a.Logger.With("component", "llm", "provider", settings.Name)),
	)

	opts := []writer.Option{
		writer.WithTokenizer(tokenizer),
		writer.WithBudget(token.NewBudget(settings.Model, a.CurrentProject.Config.Budget)),
		writer.WithIDSource(novel.Default),
		writer.WithLogger(a.Logger.With("component", "writer")),
	}
	if a.Index != nil {
		opts = append(opts, writer.WithReferenceRanker(&storeRanker{index: a.Index, store: a.Store}))
	}

	a.provider = provider
	a.writer = writer.New(client, opts...)
	a.Logger.Debug("generation ready", "provider", settings.Name, "model", settings.Model)
	return a.writer, nil
}

// SetAPIKey stores key as the open project's credential and drops the
// cached provider so the next generation uses it.
func (a *App) SetAPIKey(key string) error {
	if a.Persister == nil {
		return ErrNoProject
	}
	if err := a.Persister.SetAPIKey(key); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropProviderLocked()
	return nil
}

func (a *App) dropProviderLocked() {
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.Logger.Debug("provider close failed", "error", err)
		}
	}
	a.provider = nil
	a.writer = nil
}

func (a *App) closeSession() {
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	a.mu.Lock()
	a.dropProviderLocked()
	a.mu.Unlock()
	if a.CurrentProject != nil {
		if err := a.CurrentProject.Close(); err != nil {
			a.Logger.Warn("failed to close project", "error", err)
		}
	}
	a.CurrentProject = nil
	a.Store = nil
	a.Persister = nil
	a.Index = nil
}

// Close cleans up application resources.
func (a *App) Close() error {
	if a.CurrentProject == nil {
		return nil
	}
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	a.mu.Lock()
	a.dropProviderLocked()
	a.mu.Unlock()
	err := a.CurrentProject.Close()
	a.CurrentProject = nil
	return err
}

// storeRanker ranks references against the current document, reindexing
// first when it changed.
type storeRanker struct {
	index *search.Indexer
	store *store.Store
}

func (r *storeRanker) RankReferences(query string, limit int) ([]int64, error) {
	if _, err := r.index.Sync(r.store.Document()); err != nil {
		return nil, err
	}
	return r.index.RankReferences(query, limit)
}

var _ writer.ReferenceRanker = (*storeRanker)(nil)
