package container

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"grupoeconomico/classification"
	"grupoeconomico/enrichment"
	"grupoeconomico/internal/config"
	"grupoeconomico/internal/infrastructure/ai"
	"grupoeconomico/internal/infrastructure/monitoring"
	"grupoeconomico/pipeline"
)

// Container собирает компоненты каскада классификации из конфигурации.
// Кэш идентификаторов и метрики общие для всех пакетов одной сессии.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *monitoring.Metrics

	Cache  *enrichment.IdentityCache
	Lookup *enrichment.RegistryLookup

	Groups     *classification.KnownGroupTable
	Rules      *classification.KeywordClassifier
	Providers  []*classification.AIClassifier
	Arbitrator *classification.Arbitrator
}

// NewContainer создает контейнер
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, eris.New("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: monitoring.New(),
		Cache:   enrichment.NewIdentityCache(),
	}

	// Шаг 1: Реестр
	c.Lookup = enrichment.NewRegistryLookupFromConfig(cfg.Registry, c.Cache, logger, c.Metrics)

	// Шаг 2: Таблица групп и правила
	if err := c.initGroups(); err != nil {
		return nil, eris.Wrap(err, "failed to initialize group table")
	}

	// Шаг 3: AI провайдеры и арбитр
	c.initProviders()

	logger.Info("Container initialized",
		zap.Strings("registry_services", c.Lookup.GetAvailableServices()),
		zap.Int("groups", len(c.Groups.Names())),
		zap.Int("providers", len(c.Providers)),
		zap.Bool("arbitration", c.Arbitrator.IsAvailable()))

	return c, nil
}

func (c *Container) initGroups() error {
	if c.Config.Classification.GroupsFile == "" {
		c.Groups = classification.DefaultGroupTable()
	} else {
		table, err := classification.LoadGroupTable(c.Config.Classification.GroupsFile)
		if err != nil {
			return err
		}
		c.Groups = table
	}
	c.Rules = classification.NewKeywordClassifier(c.Groups)
	return nil
}

func (c *Container) initProviders() {
	cfg := c.Config

	perplexity := ai.NewPerplexityClient(cfg.Perplexity.APIKey, cfg.Perplexity.BaseURL, cfg.Perplexity.Models, cfg.Perplexity.Timeout)
	gemini := ai.NewGeminiClient(ai.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Models:  cfg.Gemini.Models,
		Timeout: cfg.Gemini.Timeout,
	})

	aiConfig := classification.AIClassifierConfig{AllowUnknownGroups: cfg.Classification.AllowUnknownGroups}
	for _, name := range cfg.Classification.ProviderOrder {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case config.ProviderPerplexity:
			researchConfig := aiConfig
			researchConfig.Research = true
			c.Providers = append(c.Providers, classification.NewAIClassifier(perplexity, c.Groups, researchConfig, c.Logger, c.Metrics))
		case config.ProviderGemini:
			c.Providers = append(c.Providers, classification.NewAIClassifier(gemini, c.Groups, aiConfig, c.Logger, c.Metrics))
		}
	}

	if cfg.Classification.ArbitrationEnabled {
		c.Arbitrator = classification.NewArbitrator(gemini, cfg.Gemini.JudgeModel, cfg.Classification.ArbitrationFallback, c.Logger, c.Metrics)
	}
}

// NewOrchestrator создает оркестратор для одного пакета
func (c *Container) NewOrchestrator(progress pipeline.ProgressReporter) (*pipeline.Orchestrator, error) {
	providers := make([]pipeline.ProviderClassifier, 0, len(c.Providers))
	for _, p := range c.Providers {
		providers = append(providers, p)
	}

	orchestratorConfig := pipeline.Config{
		Lookup:    c.Lookup,
		Rules:     c.Rules,
		Providers: providers,
		Pause:     c.Config.BatchPause,
		Logger:    c.Logger,
		Metrics:   c.Metrics,
		Progress:  progress,
	}
	if c.Arbitrator != nil {
		orchestratorConfig.Arbitrator = c.Arbitrator
	}
	return pipeline.NewOrchestrator(orchestratorConfig)
}
