package ai

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// GeminiConfig конфигурация провайдера Gemini
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Models  []string
	Timeout time.Duration
}

// GeminiClient провайдер Google Gemini поверх SDK genai.
// SDK клиент создается при первом успешном запросе. Ошибка создания не
// запоминается, следующий запрос пробует снова.
type GeminiClient struct {
	config GeminiConfig
	models []string

	mu        sync.Mutex
	client    *genai.Client
	newClient func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error)
}

// NewGeminiClient создает клиент Gemini
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	models := cleanModels(cfg.Models)
	if len(models) == 0 {
		models = []string{"gemini-2.0-flash-exp", "gemini-1.5-flash", "gemini-1.5-pro"}
	}

	return &GeminiClient{
		config:    cfg,
		models:    models,
		newClient: genai.NewClient,
	}
}

func (g *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  g.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(g.config.BaseURL, "/") + "/"}
	}
	client, err := g.newClient(ctx, clientConfig)
	if err != nil {
		return nil, err
	}
	g.client = client
	return client, nil
}

// GetCompletion выполняет generateContent для указанной модели
func (g *GeminiClient) GetCompletion(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if !g.IsEnabled() {
		return "", eris.Wrap(ErrNotConfigured, "Gemini")
	}

	client, err := g.sdk(ctx)
	if err != nil {
		return "", eris.Wrap(err, "failed to create Gemini client")
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](DefaultTemperature),
		MaxOutputTokens: DefaultMaxTokens,
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(userPrompt), config)
	if err != nil {
		return "", eris.Wrapf(err, "Gemini %s request failed", model)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("Gemini %s returned empty response", model)
	}
	return text, nil
}

func (g *GeminiClient) GetProviderName() string {
	return "Gemini"
}

func (g *GeminiClient) Models() []string {
	return append([]string(nil), g.models...)
}

func (g *GeminiClient) IsEnabled() bool {
	return g != nil && g.config.APIKey != ""
}
