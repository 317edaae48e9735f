package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ChatCompletionsConfig конфигурация OpenAI-совместимого провайдера
type ChatCompletionsConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	Models      []string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// ChatCompletionsClient клиент для OpenAI-совместимого API /chat/completions.
// Используется для Perplexity. Повторных попыток нет: ошибка транспорта или
// авторизации делает провайдера недоступным для текущего CNPJ.
type ChatCompletionsClient struct {
	name        string
	baseURL     string
	apiKey      string
	models      []string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Message сообщение чата
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewChatCompletionsClient создает новый клиент
func NewChatCompletionsClient(cfg ChatCompletionsConfig) *ChatCompletionsClient {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	return &ChatCompletionsClient{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		models:      cleanModels(cfg.Models),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  newHTTPClient(cfg.Timeout),
	}
}

// NewPerplexityClient создает клиент Perplexity
func NewPerplexityClient(apiKey, baseURL string, models []string, timeout time.Duration) *ChatCompletionsClient {
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if len(models) == 0 {
		models = []string{"llama-3.1-sonar-large-128k-online"}
	}

	return NewChatCompletionsClient(ChatCompletionsConfig{
		Name:    "Perplexity",
		BaseURL: baseURL,
		APIKey:  apiKey,
		Models:  models,
		Timeout: timeout,
	})
}

// GetCompletion выполняет запрос к /chat/completions
func (c *ChatCompletionsClient) GetCompletion(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if !c.IsEnabled() {
		return "", eris.Wrap(ErrNotConfigured, c.name)
	}

	payload := chatCompletionRequest{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", eris.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "%s request failed", c.name)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", eris.Wrap(err, "failed to read response")
	}

	var response chatCompletionResponse
	decodeErr := json.Unmarshal(body, &response)

	if resp.StatusCode != http.StatusOK {
		errorMsg := string(body)
		if decodeErr == nil && response.Error != nil {
			errorMsg = response.Error.Message
		}
		return "", eris.Errorf("%s API returned status %d: %s", c.name, resp.StatusCode, errorMsg)
	}

	if decodeErr != nil {
		return "", eris.Wrap(decodeErr, "failed to decode response")
	}
	if response.Error != nil {
		return "", eris.Errorf("%s API error: %s (type: %s)", c.name, response.Error.Message, response.Error.Type)
	}
	if len(response.Choices) == 0 {
		return "", eris.New("no choices in response")
	}

	return response.Choices[0].Message.Content, nil
}

func (c *ChatCompletionsClient) GetProviderName() string {
	return c.name
}

func (c *ChatCompletionsClient) Models() []string {
	return append([]string(nil), c.models...)
}

func (c *ChatCompletionsClient) IsEnabled() bool {
	return c != nil && c.apiKey != "" && len(c.models) > 0
}
