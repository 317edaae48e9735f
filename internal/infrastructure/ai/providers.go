package ai

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNotConfigured у провайдера нет ключа доступа
var ErrNotConfigured = eris.New("provider is not configured")

// ProviderClient интерфейс для всех AI провайдеров
type ProviderClient interface {
	// GetCompletion выполняет один запрос к указанной модели и возвращает текст ответа
	GetCompletion(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
	// GetProviderName возвращает имя провайдера
	GetProviderName() string
	// Models возвращает варианты моделей в порядке предпочтения
	Models() []string
	// IsEnabled проверяет, активен ли провайдер
	IsEnabled() bool
}
