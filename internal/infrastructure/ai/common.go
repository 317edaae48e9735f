package ai

import (
	"net/http"
	"strings"
	"time"
)

// Значения по умолчанию для генерации
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 500
	DefaultTimeout     = 30 * time.Second
)

// newHTTPClient создает HTTP клиент с пулом соединений
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxConnsPerHost:     5,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 5,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// cleanModels убирает пустые и повторяющиеся имена моделей, сохраняя порядок
func cleanModels(models []string) []string {
	seen := make(map[string]bool, len(models))
	result := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		result = append(result, m)
	}
	return result
}
