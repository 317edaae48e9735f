package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Validate проверяет корректность конфигурации.
// Отсутствие ключей провайдеров ошибкой не считается: провайдер просто отключается.
func (c *Config) Validate() error {
	var errors []string

	// Валидация порта
	if c.Port == "" {
		errors = append(errors, "port is required")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("invalid port: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("port must be between 1 and 65535, got %d", port))
		}
	}

	// Валидация уровня логирования
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if c.LogLevel != "" && !containsFold(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level: %s (valid: %s)",
			c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	validFormats := []string{"json", "console"}
	if c.LogFormat != "" && !containsFold(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format: %s (valid: %s)",
			c.LogFormat, strings.Join(validFormats, ", ")))
	}

	if c.BatchPause < 0 {
		errors = append(errors, "batch pause cannot be negative")
	}

	// Валидация сервисов реестра
	enabled := 0
	for name, service := range c.Registry {
		if service == nil {
			errors = append(errors, fmt.Sprintf("registry service %s is nil", name))
			continue
		}
		if !service.Enabled {
			continue
		}
		enabled++
		if service.BaseURL == "" {
			errors = append(errors, fmt.Sprintf("registry service %s base url is required", name))
		}
		if service.Timeout < time.Second {
			errors = append(errors, fmt.Sprintf("registry service %s timeout must be at least 1 second", name))
		}
		if service.MaxRequests < 0 {
			errors = append(errors, fmt.Sprintf("registry service %s rate cannot be negative", name))
		}
	}
	if enabled == 0 {
		errors = append(errors, "at least one registry service must be enabled")
	}

	// Валидация AI провайдеров
	if c.Gemini.Timeout < time.Second {
		errors = append(errors, "gemini timeout must be at least 1 second")
	}
	if len(c.Gemini.Models) == 0 {
		errors = append(errors, "gemini models list is empty")
	}
	if c.Perplexity.Timeout < time.Second {
		errors = append(errors, "perplexity timeout must be at least 1 second")
	}
	if len(c.Perplexity.Models) == 0 {
		errors = append(errors, "perplexity models list is empty")
	}

	// Валидация каскада
	validProviders := []string{ProviderPerplexity, ProviderGemini}
	seen := make(map[string]bool)
	for _, p := range c.Classification.ProviderOrder {
		key := strings.ToLower(strings.TrimSpace(p))
		if !containsFold(validProviders, key) {
			errors = append(errors, fmt.Sprintf("unknown provider in order: %s (valid: %s)",
				p, strings.Join(validProviders, ", ")))
			continue
		}
		if seen[key] {
			errors = append(errors, fmt.Sprintf("duplicate provider in order: %s", p))
		}
		seen[key] = true
	}
	if c.Classification.ArbitrationEnabled && !containsFold(validProviders, c.Classification.ArbitrationFallback) {
		errors = append(errors, fmt.Sprintf("invalid arbitration fallback: %s (valid: %s)",
			c.Classification.ArbitrationFallback, strings.Join(validProviders, ", ")))
	}

	if len(errors) > 0 {
		return eris.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// ProviderStatus состояние AI провайдера для отчета
type ProviderStatus struct {
	Name       string   `json:"name"`
	Configured bool     `json:"configured"`
	Models     []string `json:"models"`
}

// Providers возвращает провайдеров в порядке опроса с признаком наличия ключа
func (c *Config) Providers() []ProviderStatus {
	var result []ProviderStatus
	for _, name := range c.Classification.ProviderOrder {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ProviderPerplexity:
			result = append(result, ProviderStatus{Name: ProviderPerplexity, Configured: c.Perplexity.APIKey != "", Models: c.Perplexity.Models})
		case ProviderGemini:
			result = append(result, ProviderStatus{Name: ProviderGemini, Configured: c.Gemini.APIKey != "", Models: c.Gemini.Models})
		}
	}
	return result
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
