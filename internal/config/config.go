package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"grupoeconomico/enrichment"
)

// Имена AI провайдеров в конфигурации
const (
	ProviderPerplexity = "perplexity"
	ProviderGemini     = "gemini"
)

// Config конфигурация приложения
type Config struct {
	// Сервер
	Port string `yaml:"port" json:"port"`

	// Логирование
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Пакетная обработка
	BatchPause time.Duration `yaml:"batch_pause" json:"batch_pause"`
	CNPJColumn string        `yaml:"cnpj_column" json:"cnpj_column"`

	// Сервисы реестра CNPJ
	Registry RegistryConfig `yaml:"registry" json:"registry"`

	// AI провайдеры
	Gemini     GeminiConfig     `yaml:"gemini" json:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" json:"perplexity"`

	Classification ClassificationConfig `yaml:"classification" json:"classification"`
}

// RegistryConfig настройки сервисов реестра по имени сервиса.
// Значения из YAML накладываются на уже заданные поле за полем.
type RegistryConfig map[string]*enrichment.EnricherConfig

type registryOverride struct {
	BaseURL     *string        `yaml:"base_url"`
	Timeout     *time.Duration `yaml:"timeout"`
	MaxRequests *int           `yaml:"max_requests"`
	Enabled     *bool          `yaml:"enabled"`
	Priority    *int           `yaml:"priority"`
}

// UnmarshalYAML реализует yaml.Unmarshaler
func (r *RegistryConfig) UnmarshalYAML(value *yaml.Node) error {
	var overrides map[string]registryOverride
	if err := value.Decode(&overrides); err != nil {
		return err
	}

	merged := make(RegistryConfig, len(*r)+len(overrides))
	for name, service := range *r {
		if service != nil {
			copied := *service
			merged[name] = &copied
		}
	}

	for name, o := range overrides {
		service, ok := merged[name]
		if !ok {
			service = &enrichment.EnricherConfig{}
			merged[name] = service
		}
		if o.BaseURL != nil {
			service.BaseURL = *o.BaseURL
		}
		if o.Timeout != nil {
			service.Timeout = *o.Timeout
		}
		if o.MaxRequests != nil {
			service.MaxRequests = *o.MaxRequests
		}
		if o.Enabled != nil {
			service.Enabled = *o.Enabled
		}
		if o.Priority != nil {
			service.Priority = *o.Priority
		}
	}

	*r = merged
	return nil
}

// GeminiConfig конфигурация Gemini
type GeminiConfig struct {
	APIKey     string        `yaml:"api_key" json:"-"`
	Models     []string      `yaml:"models" json:"models"`
	JudgeModel string        `yaml:"judge_model" json:"judge_model"`
	BaseURL    string        `yaml:"base_url" json:"base_url,omitempty"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// PerplexityConfig конфигурация Perplexity
type PerplexityConfig struct {
	APIKey  string        `yaml:"api_key" json:"-"`
	Models  []string      `yaml:"models" json:"models"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ClassificationConfig конфигурация каскада классификации
type ClassificationConfig struct {
	ProviderOrder       []string `yaml:"provider_order" json:"provider_order"`
	ArbitrationEnabled  bool     `yaml:"arbitration_enabled" json:"arbitration_enabled"`
	ArbitrationFallback string   `yaml:"arbitration_fallback" json:"arbitration_fallback"`
	AllowUnknownGroups  bool     `yaml:"allow_unknown_groups" json:"allow_unknown_groups"`
	GroupsFile          string   `yaml:"groups_file" json:"groups_file,omitempty"`
}

// GetDefaults возвращает конфигурацию со значениями по умолчанию
func GetDefaults() *Config {
	return &Config{
		Port:       "9999",
		LogLevel:   "info",
		LogFormat:  "json",
		BatchPause: 2 * time.Second,
		Registry: map[string]*enrichment.EnricherConfig{
			enrichment.ServiceReceitaWS: {
				BaseURL:  "https://www.receitaws.com.br",
				Timeout:  10 * time.Second,
				Enabled:  true,
				Priority: 1,
			},
			enrichment.ServiceBrasilAPI: {
				BaseURL:  "https://brasilapi.com.br",
				Timeout:  10 * time.Second,
				Enabled:  true,
				Priority: 2,
			},
		},
		Gemini: GeminiConfig{
			Models:     []string{"gemini-2.0-flash-exp", "gemini-1.5-flash", "gemini-1.5-pro"},
			JudgeModel: "gemini-2.0-flash-exp",
			Timeout:    30 * time.Second,
		},
		Perplexity: PerplexityConfig{
			Models:  []string{"llama-3.1-sonar-large-128k-online"},
			BaseURL: "https://api.perplexity.ai",
			Timeout: 30 * time.Second,
		},
		Classification: ClassificationConfig{
			ProviderOrder:       []string{ProviderPerplexity, ProviderGemini},
			ArbitrationEnabled:  true,
			ArbitrationFallback: ProviderGemini,
		},
	}
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем YAML файл
// (если path не пустой), затем переменные окружения.
func LoadConfig(path string) (*Config, error) {
	config := GetDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, eris.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid config")
	}

	return config, nil
}

// applyEnv переопределяет значения из переменных окружения
func (c *Config) applyEnv() {
	c.Port = getEnv("SERVER_PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.BatchPause = getEnvDuration("BATCH_PAUSE", c.BatchPause)
	c.CNPJColumn = getEnv("CNPJ_COLUMN", c.CNPJColumn)

	if c.Registry == nil {
		c.Registry = make(map[string]*enrichment.EnricherConfig)
	}
	for name, prefix := range map[string]string{
		enrichment.ServiceReceitaWS: "RECEITAWS",
		enrichment.ServiceBrasilAPI: "BRASILAPI",
	} {
		service, ok := c.Registry[name]
		if !ok || service == nil {
			service = &enrichment.EnricherConfig{}
			c.Registry[name] = service
		}
		service.BaseURL = getEnv(prefix+"_BASE_URL", service.BaseURL)
		service.Timeout = getEnvDuration(prefix+"_TIMEOUT", service.Timeout)
		service.Enabled = getEnvBool(prefix+"_ENABLED", service.Enabled)
		service.MaxRequests = getEnvInt(prefix+"_RATE_PER_MINUTE", service.MaxRequests)
		service.Priority = getEnvInt(prefix+"_PRIORITY", service.Priority)
	}

	c.Gemini.APIKey = getEnv("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.Models = getEnvList("GEMINI_MODELS", c.Gemini.Models)
	c.Gemini.JudgeModel = getEnv("GEMINI_JUDGE_MODEL", c.Gemini.JudgeModel)
	c.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.Gemini.Timeout = getEnvDuration("GEMINI_TIMEOUT", c.Gemini.Timeout)

	c.Perplexity.APIKey = getEnv("PERPLEXITY_API_KEY", c.Perplexity.APIKey)
	c.Perplexity.Models = getEnvList("PERPLEXITY_MODELS", c.Perplexity.Models)
	c.Perplexity.BaseURL = getEnv("PERPLEXITY_BASE_URL", c.Perplexity.BaseURL)
	c.Perplexity.Timeout = getEnvDuration("PERPLEXITY_TIMEOUT", c.Perplexity.Timeout)

	c.Classification.ProviderOrder = getEnvList("AI_PROVIDER_ORDER", c.Classification.ProviderOrder)
	c.Classification.ArbitrationEnabled = getEnvBool("ARBITRATION_ENABLED", c.Classification.ArbitrationEnabled)
	c.Classification.ArbitrationFallback = getEnv("ARBITRATION_FALLBACK", c.Classification.ArbitrationFallback)
	c.Classification.AllowUnknownGroups = getEnvBool("ALLOW_UNKNOWN_GROUPS", c.Classification.AllowUnknownGroups)
	c.Classification.GroupsFile = getEnv("GROUPS_FILE", c.Classification.GroupsFile)
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool получает переменную окружения как bool или возвращает значение по умолчанию
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как Duration или возвращает значение по умолчанию
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList получает список через запятую
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
