package classification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"grupoeconomico/enrichment"
	"grupoeconomico/internal/infrastructure/ai"
	"grupoeconomico/internal/infrastructure/monitoring"
)

// ErrUnavailable провайдер не дал пригодного ответа для компании
var ErrUnavailable = eris.New("classification unavailable")

// AIClassifierConfig конфигурация AI классификатора
type AIClassifierConfig struct {
	// AllowUnknownGroups оставляет имя группы, которого нет в таблице.
	// По умолчанию такие ответы сводятся к INDEPENDENTE.
	AllowUnknownGroups bool
	// Research добавляет в промпт указание искать актуальные сведения
	Research bool
}

// AIClassifier классификатор групп через одного AI провайдера
type AIClassifier struct {
	provider ai.ProviderClient
	table    *KnownGroupTable
	config   AIClassifierConfig
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewAIClassifier создает классификатор поверх провайдера
func NewAIClassifier(provider ai.ProviderClient, table *KnownGroupTable, config AIClassifierConfig, logger *zap.Logger, metrics *monitoring.Metrics) *AIClassifier {
	if table == nil {
		table = DefaultGroupTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIClassifier{
		provider: provider,
		table:    table,
		config:   config,
		logger:   logger.Named("classification"),
		metrics:  metrics,
	}
}

// Name возвращает имя провайдера
func (c *AIClassifier) Name() string {
	return c.provider.GetProviderName()
}

// Models возвращает варианты моделей в порядке перебора
func (c *AIClassifier) Models() []string {
	if c.provider == nil {
		return nil
	}
	return c.provider.Models()
}

// IsAvailable проверяет, настроен ли провайдер
func (c *AIClassifier) IsAvailable() bool {
	return c.provider != nil && c.provider.IsEnabled()
}

// Classify запрашивает группу у провайдера, перебирая варианты моделей по порядку.
// Ошибка модели или непригодный ответ переводят к следующей модели.
// Если ни одна модель не ответила, возвращается ErrUnavailable.
func (c *AIClassifier) Classify(ctx context.Context, identity *enrichment.CompanyIdentity) (*GroupAssignment, error) {
	if !c.IsAvailable() {
		return nil, eris.Wrap(ErrUnavailable, "provider is not configured")
	}

	prompt := buildClassificationPrompt(identity, c.table.Names(), c.config.Research)
	name := c.Name()

	var failures []string
	for _, model := range c.provider.Models() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(ErrUnavailable, err.Error())
		}

		start := time.Now()
		text, err := c.provider.GetCompletion(ctx, model, classificationSystemPrompt, prompt)
		if err != nil {
			c.metrics.ObserveProviderCall(name, model, false, start)
			c.logger.Warn("Provider call failed",
				zap.String("provider", name),
				zap.String("model", model),
				zap.String("cnpj", identity.CNPJ),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", model, err))
			continue
		}

		answer, err := ParseGroupAnswer(text)
		c.metrics.ObserveProviderCall(name, model, err == nil, start)
		if err != nil {
			c.logger.Warn("Provider response is not usable",
				zap.String("provider", name),
				zap.String("model", model),
				zap.String("cnpj", identity.CNPJ),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", model, err))
			continue
		}

		return c.toAssignment(answer, model), nil
	}

	if len(failures) == 0 {
		return nil, eris.Wrapf(ErrUnavailable, "%s has no models", name)
	}
	return nil, eris.Wrapf(ErrUnavailable, "%s: %s", name, strings.Join(failures, "; "))
}

func (c *AIClassifier) toAssignment(answer *GroupAnswer, model string) *GroupAssignment {
	assignment := &GroupAssignment{
		Confidence: answer.Confidence,
		Method: Method{
			Kind:     MethodProviderAI,
			Provider: c.Name(),
			Model:    model,
		},
		Rationale: answer.Rationale,
	}

	if canonical, ok := c.table.Canonical(answer.GroupName); ok {
		assignment.GroupName = canonical
		return assignment
	}

	if c.config.AllowUnknownGroups {
		assignment.GroupName = strings.ToUpper(strings.Join(strings.Fields(answer.GroupName), " "))
		return assignment
	}

	assignment.GroupName = Independent
	note := fmt.Sprintf("suggested %q, not a known group", answer.GroupName)
	if assignment.Rationale != "" {
		note += "; " + assignment.Rationale
	}
	assignment.Rationale = note
	return assignment
}
