package classification

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"grupoeconomico/enrichment"
	"grupoeconomico/internal/infrastructure/ai"
	"grupoeconomico/internal/infrastructure/monitoring"
)

// Candidate ответ одного провайдера, представленный арбитру
type Candidate struct {
	Provider   string
	Assignment *GroupAssignment
}

// Arbitrator выбирает между двумя расходящимися ответами провайдеров
// с помощью модели-судьи. При любой ошибке арбитража возвращается ответ
// заранее заданного провайдера.
type Arbitrator struct {
	judge    ai.ProviderClient
	model    string
	fallback string
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewArbitrator создает арбитра. fallback - имя провайдера, чей ответ
// используется при совпадении ответов и при сбое арбитража.
func NewArbitrator(judge ai.ProviderClient, model, fallback string, logger *zap.Logger, metrics *monitoring.Metrics) *Arbitrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" && judge != nil {
		if models := judge.Models(); len(models) > 0 {
			model = models[0]
		}
	}
	return &Arbitrator{
		judge:    judge,
		model:    model,
		fallback: fallback,
		logger:   logger.Named("arbitration"),
		metrics:  metrics,
	}
}

// IsAvailable проверяет, настроен ли судья
func (a *Arbitrator) IsAvailable() bool {
	return a != nil && a.judge != nil && a.judge.IsEnabled() && a.model != ""
}

// Arbitrate возвращает копию ответа одного из кандидатов.
// Группа результата всегда совпадает с группой одного из кандидатов.
func (a *Arbitrator) Arbitrate(ctx context.Context, identity *enrichment.CompanyIdentity, first, second Candidate) *GroupAssignment {
	if foldKey(first.Assignment.GroupName) == foldKey(second.Assignment.GroupName) {
		result := a.preferred(first, second).Assignment.Clone()
		result.ArbitrationNote = "providers agree"
		a.metrics.ObserveArbitration(monitoring.ArbitrationAgreed)
		return result
	}

	chosen, reason, err := a.decide(ctx, identity, first, second)
	if err != nil {
		fallback := a.preferred(first, second)
		a.logger.Warn("Arbitration failed, using fallback provider",
			zap.String("cnpj", identity.CNPJ),
			zap.String("fallback", fallback.Provider),
			zap.Error(err))
		a.metrics.ObserveArbitration(monitoring.ArbitrationFallback)

		result := fallback.Assignment.Clone()
		result.ArbitrationNote = fmt.Sprintf("arbitration failed: %v; fell back to %s", err, fallback.Provider)
		return result
	}

	a.metrics.ObserveArbitration(monitoring.ArbitrationDecided)
	result := chosen.Assignment.Clone()
	result.Method.Kind = MethodArbitrated
	result.ArbitrationNote = fmt.Sprintf("%s chosen", chosen.Provider)
	if reason != "" {
		result.ArbitrationNote += ": " + reason
	}
	return result
}

func (a *Arbitrator) decide(ctx context.Context, identity *enrichment.CompanyIdentity, first, second Candidate) (Candidate, string, error) {
	if !a.IsAvailable() {
		return Candidate{}, "", eris.New("judge is not configured")
	}

	start := time.Now()
	text, err := a.judge.GetCompletion(ctx, a.model, arbitrationSystemPrompt, buildArbitrationPrompt(identity, first, second))
	a.metrics.ObserveProviderCall(a.judge.GetProviderName(), a.model, err == nil, start)
	if err != nil {
		return Candidate{}, "", eris.Wrap(err, "judge call failed")
	}

	decision, err := ParseDecision(text)
	if err != nil {
		return Candidate{}, "", err
	}

	choice := foldKey(decision.Choice)
	switch {
	case matchesProvider(choice, first.Provider):
		return first, decision.Reason, nil
	case matchesProvider(choice, second.Provider):
		return second, decision.Reason, nil
	default:
		return Candidate{}, "", eris.Errorf("judge chose unknown side %q", decision.Choice)
	}
}

// preferred возвращает кандидата провайдера fallback, иначе первого
func (a *Arbitrator) preferred(first, second Candidate) Candidate {
	if a != nil && a.fallback != "" && matchesProvider(foldKey(a.fallback), second.Provider) &&
		!matchesProvider(foldKey(a.fallback), first.Provider) {
		return second
	}
	return first
}

func matchesProvider(choice, provider string) bool {
	return choice != "" && choice == foldKey(provider)
}

