package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"grupoeconomico/classification"
	"grupoeconomico/enrichment"
	"grupoeconomico/importer"
	"grupoeconomico/internal/infrastructure/monitoring"
)

// DefaultPause пауза между строками
const DefaultPause = 2 * time.Second

// IdentityLookup поиск данных компании по CNPJ
type IdentityLookup interface {
	Lookup(ctx context.Context, raw string) (*enrichment.CompanyIdentity, error)
}

// RuleClassifier классификация без внешних вызовов
type RuleClassifier interface {
	Classify(identity *enrichment.CompanyIdentity) (*classification.GroupAssignment, bool)
}

// ProviderClassifier классификация через AI провайдера
type ProviderClassifier interface {
	Name() string
	IsAvailable() bool
	Classify(ctx context.Context, identity *enrichment.CompanyIdentity) (*classification.GroupAssignment, error)
}

// Arbiter выбор между двумя ответами провайдеров
type Arbiter interface {
	IsAvailable() bool
	Arbitrate(ctx context.Context, identity *enrichment.CompanyIdentity, first, second classification.Candidate) *classification.GroupAssignment
}

// Config зависимости оркестратора
type Config struct {
	Lookup IdentityLookup
	Rules  RuleClassifier
	// Providers в порядке приоритета
	Providers []ProviderClassifier
	// Arbitrator nil или недоступный арбитр: используется первый ответивший провайдер
	Arbitrator Arbiter
	// Pause между строками; 0 отключает паузу
	Pause    time.Duration
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	Progress ProgressReporter
}

// Orchestrator обрабатывает таблицу строго последовательно, строка за строкой
type Orchestrator struct {
	config Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	newID  func() string
}

// NewOrchestrator создает оркестратор
func NewOrchestrator(config Config) (*Orchestrator, error) {
	if config.Lookup == nil {
		return nil, eris.New("registry lookup is required")
	}
	if config.Rules == nil {
		config.Rules = classification.NewKeywordClassifier(nil)
	}
	if config.Progress == nil {
		config.Progress = nopReporter{}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		config: config,
		logger: logger.Named("pipeline"),
		sleep:  sleepContext,
		newID:  uuid.NewString,
	}, nil
}

// Run обрабатывает все строки таблицы. column - имя колонки с CNPJ,
// пустое значение включает автоопределение.
// Ошибки строк попадают в записи; ошибка возвращается только когда пакет
// прерван целиком (колонка не найдена, отмена контекста), и тогда
// частичный результат не возвращается.
func (o *Orchestrator) Run(ctx context.Context, table *importer.Table, column string) (*BatchResult, error) {
	if table == nil {
		return nil, eris.Wrap(importer.ErrEmptyWorkbook, "no table")
	}
	col, err := table.ResolveColumn(column)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		ID:           o.newID(),
		StartedAt:    time.Now(),
		InputHeaders: append([]string(nil), table.Headers...),
		Records:      make([]*BatchRecord, 0, table.Len()),
	}
	logger := o.logger.With(zap.String("batch_id", result.ID))
	logger.Info("Batch started",
		zap.Int("rows", table.Len()),
		zap.String("column", table.Headers[col]))

	total := table.Len()
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			logger.Error("Batch aborted", zap.Int("row", i+1), zap.Error(err))
			return nil, eris.Wrap(err, "batch aborted")
		}

		raw := cell(row, col)
		o.config.Progress.RowStarted(i+1, total, raw)
		record := o.processRow(ctx, logger, i+1, raw, table.Headers, row)
		if err := ctx.Err(); err != nil {
			logger.Error("Batch aborted", zap.Int("row", i+1), zap.Error(err))
			return nil, eris.Wrap(err, "batch aborted")
		}
		result.Records = append(result.Records, record)
		o.config.Progress.RowFinished(i+1, total, record)

		if i < total-1 && o.config.Pause > 0 {
			if err := o.sleep(ctx, o.config.Pause); err != nil {
				logger.Error("Batch aborted", zap.Int("row", i+1), zap.Error(err))
				return nil, eris.Wrap(err, "batch aborted")
			}
		}
	}

	result.FinishedAt = time.Now()
	result.Summary = Summarize(result.Records)
	o.config.Metrics.ObserveBatch(result.StartedAt)

	logger.Info("Batch finished",
		zap.Int("total", result.Summary.Total),
		zap.Int("succeeded", result.Summary.Succeeded),
		zap.Int("failed", result.Summary.Failed),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

// processRow проходит каскад для одной строки. Паника внутри строки
// превращается в ошибку этой строки.
func (o *Orchestrator) processRow(ctx context.Context, logger *zap.Logger, index int, raw string, headers, row []string) (record *BatchRecord) {
	start := time.Now()
	record = &BatchRecord{
		Row:      index,
		RawCNPJ:  strings.TrimSpace(raw),
		Original: make([]Column, len(headers)),
	}
	for j, h := range headers {
		record.Original[j] = Column{Name: h, Value: cell(row, j)}
	}

	defer func() {
		if r := recover(); r != nil {
			record.Identity = nil
			record.Assignment = nil
			record.Error = fmt.Sprintf("%s: %v", errMsgProcessingFailed, r)
			o.config.Metrics.ObserveRow(monitoring.RowFailed)
			logger.Error("Row processing panicked", zap.Int("row", index), zap.Any("panic", r))
		}
		record.Duration = time.Since(start)
	}()

	cnpj := enrichment.NormalizeCNPJ(raw)
	if !enrichment.ValidateCNPJ(cnpj) {
		record.Error = ErrMsgInvalidIdentifier
		o.config.Metrics.ObserveRow(monitoring.RowInvalid)
		logger.Info("Invalid identifier", zap.Int("row", index), zap.String("cnpj", record.RawCNPJ))
		return record
	}
	record.CNPJ = cnpj

	identity, err := o.config.Lookup.Lookup(ctx, cnpj)
	if err != nil {
		record.Error = ErrMsgDataNotFound
		o.config.Metrics.ObserveRow(monitoring.RowNotFound)
		logger.Info("Company data not found", zap.Int("row", index), zap.String("cnpj", cnpj), zap.Error(err))
		return record
	}

	assignment := o.Classify(ctx, identity)
	record.Identity = identity
	record.Assignment = assignment
	o.config.Metrics.ObserveRow(monitoring.RowClassified)
	o.config.Metrics.ObserveClassification(assignment.Method.Kind.String())

	logger.Info("Row processed",
		zap.Int("row", index),
		zap.String("cnpj", cnpj),
		zap.String("method", assignment.Method.String()),
		zap.String("group", assignment.GroupName),
		zap.Int("confidence", assignment.Confidence),
		zap.Duration("duration", time.Since(start)))

	return record
}

// Classify применяет каскад к данным компании: правила, провайдеры по
// приоритету, арбитраж и значение по умолчанию. Всегда возвращает результат.
func (o *Orchestrator) Classify(ctx context.Context, identity *enrichment.CompanyIdentity) *classification.GroupAssignment {
	if assignment, ok := o.config.Rules.Classify(identity); ok {
		return assignment
	}

	arbitrate := o.config.Arbitrator != nil && o.config.Arbitrator.IsAvailable()

	var candidates []classification.Candidate
	for _, provider := range o.config.Providers {
		if !provider.IsAvailable() {
			continue
		}

		assignment, err := provider.Classify(ctx, identity)
		if err != nil {
			o.logger.Warn("Provider unavailable",
				zap.String("provider", provider.Name()),
				zap.String("cnpj", identity.CNPJ),
				zap.Error(err))
			continue
		}

		candidates = append(candidates, classification.Candidate{Provider: provider.Name(), Assignment: assignment})
		if !arbitrate || len(candidates) == 2 {
			break
		}
	}

	switch len(candidates) {
	case 0:
		return classification.DefaultAssignment()
	case 1:
		return candidates[0].Assignment
	default:
		return o.config.Arbitrator.Arbitrate(ctx, identity, candidates[0], candidates[1])
	}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// sleepContext ждет d или отмены контекста
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
