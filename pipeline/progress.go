package pipeline

import "go.uber.org/zap"

// ProgressReporter получает события по строкам пакета. Индексы начинаются с 1.
type ProgressReporter interface {
	RowStarted(index, total int, rawCNPJ string)
	RowFinished(index, total int, record *BatchRecord)
}

// LogReporter пишет прогресс в лог
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter создает репортер поверх логгера
func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger.Named("progress")}
}

func (r *LogReporter) RowStarted(index, total int, rawCNPJ string) {
	r.logger.Info("Processing row",
		zap.Int("row", index),
		zap.Int("total", total),
		zap.String("cnpj", rawCNPJ))
}

func (r *LogReporter) RowFinished(index, total int, record *BatchRecord) {
	if !record.Succeeded() {
		r.logger.Info("Row failed",
			zap.Int("row", index),
			zap.Int("total", total),
			zap.String("error", record.Error))
		return
	}
	r.logger.Info("Row classified",
		zap.Int("row", index),
		zap.Int("total", total),
		zap.String("group", record.Assignment.GroupName),
		zap.Int("confidence", record.Assignment.Confidence))
}

type nopReporter struct{}

func (nopReporter) RowStarted(int, int, string)        {}
func (nopReporter) RowFinished(int, int, *BatchRecord) {}
