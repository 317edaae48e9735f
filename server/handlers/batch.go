package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"grupoeconomico/exporter"
	"grupoeconomico/importer"
	"grupoeconomico/internal/container"
	"grupoeconomico/pipeline"
	apperrors "grupoeconomico/server/errors"
	"grupoeconomico/server/middleware"
)

// MaxUploadSize максимальный размер загружаемой таблицы
const MaxUploadSize = 32 << 20

// Заголовки ответа с итогами пакета
const (
	HeaderBatchID        = "X-Batch-ID"
	HeaderBatchTotal     = "X-Batch-Total"
	HeaderBatchSucceeded = "X-Batch-Succeeded"
	HeaderBatchFailed    = "X-Batch-Failed"
)

// BatchHandler принимает таблицы и возвращает результат классификации.
// Одновременно выполняется только один пакет. Остальные запросы ждут
// его завершения или отмены клиентом, а с wait=false сразу получают 409.
type BatchHandler struct {
	container *container.Container
	batches   *semaphore.Weighted
	logger    *zap.Logger
	now       func() time.Time
}

// NewBatchHandler создает обработчик пакетов
func NewBatchHandler(c *container.Container, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{
		container: c,
		batches:   semaphore.NewWeighted(1),
		logger:    logger.Named("batches"),
		now:       time.Now,
	}
}

// ProcessBatch обрабатывает POST /api/v1/batches
// Поля формы: file (обязательно), column, format (xlsx|csv|json), wait (true|false).
func (h *BatchHandler) ProcessBatch(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.logger.With(zap.String("request_id", middleware.GetRequestID(ctx)))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		SendJSONError(c, logger, apperrors.NewValidationError("file is required", err))
		return
	}
	if fileHeader.Size > MaxUploadSize {
		SendJSONError(c, logger, apperrors.NewRequestTooLargeError(
			fmt.Sprintf("file exceeds %d bytes", MaxUploadSize), nil))
		return
	}

	format, err := exporter.ParseFormat(c.PostForm("format"))
	if err != nil {
		SendJSONError(c, logger, apperrors.NewValidationError(err.Error(), err))
		return
	}

	wait := true
	if raw := c.PostForm("wait"); raw != "" {
		if wait, err = strconv.ParseBool(raw); err != nil {
			SendJSONError(c, logger, apperrors.NewValidationError("wait must be true or false", err))
			return
		}
	}

	column := c.PostForm("column")
	if column == "" {
		column = h.container.Config.CNPJColumn
	}

	file, err := fileHeader.Open()
	if err != nil {
		SendJSONError(c, logger, apperrors.NewValidationError("failed to read uploaded file", err))
		return
	}
	defer file.Close()

	table, err := importer.ParseReader(fileHeader.Filename, file)
	if err != nil {
		SendJSONError(c, logger, apperrors.NewValidationError("unreadable spreadsheet", err).WithContext(fileHeader.Filename))
		return
	}

	if err := h.acquire(ctx, wait); err != nil {
		SendJSONError(c, logger, err)
		return
	}
	defer h.batches.Release(1)

	orchestrator, err := h.container.NewOrchestrator(pipeline.NewLogReporter(logger))
	if err != nil {
		SendJSONError(c, logger, apperrors.NewInternalError("failed to create orchestrator", err))
		return
	}

	logger.Info("Batch accepted",
		zap.String("file", fileHeader.Filename),
		zap.Int("rows", table.Len()),
		zap.String("format", string(format)))

	result, err := orchestrator.Run(ctx, table, column)
	if err != nil {
		SendJSONError(c, logger, batchError(err))
		return
	}

	var buf bytes.Buffer
	if err := exporter.Write(&buf, result, format); err != nil {
		SendJSONError(c, logger, apperrors.WrapError(err, "failed to write result"))
		return
	}

	c.Header(HeaderBatchID, result.ID)
	c.Header(HeaderBatchTotal, strconv.Itoa(result.Summary.Total))
	c.Header(HeaderBatchSucceeded, strconv.Itoa(result.Summary.Succeeded))
	c.Header(HeaderBatchFailed, strconv.Itoa(result.Summary.Failed))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exporter.FileName(h.now(), format)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *BatchHandler) acquire(ctx context.Context, wait bool) error {
	if !wait {
		if !h.batches.TryAcquire(1) {
			return apperrors.NewConflictError("another batch is running", nil)
		}
		return nil
	}
	if err := h.batches.Acquire(ctx, 1); err != nil {
		return apperrors.NewServiceUnavailableError("request canceled while waiting for the running batch", err)
	}
	return nil
}

func batchError(err error) error {
	switch {
	case errors.Is(err, importer.ErrColumnNotFound), errors.Is(err, importer.ErrEmptyWorkbook):
		return apperrors.NewValidationError(err.Error(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewServiceUnavailableError("batch canceled", err)
	default:
		return apperrors.WrapError(err, "batch failed")
	}
}
