package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "grupoeconomico/server/errors"
	"grupoeconomico/server/middleware"
)

// JSONResponse стандартная структура JSON ответа
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// SendJSONResponse отправляет JSON ответ в стандартной обертке
func SendJSONResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, JSONResponse{
		Success:   statusCode >= 200 && statusCode < 300,
		Data:      data,
		RequestID: middleware.GetRequestIDFromGin(c),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// SendJSONSuccess отправляет успешный ответ с сообщением
func SendJSONSuccess(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, JSONResponse{
		Success:   true,
		Data:      data,
		Message:   message,
		RequestID: middleware.GetRequestIDFromGin(c),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// SendJSONError отправляет JSON ошибку и логирует её.
// AppError задает статус и сообщение, прочие ошибки считаются внутренними.
func SendJSONError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("unhandled error", err)
	}
	reqID := middleware.GetRequestIDFromGin(c)

	if logger != nil {
		logger.Error("HTTP error",
			zap.Error(appErr.Unwrap()),
			zap.String("user_message", appErr.UserMessage()),
			zap.String("context", appErr.GetContext()),
			zap.Int("status_code", appErr.StatusCode()),
			zap.String("request_id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
	}

	_ = c.Error(appErr)
	c.AbortWithStatusJSON(appErr.StatusCode(), JSONResponse{
		Success:   false,
		Error:     appErr.UserMessage(),
		Message:   appErr.UserMessage(),
		RequestID: reqID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
