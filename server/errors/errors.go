package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError ошибка HTTP обработчика: статус, сообщение для клиента и причина для логов
type AppError struct {
	Code    int    `json:"status_code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Context string `json:"-"` // имя файла, маршрут и т.п.
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// StatusCode HTTP статус ответа
func (e *AppError) StatusCode() int { return e.Code }

// UserMessage сообщение, которое уходит клиенту
func (e *AppError) UserMessage() string { return e.Message }

// GetContext контекст ошибки для логов
func (e *AppError) GetContext() string { return e.Context }

// WithContext задает контекст и возвращает ту же ошибку
func (e *AppError) WithContext(context string) *AppError {
	e.Context = context
	return e
}

func newAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewValidationError 400: запрос или загруженная таблица некорректны
func NewValidationError(message string, err error) *AppError {
	return newAppError(http.StatusBadRequest, message, err)
}

// NewNotFoundError 404: маршрут не найден
func NewNotFoundError(message string, err error) *AppError {
	return newAppError(http.StatusNotFound, message, err)
}

// NewConflictError 409: другой пакет уже выполняется, а клиент не хочет ждать
func NewConflictError(message string, err error) *AppError {
	return newAppError(http.StatusConflict, message, err)
}

// NewRequestTooLargeError 413: файл больше допустимого размера
func NewRequestTooLargeError(message string, err error) *AppError {
	return newAppError(http.StatusRequestEntityTooLarge, message, err)
}

// NewServiceUnavailableError 503: пакет отменен до или во время выполнения
func NewServiceUnavailableError(message string, err error) *AppError {
	return newAppError(http.StatusServiceUnavailable, message, err)
}

// NewInternalError 500. Клиент получает общее сообщение, message остается в логах.
func NewInternalError(message string, err error) *AppError {
	return newAppError(http.StatusInternalServerError, "internal server error",
		errors.Join(errors.New(message), err))
}

// WrapError дополняет сообщение AppError префиксом, сохраняя статус.
// Любая другая ошибка становится внутренней.
func WrapError(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return NewInternalError(message, err)
	}
	wrapped := newAppError(appErr.Code, message+": "+appErr.Message, appErr.Err)
	wrapped.Context = appErr.Context
	return wrapped
}
