package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"grupoeconomico/internal/container"
	"grupoeconomico/server/handlers"
	"grupoeconomico/server/middleware"
)

// Таймауты HTTP сервера. Запись не ограничена: пакет из сотен строк
// обрабатывается минутами из-за паузы между строками.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Server HTTP сервер классификации
type Server struct {
	container  *container.Container
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer создает сервер и регистрирует маршруты
func NewServer(c *container.Container) *Server {
	logger := c.Logger.Named("server")

	router := gin.New()
	router.MaxMultipartMemory = handlers.MaxUploadSize
	router.Use(
		middleware.GinRequestIDMiddleware(),
		middleware.GinLoggerMiddleware(logger),
		middleware.GinRecoveryMiddleware(logger),
		middleware.GinCORSMiddleware(),
		middleware.GinGzipMiddleware(),
	)
	handlers.RegisterRoutes(router, c, logger)

	return &Server{
		container: c,
		logger:    logger,
		router:    router,
		httpServer: &http.Server{
			Addr:              ":" + c.Config.Port,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Handler возвращает HTTP обработчик сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start запускает сервер и блокируется до отмены ctx или ошибки прослушивания.
// При отмене ctx выполняется плавная остановка.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return eris.Wrapf(err, "failed to listen on %s", s.httpServer.Addr)
	}
	return s.Serve(ctx, listener)
}

// Serve обслуживает запросы на готовом listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", zap.String("addr", listener.Addr().String()))
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	shutdownErr := s.Shutdown()
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server failed")
	}
	return shutdownErr
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return eris.Wrap(err, "server shutdown failed")
	}
	s.logger.Info("Server stopped")
	return nil
}
