package services

import (
	"context"
	"log/slog"

	"github.com/SscSPs/movement_intake/internal/middleware"
)

// BaseService gives services the request-scoped logger.
type BaseService struct{}

// GetLogger returns the logger carried by ctx, or slog.Default().
func (s *BaseService) GetLogger(ctx context.Context) *slog.Logger {
	return middleware.GetLoggerFromCtx(ctx)
}

// LogError logs err under msg together with keyvals.
func (s *BaseService) LogError(ctx context.Context, err error, msg string, keyvals ...any) {
	s.GetLogger(ctx).Error(msg, append([]any{slog.String("error", err.Error())}, keyvals...)...)
}

// LogWarn logs a recoverable problem, typically a user-correctable one.
func (s *BaseService) LogWarn(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Warn(msg, keyvals...)
}

func (s *BaseService) LogInfo(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Info(msg, keyvals...)
}

func (s *BaseService) LogDebug(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Debug(msg, keyvals...)
}
