package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/contextx"
)

// New builds the process-wide JSON logger tagged with the service name.
func New(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h).With("service", service)
}

func Info(ctx context.Context, logger *slog.Logger, code, msg string) {
	logger.Info(msg, "event", code, "request_id", contextx.GetRequestID(ctx))
}

func Warn(ctx context.Context, logger *slog.Logger, code, msg string) {
	logger.Warn(msg, "event", code, "request_id", contextx.GetRequestID(ctx))
}

func Error(ctx context.Context, logger *slog.Logger, code, msg string, err error) {
	logger.Error(msg, "event", code, "request_id", contextx.GetRequestID(ctx), "error", err)
}

// InfoX and ErrorX log outside of a request scope (startup, background loops).
func InfoX(logger *slog.Logger, code, msg string) {
	logger.Info(msg, "event", code)
}

func ErrorX(logger *slog.Logger, code, msg string, err error) {
	logger.Error(msg, "event", code, "error", err)
}
