// Package service implements the shop's use cases on top of the store. Every
// mutation runs inside one store transaction; events are published after the
// commit and their failures are only logged.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

func requireID(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.InvalidInput(name + " is required")
	}
	return nil
}

func logPublishError(ctx context.Context, logger *slog.Logger, eventName string, err error, attrs ...any) {
	if err == nil {
		return
	}
	args := append([]any{slog.String("event", eventName), slog.String("error", err.Error())}, attrs...)
	logger.ErrorContext(ctx, "failed to publish event", args...)
}
