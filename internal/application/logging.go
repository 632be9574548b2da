package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/chronopact/internal/logging"
	"github.com/example/chronopact/internal/timeexpr"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrNotJoined):
		return "not_joined"
	case errors.Is(err, ErrAppointmentClosed):
		return "appointment_closed"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrPresenceLookup):
		return "presence_lookup"
	case errors.Is(err, ErrStats):
		return "stats"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, timeexpr.ErrInvalidTimeExpression):
		return "invalid_time_expression"
	case errors.Is(err, timeexpr.ErrTimeNotInFuture):
		return "time_not_in_future"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
