package presence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/chronopact/internal/application"
)

// ArrivalHandler consumes one arrival event.
type ArrivalHandler func(ctx context.Context, point, userID string)

// Recorder is implemented by oracles that accept occupancy updates from the gateway.
type Recorder interface {
	MarkPresent(ctx context.Context, userID, point string) error
	MarkAbsent(ctx context.Context, userID, point string) error
}

// Listen forwards every arrival at point to handle until the stream closes or
// ctx ends. It returns nil on a clean shutdown.
func Listen(ctx context.Context, oracle application.PresenceOracle, point string, handle ArrivalHandler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "presence_listener", "gathering_point", point)

	arrivals, err := oracle.Arrivals(ctx, point)
	if err != nil {
		return fmt.Errorf("%w: %w", application.ErrPresenceLookup, err)
	}
	logger.Info("listening for arrivals")

	for {
		select {
		case <-ctx.Done():
			return nil
		case userID, ok := <-arrivals:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: arrival stream for %s closed", application.ErrPresenceLookup, point)
			}
			logger.Debug("arrival received", "user_id", userID)
			handle(ctx, point, userID)
		}
	}
}

// Dispatch fans an arrival out to both services.
func Dispatch(appointments *application.AppointmentService, harassments *application.HarassmentService) ArrivalHandler {
	return func(ctx context.Context, point, userID string) {
		if appointments != nil {
			appointments.OnArrival(ctx, point, userID)
		}
		if harassments != nil {
			harassments.OnArrival(ctx, point, userID)
		}
	}
}
