package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/chronopact/internal/ledger"
)

// Collaborator labels used for failure metrics and logs.
const (
	CollaboratorNotifier = "notifier"
	CollaboratorPresence = "presence"
	CollaboratorInsults  = "insults"
	CollaboratorStats    = "stats"
)

type discardNotifier struct{}

func (discardNotifier) Send(context.Context, string, Message) (string, error) { return "", nil }

type absentPresence struct{}

func (absentPresence) IsPresent(context.Context, string, string) (bool, error) { return false, nil }

func (absentPresence) Arrivals(ctx context.Context, _ string) (<-chan string, error) {
	ch := make(chan string)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

type fallbackInsults struct{}

func (fallbackInsults) Generate(_ context.Context, input InsultContext) (string, error) {
	return fallbackInsult(input), nil
}

type discardStats struct{}

func (discardStats) Append(context.Context, string, ledger.Delta) error { return nil }
func (discardStats) Flush(context.Context) error                      { return nil }

// effects performs the collaborator I/O shared by both services. Every method
// logs and counts failures instead of returning them so one bad call never
// stops sibling processing.
type effects struct {
	notifier Notifier
	presence PresenceOracle
	insults  InsultGenerator
	stats    StatsStore
	metrics  Metrics
}

func newEffects(notifier Notifier, presence PresenceOracle, insults InsultGenerator, stats StatsStore, metrics Metrics) effects {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	if presence == nil {
		presence = absentPresence{}
	}
	if insults == nil {
		insults = fallbackInsults{}
	}
	if stats == nil {
		stats = discardStats{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return effects{notifier: notifier, presence: presence, insults: insults, stats: stats, metrics: metrics}
}

func (e effects) send(ctx context.Context, logger *slog.Logger, channel string, msg Message) (string, bool) {
	ref, err := e.notifier.Send(ctx, channel, msg)
	if err != nil {
		err = wrapCollaborator(err, ErrDelivery)
		e.metrics.ObserveCollaboratorFailure(CollaboratorNotifier)
		logger.WarnContext(ctx, "notification failed", "channel", channel, "error", err, "error_kind", ErrorKind(err))
		return "", false
	}
	return ref, true
}

func (e effects) isPresent(ctx context.Context, logger *slog.Logger, userID, point string) (bool, bool) {
	present, err := e.presence.IsPresent(ctx, userID, point)
	if err != nil {
		err = wrapCollaborator(err, ErrPresenceLookup)
		e.metrics.ObserveCollaboratorFailure(CollaboratorPresence)
		logger.WarnContext(ctx, "presence lookup failed", "user_id", userID, "gathering_point", point, "error", err, "error_kind", ErrorKind(err))
		return false, false
	}
	return present, true
}

// insult never fails: a generator error yields the deterministic fallback text.
func (e effects) insult(ctx context.Context, logger *slog.Logger, input InsultContext) string {
	text, err := e.insults.Generate(ctx, input)
	if err == nil && text != "" {
		return text
	}
	if err == nil {
		err = errors.New("empty completion")
	}
	err = wrapCollaborator(err, ErrGeneration)
	e.metrics.ObserveCollaboratorFailure(CollaboratorInsults)
	logger.WarnContext(ctx, "insult generation failed, using fallback", "error", err, "error_kind", ErrorKind(err))
	return fallbackInsult(input)
}

// persist appends every delta and flushes once for the batch.
func (e effects) persist(ctx context.Context, logger *slog.Logger, deltas []ledger.Delta) {
	if len(deltas) == 0 {
		return
	}
	for _, d := range deltas {
		if err := e.stats.Append(ctx, d.UserID, d); err != nil {
			err = wrapCollaborator(err, ErrStats)
			e.metrics.ObserveCollaboratorFailure(CollaboratorStats)
			logger.ErrorContext(ctx, "failed to append ledger delta", "user_id", d.UserID, "error", err, "error_kind", ErrorKind(err))
		}
	}
	if err := e.stats.Flush(ctx); err != nil {
		err = wrapCollaborator(err, ErrStats)
		e.metrics.ObserveCollaboratorFailure(CollaboratorStats)
		logger.ErrorContext(ctx, "failed to flush stats", "deltas", len(deltas), "error", err, "error_kind", ErrorKind(err))
	}
}

func wrapCollaborator(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
