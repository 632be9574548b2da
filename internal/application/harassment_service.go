package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultHarassIntervalMinutes is the insult cadence when none is requested.
const DefaultHarassIntervalMinutes = 2

// HarassmentServiceDeps groups the collaborators of HarassmentService.
type HarassmentServiceDeps struct {
	Registry        *Registry
	Notifier        Notifier
	Presence        PresenceOracle
	Insults         InsultGenerator
	Stats           StatsStore
	Metrics         Metrics
	Logger          *slog.Logger
	IDGenerator     func() string
	Now             func() time.Time
	DefaultInterval int
}

// HarassmentService manages single-target harassment sessions.
type HarassmentService struct {
	registry        *Registry
	fx              effects
	logger          *slog.Logger
	idGenerator     func() string
	now             func() time.Time
	defaultInterval int
}

// HarassmentTickReport summarises one OnTick pass.
type HarassmentTickReport struct {
	Processed int
	Insults   int
	Ended     int
}

// NewHarassmentService wires dependencies for harassment operations.
func NewHarassmentService(deps HarassmentServiceDeps) *HarassmentService {
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry(0)
	}
	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	interval := deps.DefaultInterval
	if interval <= 0 {
		interval = DefaultHarassIntervalMinutes
	}
	return &HarassmentService{
		registry:        registry,
		fx:              newEffects(deps.Notifier, deps.Presence, deps.Insults, deps.Stats, deps.Metrics),
		logger:          defaultLogger(deps.Logger),
		idGenerator:     idGenerator,
		now:             now,
		defaultInterval: interval,
	}
}

func (s *HarassmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "HarassmentService", operation, attrs...)
}

// Start opens a session for params.TargetID. It fails with ErrAlreadyActive when
// the target already has a session running.
func (s *HarassmentService) Start(ctx context.Context, params StartHarassmentParams) (HarassmentSnapshot, error) {
	if s == nil {
		return HarassmentSnapshot{}, fmt.Errorf("HarassmentService is nil")
	}
	params.TargetID = strings.TrimSpace(params.TargetID)
	params.GatheringPoint = strings.TrimSpace(params.GatheringPoint)
	params.Channel = strings.TrimSpace(params.Channel)
	logger := s.loggerWith(ctx, "Start", "target_id", params.TargetID)

	vErr := &ValidationError{}
	if params.TargetID == "" {
		vErr.add("target_id", "target is required")
	}
	if params.GatheringPoint == "" {
		vErr.add("gathering_point", "gathering point is required")
	}
	if params.Channel == "" {
		vErr.add("channel", "channel is required")
	}
	if params.IntervalMinutes < 0 {
		vErr.add("interval_minutes", "interval must be positive")
	}
	if vErr.HasErrors() {
		return HarassmentSnapshot{}, vErr
	}
	if params.IntervalMinutes == 0 {
		params.IntervalMinutes = s.defaultInterval
	}

	session := newHarassmentSession(s.idGenerator(), params, waitingSet(params.TargetID, params.WaitingUserIDs), s.now())
	if err := s.registry.startSession(session); err != nil {
		logger.InfoContext(ctx, "harassment rejected", "error", err, "error_kind", ErrorKind(err))
		return HarassmentSnapshot{}, err
	}

	snap := session.Snapshot()
	s.fx.metrics.ObserveTransition(TransitionHarassStarted)
	s.fx.send(ctx, logger, snap.Channel, harassmentStartMessage(snap))
	logger.InfoContext(ctx, "harassment started", "session_id", snap.ID, "waiting", len(snap.WaitingUserIDs), "interval_minutes", snap.IntervalMinutes)
	return snap, nil
}

// waitingSet drops blanks, duplicates and the target, keeping first-seen order.
func waitingSet(target string, users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, user := range users {
		user = strings.TrimSpace(user)
		if user == "" || user == target {
			continue
		}
		if _, dup := seen[user]; dup {
			continue
		}
		seen[user] = struct{}{}
		out = append(out, user)
	}
	return out
}

// Get returns the active session for target.
func (s *HarassmentService) Get(ctx context.Context, target string) (HarassmentSnapshot, error) {
	session, ok := s.registry.Session(target)
	if !ok {
		return HarassmentSnapshot{}, ErrNotFound
	}
	return session.Snapshot(), nil
}

// List returns active sessions followed by the retained history, newest last.
func (s *HarassmentService) List(ctx context.Context) (active, ended []HarassmentSnapshot) {
	for _, session := range s.registry.Sessions() {
		active = append(active, session.Snapshot())
	}
	for _, session := range s.registry.History() {
		ended = append(ended, session.Snapshot())
	}
	return active, ended
}

// OnTick checks every active target for arrival and sends due insults.
func (s *HarassmentService) OnTick(ctx context.Context) HarassmentTickReport {
	var report HarassmentTickReport
	for _, session := range s.registry.Sessions() {
		if ctx.Err() != nil {
			break
		}
		report.Processed++
		logger := s.loggerWith(ctx, "OnTick", "target_id", session.target, "session_id", session.id)

		if present, ok := s.fx.isPresent(ctx, logger, session.target, session.gatheringPoint); ok && present {
			if s.finish(ctx, logger, session, EndReasonTargetArrived) {
				report.Ended++
			}
			continue
		}

		elapsed, due := session.dueInsult(s.now())
		if !due {
			continue
		}
		text := s.fx.insult(ctx, logger, InsultContext{
			SubjectNames:   []string{mention(session.target)},
			ElapsedMinutes: elapsed,
		})
		s.fx.metrics.ObserveTransition(TransitionHarassInsult)
		if _, ok := s.fx.send(ctx, logger, session.channel, insultMessage(session.target, elapsed, text)); ok {
			report.Insults++
		}
	}
	return report
}

// OnArrival ends the session of userID when they arrive at its gathering point.
func (s *HarassmentService) OnArrival(ctx context.Context, gatheringPoint, userID string) bool {
	session, ok := s.registry.Session(userID)
	if !ok || session.gatheringPoint != gatheringPoint {
		return false
	}
	logger := s.loggerWith(ctx, "OnArrival", "target_id", userID, "session_id", session.id)
	return s.finish(ctx, logger, session, EndReasonTargetArrived)
}

// GiveUp ends the session for target on behalf of one of its waiting users.
func (s *HarassmentService) GiveUp(ctx context.Context, target, requester string) (HarassmentSnapshot, error) {
	logger := s.loggerWith(ctx, "GiveUp", "target_id", target, "user_id", requester)
	session, ok := s.registry.Session(target)
	if !ok {
		return HarassmentSnapshot{}, ErrNotFound
	}
	if !session.isWaiting(requester) {
		logger.InfoContext(ctx, "give-up rejected", "error", ErrUnauthorized, "error_kind", ErrorKind(ErrUnauthorized))
		return HarassmentSnapshot{}, ErrUnauthorized
	}
	if !s.finish(ctx, logger, session, EndReasonGivenUp) {
		return HarassmentSnapshot{}, ErrNotFound
	}
	return session.Snapshot(), nil
}

// finish terminates session once and performs the closing side effects. It
// reports whether this call won the termination.
func (s *HarassmentService) finish(ctx context.Context, logger *slog.Logger, session *HarassmentSession, reason EndReason) bool {
	out, ok := session.end(reason, s.now())
	if !ok {
		return false
	}
	s.registry.endSession(session)
	s.fx.metrics.ObserveTransition(TransitionHarassEnded)

	s.fx.persist(ctx, logger, out.deltas)
	s.fx.send(ctx, logger, out.snapshot.Channel, harassmentClosingMessage(out.snapshot, out.deltas))
	logger.InfoContext(ctx, "harassment ended",
		"reason", string(reason),
		"minutes", out.deltas[0].LateMinutes,
		"total_wasted", out.deltas[0].WastedMinutes,
	)
	return true
}
