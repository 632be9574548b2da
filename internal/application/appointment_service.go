package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/example/chronopact/internal/timeexpr"
)

// Transition labels reported to Metrics.
const (
	TransitionCreated         = "created"
	TransitionGoTime          = "go_time"
	TransitionCancelled       = "cancelled"
	TransitionCompleted       = "completed"
	TransitionCheckpoint      = "checkpoint"
	TransitionHarassStarted   = "harassment_started"
	TransitionHarassInsult    = "harassment_insult"
	TransitionHarassEnded     = "harassment_ended"
	TransitionArrivalRecorded = "arrival_recorded"
)

// AppointmentServiceDeps groups the collaborators of AppointmentService. Nil
// collaborators are replaced by inert defaults.
type AppointmentServiceDeps struct {
	Registry         *Registry
	Notifier         Notifier
	Presence         PresenceOracle
	Insults          InsultGenerator
	Stats            StatsStore
	Metrics          Metrics
	Parser           *timeexpr.Parser
	Logger           *slog.Logger
	IDGenerator      func() string
	Now              func() time.Time
	StrictInvariants bool
}

// AppointmentService drives appointments through their lifecycle. OnTick and
// OnArrival may run concurrently; each appointment serialises its own
// transitions and all collaborator I/O happens outside its lock.
type AppointmentService struct {
	registry    *Registry
	fx          effects
	parser      *timeexpr.Parser
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
	strict      bool
}

// TickReport summarises one OnTick pass.
type TickReport struct {
	Processed int
	GoTime    int
	Cancelled int
	Completed int
	Shamed    int
}

// NewAppointmentService wires dependencies for appointment operations.
func NewAppointmentService(deps AppointmentServiceDeps) *AppointmentService {
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry(0)
	}
	parser := deps.Parser
	if parser == nil {
		parser = timeexpr.NewParser(nil)
	}
	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AppointmentService{
		registry:    registry,
		fx:          newEffects(deps.Notifier, deps.Presence, deps.Insults, deps.Stats, deps.Metrics),
		parser:      parser,
		logger:      defaultLogger(deps.Logger),
		idGenerator: idGenerator,
		now:         now,
		strict:      deps.StrictInvariants,
	}
}

func (s *AppointmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AppointmentService", operation, attrs...)
}

// Create validates the request, announces the appointment and registers it.
// The announcement reference becomes the appointment id; when delivery fails a
// generated id is used instead.
func (s *AppointmentService) Create(ctx context.Context, params CreateAppointmentParams) (AppointmentSnapshot, error) {
	if s == nil {
		return AppointmentSnapshot{}, fmt.Errorf("AppointmentService is nil")
	}
	logger := s.loggerWith(ctx, "Create", "creator_id", params.CreatorID)

	now := s.now()
	params.Activity = strings.TrimSpace(params.Activity)
	params.Channel = strings.TrimSpace(params.Channel)
	params.GatheringPoint = strings.TrimSpace(params.GatheringPoint)
	params.CreatorID = strings.TrimSpace(params.CreatorID)

	vErr := &ValidationError{}
	if params.Activity == "" {
		vErr.add("activity", "activity is required")
	}
	if params.Capacity < 1 || params.Capacity > MaxCapacity {
		vErr.add("capacity", fmt.Sprintf("capacity must be between 1 and %d", MaxCapacity))
	}
	if params.Channel == "" {
		vErr.add("channel", "channel is required")
	}
	if params.GatheringPoint == "" {
		vErr.add("gathering_point", "gathering point is required")
	}
	if params.CreatorID == "" {
		vErr.add("creator_id", "creator is required")
	}
	scheduledAt, err := s.parser.Parse(params.Time, now)
	if err != nil {
		if errors.Is(err, timeexpr.ErrTimeNotInFuture) {
			vErr.add("time", "time must be in the future")
		} else {
			vErr.add("time", "use HH:MM or \"in N minutes\"")
		}
		vErr.Cause = err
	}
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "appointment rejected", "error", vErr, "error_kind", ErrorKind(vErr))
		return AppointmentSnapshot{}, vErr
	}

	draft := newAppointment("", params, scheduledAt)
	ref, delivered := s.fx.send(ctx, logger, params.Channel, rosterMessage(draft.rosterLocked()))

	draft.id = ref
	if !delivered || ref == "" {
		draft.id = s.idGenerator()
	}
	if err := s.registry.addAppointment(draft); err != nil {
		draft.id = s.idGenerator()
		if err := s.registry.addAppointment(draft); err != nil {
			logger.ErrorContext(ctx, "failed to register appointment", "error", err)
			return AppointmentSnapshot{}, err
		}
	}

	s.fx.metrics.ObserveTransition(TransitionCreated)
	logger.InfoContext(ctx, "appointment created",
		"appointment_id", draft.id,
		"activity", params.Activity,
		"capacity", params.Capacity,
		"scheduled_at", scheduledAt,
		"announced", delivered,
	)
	return draft.Snapshot(now), nil
}

// Get returns a live appointment.
func (s *AppointmentService) Get(ctx context.Context, id string) (AppointmentSnapshot, error) {
	a, ok := s.registry.Appointment(id)
	if !ok {
		return AppointmentSnapshot{}, ErrNotFound
	}
	return a.Snapshot(s.now()), nil
}

// List returns every live appointment ordered by scheduled time.
func (s *AppointmentService) List(ctx context.Context) []AppointmentSnapshot {
	now := s.now()
	live := s.registry.Appointments()
	out := make([]AppointmentSnapshot, 0, len(live))
	for _, a := range live {
		out = append(out, a.Snapshot(now))
	}
	return out
}

// Join adds userID to the participants and re-sends the roster.
func (s *AppointmentService) Join(ctx context.Context, id, userID string) (AppointmentSnapshot, error) {
	return s.changeRoster(ctx, "Join", id, userID, (*Appointment).join)
}

// Leave removes userID from the participants and re-sends the roster.
func (s *AppointmentService) Leave(ctx context.Context, id, userID string) (AppointmentSnapshot, error) {
	return s.changeRoster(ctx, "Leave", id, userID, (*Appointment).leave)
}

func (s *AppointmentService) changeRoster(ctx context.Context, operation, id, userID string, apply func(*Appointment, string, time.Time) (rosterChange, error)) (AppointmentSnapshot, error) {
	logger := s.loggerWith(ctx, operation, "appointment_id", id, "user_id", userID)
	if strings.TrimSpace(userID) == "" {
		vErr := &ValidationError{}
		vErr.add("user_id", "user is required")
		return AppointmentSnapshot{}, vErr
	}
	a, ok := s.registry.Appointment(id)
	if !ok {
		return AppointmentSnapshot{}, ErrNotFound
	}

	now := s.now()
	roster, err := apply(a, userID, now)
	if err != nil {
		logger.InfoContext(ctx, "roster change rejected", "error", err, "error_kind", ErrorKind(err))
		return AppointmentSnapshot{}, err
	}
	s.fx.send(ctx, logger, roster.channel, rosterMessage(roster))
	logger.InfoContext(ctx, "roster changed", "participants", len(roster.participants), "capacity", roster.capacity)
	return a.Snapshot(now), nil
}

// Cancel calls off a live appointment on behalf of a participant or its creator.
func (s *AppointmentService) Cancel(ctx context.Context, id, requester string) (AppointmentSnapshot, error) {
	logger := s.loggerWith(ctx, "Cancel", "appointment_id", id, "user_id", requester)
	a, ok := s.registry.Appointment(id)
	if !ok {
		return AppointmentSnapshot{}, ErrNotFound
	}

	now := s.now()
	out, err := a.cancel(requester, now)
	if err != nil {
		logger.InfoContext(ctx, "cancel rejected", "error", err, "error_kind", ErrorKind(err))
		return AppointmentSnapshot{}, err
	}
	s.registry.removeAppointment(a)
	s.fx.metrics.ObserveTransition(TransitionCancelled)

	s.fx.persist(ctx, logger, out.deltas)
	s.fx.send(ctx, logger, out.channel, calledOffMessage(out, requester))
	logger.InfoContext(ctx, "appointment called off", "no_show_deltas", len(out.deltas))
	return a.Snapshot(now), nil
}

// OnTick advances every live appointment through its time based transitions.
// Failures are logged per appointment and never stop the pass.
func (s *AppointmentService) OnTick(ctx context.Context) TickReport {
	var report TickReport
	for _, a := range s.registry.Appointments() {
		if ctx.Err() != nil {
			break
		}
		report.Processed++
		s.tickAppointment(ctx, a, &report)
	}
	return report
}

func (s *AppointmentService) tickAppointment(ctx context.Context, a *Appointment, report *TickReport) {
	logger := s.loggerWith(ctx, "OnTick", "appointment_id", a.ID())
	now := s.now()

	switch out := a.fire(now); out.kind {
	case fireGoTime:
		report.GoTime++
		s.fx.metrics.ObserveTransition(TransitionGoTime)
		s.fx.send(ctx, logger, out.channel, goTimeMessage(out))
		logger.InfoContext(ctx, "appointment is due", "participants", len(out.participants))
		// Whoever is already waiting arrived at the fire instant.
		if s.pollArrivals(ctx, logger, a, out.participants, out.gatheringPoint, now) {
			report.Completed++
			return
		}
	case fireCancelled:
		report.Cancelled++
		s.registry.removeAppointment(a)
		s.fx.metrics.ObserveTransition(TransitionCancelled)
		s.fx.persist(ctx, logger, out.deltas)
		s.fx.send(ctx, logger, out.channel, notFullMessage(out.activity, out.participants))
		logger.InfoContext(ctx, "appointment cancelled, party not full", "participants", len(out.participants))
		return
	}

	if a.cancelIfSilent(now) {
		report.Cancelled++
		s.registry.removeAppointment(a)
		s.fx.metrics.ObserveTransition(TransitionCancelled)
		s.fx.send(ctx, logger, a.channel, silenceMessage(a.activity))
		logger.InfoContext(ctx, "appointment cancelled, nobody joined")
		return
	}

	due, ok := a.dueCheckpoint(now)
	if !ok {
		return
	}
	s.fx.metrics.ObserveTransition(TransitionCheckpoint)
	logger = logger.With("checkpoint", due.threshold)

	if s.pollArrivals(ctx, logger, a, due.absent, due.gatheringPoint, now) {
		report.Completed++
		return
	}

	stillAbsent := a.absent()
	for _, userID := range due.absent {
		if !slices.Contains(stillAbsent, userID) {
			continue
		}
		text := s.fx.insult(ctx, logger, InsultContext{
			SubjectNames:   []string{mention(userID)},
			ElapsedMinutes: due.threshold,
			Activity:       due.activity,
		})
		if _, ok := s.fx.send(ctx, logger, due.channel, shameMessage(userID, due.threshold, text)); ok {
			report.Shamed++
		}
	}
}

// pollArrivals asks the presence oracle about users and records each one found
// at point. It reports whether an arrival completed the appointment.
func (s *AppointmentService) pollArrivals(ctx context.Context, logger *slog.Logger, a *Appointment, users []string, point string, now time.Time) bool {
	for _, userID := range users {
		present, ok := s.fx.isPresent(ctx, logger, userID, point)
		if !ok || !present {
			continue
		}
		if _, completed := s.recordArrival(ctx, logger.With("user_id", userID), a, userID, now); completed {
			return true
		}
	}
	return false
}

// OnArrival records userID as arrived in every live appointment at
// gatheringPoint that counts them as a participant. It returns how many
// arrivals were recorded.
func (s *AppointmentService) OnArrival(ctx context.Context, gatheringPoint, userID string) int {
	logger := s.loggerWith(ctx, "OnArrival", "gathering_point", gatheringPoint, "user_id", userID)
	now := s.now()

	recorded := 0
	for _, a := range s.registry.Appointments() {
		if !a.atGatheringPoint(gatheringPoint) || !a.hasParticipant(userID) {
			continue
		}
		if ok, _ := s.recordArrival(ctx, logger.With("appointment_id", a.ID()), a, userID, now); ok {
			recorded++
		}
	}
	return recorded
}

// recordArrival applies one arrival and performs the completion side effects
// when it settled the appointment.
func (s *AppointmentService) recordArrival(ctx context.Context, logger *slog.Logger, a *Appointment, userID string, now time.Time) (recorded, completed bool) {
	out, err := a.recordArrival(userID, now)
	if err != nil {
		s.invariantViolated(ctx, logger, err)
		return false, false
	}
	if !out.recorded {
		return false, false
	}
	s.fx.metrics.ObserveTransition(TransitionArrivalRecorded)
	logger.InfoContext(ctx, "arrival recorded")
	if !out.completed {
		return true, false
	}

	s.registry.removeAppointment(a)
	s.fx.metrics.ObserveTransition(TransitionCompleted)
	s.fx.persist(ctx, logger, out.deltas)
	s.fx.send(ctx, logger, out.channel, completionMessage(out.activity, out.deltas))
	logger.InfoContext(ctx, "appointment completed", "participants", len(out.deltas))
	return true, true
}

func (s *AppointmentService) invariantViolated(ctx context.Context, logger *slog.Logger, err error) {
	if s.strict {
		panic(err)
	}
	logger.ErrorContext(ctx, "invariant violated, event ignored", "error", err, "error_kind", ErrorKind(err))
}
