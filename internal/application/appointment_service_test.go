package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/chronopact/internal/ledger"
	"github.com/example/chronopact/internal/timeexpr"
)

func createAppointment(t *testing.T, h *appointmentHarness, capacity int, users ...string) AppointmentSnapshot {
	t.Helper()
	ctx := context.Background()
	snap, err := h.service.Create(ctx, CreateAppointmentParams{
		Activity:       "Valorant",
		Capacity:       capacity,
		Time:           "in 10 minutes",
		Channel:        "general",
		GatheringPoint: "voice-1",
		CreatorID:      "creator",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, user := range users {
		if _, err := h.service.Join(ctx, snap.ID, user); err != nil {
			t.Fatalf("join %s: %v", user, err)
		}
	}
	return snap
}

func TestAppointmentService_CreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CreateAppointmentParams)
		field  string
	}{
		{name: "missing activity", mutate: func(p *CreateAppointmentParams) { p.Activity = "  " }, field: "activity"},
		{name: "zero capacity", mutate: func(p *CreateAppointmentParams) { p.Capacity = 0 }, field: "capacity"},
		{name: "capacity above limit", mutate: func(p *CreateAppointmentParams) { p.Capacity = MaxCapacity + 1 }, field: "capacity"},
		{name: "missing channel", mutate: func(p *CreateAppointmentParams) { p.Channel = "" }, field: "channel"},
		{name: "missing gathering point", mutate: func(p *CreateAppointmentParams) { p.GatheringPoint = "" }, field: "gathering_point"},
		{name: "missing creator", mutate: func(p *CreateAppointmentParams) { p.CreatorID = "" }, field: "creator_id"},
		{name: "invalid time", mutate: func(p *CreateAppointmentParams) { p.Time = "tomorrow-ish" }, field: "time"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newAppointmentHarness()
			params := CreateAppointmentParams{
				Activity:       "Valorant",
				Capacity:       5,
				Time:           "in 5 minutes",
				Channel:        "general",
				GatheringPoint: "voice-1",
				CreatorID:      "creator",
			}
			tc.mutate(&params)

			_, err := h.service.Create(context.Background(), params)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, vErr.FieldErrors)
			}
			if len(h.notifier.sent) != 0 {
				t.Fatalf("rejected appointment must not be announced")
			}
		})
	}
}

func TestAppointmentService_CreateInvalidTimeKeepsCause(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()

	_, err := h.service.Create(context.Background(), CreateAppointmentParams{
		Activity: "Chess", Capacity: 2, Time: "in 0 minutes", Channel: "c", GatheringPoint: "p", CreatorID: "u",
	})
	if !errors.Is(err, timeexpr.ErrInvalidTimeExpression) {
		t.Fatalf("expected invalid time expression, got %v", err)
	}
	if kind := ErrorKind(err); kind != "invalid_time_expression" {
		t.Fatalf("unexpected error kind %q", kind)
	}
}

func TestAppointmentService_CreateUsesAnnouncementReference(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()

	snap := createAppointment(t, h, 2)
	if snap.ID != "msg-1" {
		t.Fatalf("expected announcement reference as id, got %q", snap.ID)
	}
	if snap.State != StateOpen {
		t.Fatalf("expected open state, got %s", snap.State)
	}
	if want := harnessStart.Add(10 * time.Minute); !snap.ScheduledAt.Equal(want) {
		t.Fatalf("expected scheduled at %v, got %v", want, snap.ScheduledAt)
	}
}

func TestAppointmentService_CreateFallsBackToGeneratedID(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	h.notifier.failAll = true

	snap := createAppointment(t, h, 2)
	if snap.ID != "gen-1" {
		t.Fatalf("expected generated id, got %q", snap.ID)
	}
	if _, ok := h.registry.Appointment("gen-1"); !ok {
		t.Fatalf("appointment not registered")
	}
	if h.metrics.failures[CollaboratorNotifier] != 1 {
		t.Fatalf("expected one notifier failure, got %v", h.metrics.failures)
	}
}

func TestAppointmentService_JoinLeave(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x")

	if _, err := h.service.Join(ctx, snap.ID, "x"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if _, err := h.service.Leave(ctx, snap.ID, "z"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if _, err := h.service.Join(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.service.Join(ctx, snap.ID, "y"); err != nil {
		t.Fatalf("join y: %v", err)
	}
	// A full party still takes signups.
	if _, err := h.service.Join(ctx, snap.ID, "z"); err != nil {
		t.Fatalf("join z: %v", err)
	}

	updated, err := h.service.Leave(ctx, snap.ID, "x")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(updated.Participants) != 2 || updated.Participants[0] != "y" || updated.Participants[1] != "z" {
		t.Fatalf("unexpected participants %v", updated.Participants)
	}

	rosters := h.notifier.titled("Appointment")
	// announcement + join x + join y + join z + leave x
	if len(rosters) != 5 {
		t.Fatalf("expected 5 roster messages, got %d", len(rosters))
	}
	last := rosters[len(rosters)-1]
	if last.Fields[1].Value != "2/2" || !strings.Contains(last.Fields[3].Value, "<@y>") || !strings.Contains(last.Fields[3].Value, "<@z>") {
		t.Fatalf("unexpected roster fields %+v", last.Fields)
	}
}

func TestAppointmentService_OverSubscribedPartyWaitsForEveryone(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x", "y", "z")

	h.clock.Advance(10 * time.Minute)
	if report := h.service.OnTick(ctx); report.GoTime != 1 {
		t.Fatalf("expected go time, got %+v", report)
	}

	h.clock.Advance(2 * time.Minute)
	h.service.OnArrival(ctx, "voice-1", "x")
	h.service.OnArrival(ctx, "voice-1", "y")
	if _, ok := h.registry.Appointment(snap.ID); !ok {
		t.Fatalf("completed before every participant arrived")
	}

	h.clock.Advance(4 * time.Minute)
	h.service.OnArrival(ctx, "voice-1", "z")
	if _, ok := h.registry.Appointment(snap.ID); ok {
		t.Fatalf("completed appointment still live")
	}
	got := h.stats.byUser()
	if len(got) != 3 || got["z"].WastedMinutes != 8 || got["x"].WaitingMinutes != 4 || got["y"].WaitingMinutes != 4 {
		t.Fatalf("unexpected deltas %+v", got)
	}
}

func TestAppointmentService_RosterClosedAfterFire(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 1, "x")

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)

	if _, err := h.service.Join(ctx, snap.ID, "y"); !errors.Is(err, ErrAppointmentClosed) {
		t.Fatalf("expected ErrAppointmentClosed, got %v", err)
	}
	if _, err := h.service.Leave(ctx, snap.ID, "x"); !errors.Is(err, ErrAppointmentClosed) {
		t.Fatalf("expected ErrAppointmentClosed, got %v", err)
	}
}

func TestAppointmentService_FullPartyCompletes(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x", "y")
	handle, _ := h.registry.Appointment(snap.ID)

	h.clock.Advance(10 * time.Minute)
	report := h.service.OnTick(ctx)
	if report.GoTime != 1 {
		t.Fatalf("expected go time, got %+v", report)
	}
	if state := handle.State(h.clock.Now()); state != StateActive {
		t.Fatalf("expected active, got %s", state)
	}
	if len(h.notifier.titled("Time to play Valorant")) != 1 {
		t.Fatalf("expected go time notification")
	}

	h.clock.Advance(3 * time.Minute)
	if n := h.service.OnArrival(ctx, "voice-1", "x"); n != 1 {
		t.Fatalf("expected one recorded arrival, got %d", n)
	}
	h.clock.Advance(7 * time.Minute)
	if n := h.service.OnArrival(ctx, "voice-1", "y"); n != 1 {
		t.Fatalf("expected one recorded arrival, got %d", n)
	}

	if state := handle.State(h.clock.Now()); state != StateCompleted {
		t.Fatalf("expected completed, got %s", state)
	}
	if _, ok := h.registry.Appointment(snap.ID); ok {
		t.Fatalf("completed appointment still live")
	}

	got := h.stats.byUser()
	if d := got["x"]; d.WastedMinutes != 0 || d.WaitingMinutes != 7 || d.LateMinutes != 3 {
		t.Fatalf("unexpected delta for x: %+v", d)
	}
	if d := got["y"]; d.WastedMinutes != 7 || d.WaitingMinutes != 0 || d.LateMinutes != 10 {
		t.Fatalf("unexpected delta for y: %+v", d)
	}
	if h.stats.flushes != 1 {
		t.Fatalf("expected single flush, got %d", h.stats.flushes)
	}

	reports := h.notifier.titled("Everyone showed up for Valorant")
	if len(reports) != 1 {
		t.Fatalf("expected one completion report, got %d", len(reports))
	}
	if !strings.Contains(reports[0].Fields[0].Value, "<@y>") {
		t.Fatalf("latest arrival should rank first: %+v", reports[0].Fields)
	}

	// Terminal outcome is final.
	if _, err := h.service.Cancel(ctx, snap.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after completion, got %v", err)
	}
	if _, err := handle.cancel("x", h.clock.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected terminal handle to refuse cancel, got %v", err)
	}
	if state := handle.State(h.clock.Now().Add(time.Hour)); state != StateCompleted {
		t.Fatalf("state changed after completion: %s", state)
	}
}

func TestAppointmentService_NotFullCancelsWithoutDeltas(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 3, "x")
	handle, _ := h.registry.Appointment(snap.ID)

	h.clock.Advance(10 * time.Minute)
	report := h.service.OnTick(ctx)
	if report.Cancelled != 1 {
		t.Fatalf("expected cancellation, got %+v", report)
	}
	if len(h.stats.deltas) != 0 || h.stats.flushes != 0 {
		t.Fatalf("expected no ledger activity, got %+v flushes=%d", h.stats.deltas, h.stats.flushes)
	}
	if _, ok := h.registry.Appointment(snap.ID); ok {
		t.Fatalf("cancelled appointment still live")
	}
	if state := handle.State(h.clock.Now()); state != StateCancelled {
		t.Fatalf("expected cancelled, got %s", state)
	}
	if len(h.notifier.titled("Appointment cancelled")) != 1 {
		t.Fatalf("expected cancellation notice")
	}

	// Further ticks and arrivals do nothing.
	h.clock.Advance(time.Hour)
	if report := h.service.OnTick(ctx); report.Processed != 0 {
		t.Fatalf("terminal appointment processed: %+v", report)
	}
	if n := h.service.OnArrival(ctx, "voice-1", "x"); n != 0 {
		t.Fatalf("arrival recorded on cancelled appointment")
	}
	if state := handle.State(h.clock.Now()); state != StateCancelled {
		t.Fatalf("state changed after cancellation: %s", state)
	}
}

func TestAppointmentService_CheckpointsFireOncePerThreshold(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x", "y")

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)
	h.clock.Advance(time.Minute)
	h.service.OnArrival(ctx, "voice-1", "x")

	for elapsed := 1; elapsed <= 30; elapsed++ {
		// several ticks at the same instant must not re-fire a threshold
		for i := 0; i < 3; i++ {
			h.service.OnTick(ctx)
		}
		if elapsed < 30 {
			h.clock.Advance(time.Minute)
		}
	}

	handle, ok := h.registry.Appointment(snap.ID)
	if !ok {
		t.Fatalf("appointment with a missing participant must stay live")
	}
	got := handle.Snapshot(h.clock.Now())
	if got.State != StateActive {
		t.Fatalf("expected active, got %s", got.State)
	}
	want := []int{5, 10, 15, 30}
	if len(got.FiredCheckpoints) != len(want) {
		t.Fatalf("expected checkpoints %v, got %v", want, got.FiredCheckpoints)
	}
	for i := range want {
		if got.FiredCheckpoints[i] != want[i] {
			t.Fatalf("expected checkpoints %v, got %v", want, got.FiredCheckpoints)
		}
	}

	shames := h.notifier.untitled()
	if len(shames) != 4 {
		t.Fatalf("expected 4 shaming messages, got %d", len(shames))
	}
	for _, msg := range shames {
		if len(msg.Mentions) != 1 || msg.Mentions[0] != "y" {
			t.Fatalf("only the absent participant may be shamed: %+v", msg)
		}
	}
	if len(h.insults.inputs) != 4 || h.insults.inputs[3].ElapsedMinutes != 30 {
		t.Fatalf("unexpected insult requests %+v", h.insults.inputs)
	}
}

func TestAppointmentService_LateTickCollapsesCheckpoints(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 1, "x")

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)
	h.clock.Advance(16 * time.Minute)
	report := h.service.OnTick(ctx)

	if report.Shamed != 1 {
		t.Fatalf("expected a single shaming for the collapsed thresholds, got %+v", report)
	}
	handle, _ := h.registry.Appointment(snap.ID)
	if fired := handle.Snapshot(h.clock.Now()).FiredCheckpoints; len(fired) != 3 {
		t.Fatalf("expected 5, 10 and 15 marked fired, got %v", fired)
	}
}

func TestAppointmentService_CheckpointPollingCompletes(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x", "y")

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)

	h.presence.set("x", true)
	h.presence.set("y", true)
	h.clock.Advance(5 * time.Minute)
	report := h.service.OnTick(ctx)

	if report.Completed != 1 || report.Shamed != 0 {
		t.Fatalf("expected completion without shaming, got %+v", report)
	}
	if _, ok := h.registry.Appointment(snap.ID); ok {
		t.Fatalf("completed appointment still live")
	}
	got := h.stats.byUser()
	if got["x"].LateMinutes != 5 || got["y"].LateMinutes != 5 {
		t.Fatalf("unexpected deltas %+v", got)
	}
}

func TestAppointmentService_PresentAtGoTimeCountsAsPunctual(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x", "y")
	handle, _ := h.registry.Appointment(snap.ID)

	h.presence.set("x", true)
	h.clock.Advance(10 * time.Minute)
	if report := h.service.OnTick(ctx); report.GoTime != 1 || report.Completed != 0 {
		t.Fatalf("expected go time without completion, got %+v", report)
	}
	if got := handle.Snapshot(h.clock.Now()); !got.Arrivals["x"].Equal(harnessStart.Add(10 * time.Minute)) {
		t.Fatalf("x should be recorded at go time: %+v", got.Arrivals)
	}

	h.clock.Advance(3 * time.Minute)
	if n := h.service.OnArrival(ctx, "voice-1", "y"); n != 1 {
		t.Fatalf("expected y's arrival to be recorded, got %d", n)
	}
	h.clock.Advance(2 * time.Minute)
	if report := h.service.OnTick(ctx); report.Processed != 0 {
		t.Fatalf("completed appointment still ticking: %+v", report)
	}

	got := h.stats.byUser()
	if d := got["x"]; d.WastedMinutes != 0 || d.WaitingMinutes != 3 || d.LateMinutes != 0 {
		t.Fatalf("unexpected delta for punctual x: %+v", d)
	}
	if d := got["y"]; d.WastedMinutes != 3 || d.WaitingMinutes != 0 || d.LateMinutes != 3 {
		t.Fatalf("unexpected delta for late y: %+v", d)
	}
}

func TestAppointmentService_EveryoneWaitingAtGoTimeCompletes(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x", "y")

	h.presence.set("x", true)
	h.presence.set("y", true)
	h.clock.Advance(10 * time.Minute)
	report := h.service.OnTick(ctx)
	if report.GoTime != 1 || report.Completed != 1 {
		t.Fatalf("expected go time and completion in one tick, got %+v", report)
	}
	if _, ok := h.registry.Appointment(snap.ID); ok {
		t.Fatalf("completed appointment still live")
	}
	for user, d := range h.stats.byUser() {
		if d.WastedMinutes != 0 || d.WaitingMinutes != 0 || d.LateMinutes != 0 {
			t.Fatalf("unexpected delta for %s: %+v", user, d)
		}
	}
}

func TestAppointmentService_DuplicateArrivalIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x", "y")
	handle, _ := h.registry.Appointment(snap.ID)

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)

	h.clock.Advance(time.Minute)
	h.service.OnArrival(ctx, "voice-1", "x")
	h.clock.Advance(time.Minute)
	if n := h.service.OnArrival(ctx, "voice-1", "x"); n != 0 {
		t.Fatalf("duplicate arrival recorded")
	}
	got := handle.Snapshot(h.clock.Now())
	if len(got.Arrivals) != 1 || !got.Arrivals["x"].Equal(harnessStart.Add(11*time.Minute)) {
		t.Fatalf("first arrival must win: %+v", got.Arrivals)
	}

	h.service.OnArrival(ctx, "voice-1", "y")
	h.service.OnArrival(ctx, "voice-1", "y")
	if h.stats.flushes != 1 || len(h.notifier.titled("Everyone showed up for Valorant")) != 1 {
		t.Fatalf("completion fired more than once")
	}
}

func TestAppointmentService_ArrivalBeforeFireIgnored(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 1, "x")

	if n := h.service.OnArrival(ctx, "voice-1", "x"); n != 0 {
		t.Fatalf("arrival before fire recorded")
	}
	if n := h.service.OnArrival(ctx, "voice-2", "x"); n != 0 {
		t.Fatalf("arrival at another gathering point recorded")
	}
	if _, ok := h.registry.Appointment(snap.ID); !ok {
		t.Fatalf("appointment removed")
	}
}

func TestAppointmentService_CancelChargesNoShows(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 3, "x", "y", "z")

	if _, err := h.service.Cancel(ctx, snap.ID, "stranger"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)
	h.clock.Advance(2 * time.Minute)
	h.service.OnArrival(ctx, "voice-1", "x")
	h.service.OnArrival(ctx, "voice-1", "y")
	h.clock.Advance(18 * time.Minute)

	got, err := h.service.Cancel(ctx, snap.ID, "x")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.State != StateCancelled || got.EndedAt == nil {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	deltas := h.stats.byUser()
	if len(deltas) != 1 {
		t.Fatalf("only the absentee is charged, got %+v", deltas)
	}
	if d := deltas["z"]; d.WastedMinutes != 40 || !d.Absent() {
		t.Fatalf("expected 20 min * 2 arrivals for z, got %+v", d)
	}
	if _, err := h.service.Cancel(ctx, snap.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second cancel, got %v", err)
	}
}

func TestAppointmentService_CancelBeforeFireChargesNothing(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 2, "x")

	if _, err := h.service.Cancel(ctx, snap.ID, "creator"); err != nil {
		t.Fatalf("creator cancel: %v", err)
	}
	if len(h.stats.deltas) != 0 || h.stats.flushes != 0 {
		t.Fatalf("unexpected ledger activity")
	}
}

func TestAppointmentService_CollaboratorFailuresDoNotStopTick(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	first := createAppointment(t, h, 2, "a", "b")
	second := createAppointment(t, h, 1, "c")

	h.notifier.failOn = "a"
	h.presence.fail["b"] = true
	h.insults.err = errStub

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)
	h.clock.Advance(5 * time.Minute)
	report := h.service.OnTick(ctx)

	if report.Processed != 2 {
		t.Fatalf("expected both appointments processed, got %+v", report)
	}
	// a fails to deliver, b and c are shamed with the fallback text
	if report.Shamed != 2 {
		t.Fatalf("expected 2 shaming messages, got %+v", report)
	}
	for _, msg := range h.notifier.untitled() {
		if !strings.Contains(msg.Content, "everyone has been waiting 5 minutes") {
			t.Fatalf("expected fallback insult, got %q", msg.Content)
		}
	}
	// b's lookup fails at go time and again at the checkpoint
	if h.metrics.failures[CollaboratorInsults] != 3 || h.metrics.failures[CollaboratorPresence] != 2 {
		t.Fatalf("unexpected failure counts %v", h.metrics.failures)
	}
	for _, id := range []string{first.ID, second.ID} {
		if _, ok := h.registry.Appointment(id); !ok {
			t.Fatalf("appointment %s dropped after collaborator failure", id)
		}
	}
}

func TestAppointmentService_StatsFailureIsLogged(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	createAppointment(t, h, 1, "x")
	h.stats.err = errStub

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)
	h.service.OnArrival(ctx, "voice-1", "x")

	if h.metrics.failures[CollaboratorStats] != 2 {
		t.Fatalf("expected append and flush failures, got %v", h.metrics.failures)
	}
	if len(h.notifier.titled("Everyone showed up for Valorant")) != 1 {
		t.Fatalf("completion report must still be sent")
	}
}

func TestAppointmentService_InvariantViolation(t *testing.T) {
	t.Parallel()

	h := newAppointmentHarness()
	snap := createAppointment(t, h, 1, "x")
	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(context.Background())
	handle, _ := h.registry.Appointment(snap.ID)

	recorded, completed := h.service.recordArrival(context.Background(), h.service.logger, handle, "intruder", h.clock.Now())
	if recorded || completed {
		t.Fatalf("non-participant arrival must be ignored")
	}
	if got := handle.Snapshot(h.clock.Now()); len(got.Arrivals) != 0 {
		t.Fatalf("ledger corrupted: %+v", got.Arrivals)
	}

	h.service.strict = true
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInvariant) {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	h.service.recordArrival(context.Background(), h.service.logger, handle, "intruder", h.clock.Now())
}

func TestAppointmentService_TickAndArrivalRace(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	users := []string{"u1", "u2", "u3", "u4"}
	createAppointment(t, h, len(users), users...)

	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)
	h.clock.Advance(5 * time.Minute)
	for _, u := range users {
		h.presence.set(u, true)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.service.OnTick(ctx)
		}()
		go func() {
			defer wg.Done()
			for _, u := range users {
				h.service.OnArrival(ctx, "voice-1", u)
			}
		}()
	}
	wg.Wait()

	if n := len(h.notifier.titled("Everyone showed up for Valorant")); n != 1 {
		t.Fatalf("expected exactly one completion, got %d", n)
	}
	if h.stats.flushes != 1 || len(h.stats.deltas) != len(users) {
		t.Fatalf("expected one settled batch, got %d deltas and %d flushes", len(h.stats.deltas), h.stats.flushes)
	}
	if h.metrics.transitions[TransitionCompleted] != 1 {
		t.Fatalf("unexpected transitions %v", h.metrics.transitions)
	}
}

func TestAppointment_SilenceCancel(t *testing.T) {
	t.Parallel()
	start := harnessStart
	a := newAppointment("a", CreateAppointmentParams{Activity: "x", Capacity: 1}, start)

	if a.cancelIfSilent(start.Add(29 * time.Minute)) {
		t.Fatalf("cancelled before 30 minutes")
	}
	if !a.cancelIfSilent(start.Add(30 * time.Minute)) {
		t.Fatalf("expected silence cancel at 30 minutes")
	}
	if a.cancelIfSilent(start.Add(31 * time.Minute)) {
		t.Fatalf("silence cancel fired twice")
	}

	b := newAppointment("b", CreateAppointmentParams{Activity: "x", Capacity: 2}, start)
	b.participants = []string{"u"}
	if b.cancelIfSilent(start.Add(time.Hour)) {
		t.Fatalf("appointments with participants never cancel on silence")
	}
}

func TestAppointmentService_EmptyAppointmentCancelsAtFire(t *testing.T) {
	t.Parallel()
	h := newAppointmentHarness()
	ctx := context.Background()
	snap := createAppointment(t, h, 1)

	// The not-full transition closes an empty appointment long before the
	// silence window could elapse.
	h.clock.Advance(10 * time.Minute)
	if report := h.service.OnTick(ctx); report.Cancelled != 1 {
		t.Fatalf("expected cancellation at fire, got %+v", report)
	}
	if _, ok := h.registry.Appointment(snap.ID); ok {
		t.Fatalf("cancelled appointment still live")
	}
	if len(h.notifier.titled("Appointment cancelled")) != 1 {
		t.Fatalf("expected the not-full notice")
	}
	h.clock.Advance(30 * time.Minute)
	if report := h.service.OnTick(ctx); report.Processed != 0 || report.Cancelled != 0 {
		t.Fatalf("silence cancel fired after termination: %+v", report)
	}
}

func TestAppointment_StateProgression(t *testing.T) {
	t.Parallel()
	start := harnessStart
	a := newAppointment("a", CreateAppointmentParams{Activity: "x", Capacity: 1}, start)
	a.participants = []string{"u"}

	if s := a.State(start.Add(-time.Second)); s != StateOpen {
		t.Fatalf("expected open, got %s", s)
	}
	if s := a.State(start); s != StateDue {
		t.Fatalf("expected due, got %s", s)
	}
	if out := a.fire(start); out.kind != fireGoTime {
		t.Fatalf("expected go time")
	}
	if out := a.fire(start.Add(time.Minute)); out.kind != fireNone {
		t.Fatalf("fire must happen once")
	}
	if s := a.State(start); s != StateActive {
		t.Fatalf("expected active, got %s", s)
	}
	out, err := a.recordArrival("u", start.Add(2*time.Minute))
	if err != nil || !out.completed {
		t.Fatalf("expected completion, got %+v %v", out, err)
	}
	if len(out.deltas) != 1 || out.deltas[0] != (ledger.Delta{UserID: "u", LateMinutes: 2, Source: "appointment:x"}) {
		t.Fatalf("unexpected deltas %+v", out.deltas)
	}
}
