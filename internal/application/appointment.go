package application

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/example/chronopact/internal/ledger"
)

// Appointment is the guarded handle for one live appointment. Every transition
// runs under mu; callers receive plain values describing the side effects to
// perform once the lock is released.
type Appointment struct {
	mu sync.Mutex

	id             string
	activity       string
	capacity       int
	scheduledAt    time.Time
	channel        string
	gatheringPoint string
	creatorID      string

	participants []string
	arrivedAt    map[string]time.Time
	fired        map[int]bool
	notified     bool

	terminal State
	endedAt  time.Time
}

func newAppointment(id string, params CreateAppointmentParams, scheduledAt time.Time) *Appointment {
	return &Appointment{
		id:             id,
		activity:       params.Activity,
		capacity:       params.Capacity,
		scheduledAt:    scheduledAt,
		channel:        params.Channel,
		gatheringPoint: params.GatheringPoint,
		creatorID:      params.CreatorID,
		arrivedAt:      make(map[string]time.Time),
		fired:          make(map[int]bool),
	}
}

// ID returns the appointment handle.
func (a *Appointment) ID() string {
	return a.id
}

// State reports the lifecycle state as observed at now.
func (a *Appointment) State(now time.Time) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked(now)
}

func (a *Appointment) stateLocked(now time.Time) State {
	switch {
	case a.terminal != "":
		return a.terminal
	case a.notified:
		return StateActive
	case !now.Before(a.scheduledAt):
		return StateDue
	default:
		return StateOpen
	}
}

// Snapshot copies the appointment state.
func (a *Appointment) Snapshot(now time.Time) AppointmentSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := AppointmentSnapshot{
		ID:             a.id,
		Activity:       a.activity,
		Capacity:       a.capacity,
		ScheduledAt:    a.scheduledAt,
		Channel:        a.channel,
		GatheringPoint: a.gatheringPoint,
		CreatorID:      a.creatorID,
		Participants:   slices.Clone(a.participants),
		Arrivals:       make(map[string]time.Time, len(a.arrivedAt)),
		Notified:       a.notified,
		State:          a.stateLocked(now),
	}
	for user, at := range a.arrivedAt {
		snap.Arrivals[user] = at
	}
	for _, threshold := range Checkpoints {
		if a.fired[threshold] {
			snap.FiredCheckpoints = append(snap.FiredCheckpoints, threshold)
		}
	}
	if a.terminal != "" {
		endedAt := a.endedAt
		snap.EndedAt = &endedAt
	}
	return snap
}

type rosterChange struct {
	channel      string
	activity     string
	capacity     int
	scheduledAt  time.Time
	participants []string
}

func (a *Appointment) rosterLocked() rosterChange {
	return rosterChange{
		channel:      a.channel,
		activity:     a.activity,
		capacity:     a.capacity,
		scheduledAt:  a.scheduledAt,
		participants: slices.Clone(a.participants),
	}
}

func (a *Appointment) join(userID string, now time.Time) (rosterChange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != "" || a.notified || !now.Before(a.scheduledAt) {
		return rosterChange{}, ErrAppointmentClosed
	}
	if slices.Contains(a.participants, userID) {
		return rosterChange{}, ErrAlreadyJoined
	}
	a.participants = append(a.participants, userID)
	return a.rosterLocked(), nil
}

func (a *Appointment) leave(userID string, now time.Time) (rosterChange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != "" || a.notified || !now.Before(a.scheduledAt) {
		return rosterChange{}, ErrAppointmentClosed
	}
	idx := slices.Index(a.participants, userID)
	if idx < 0 {
		return rosterChange{}, ErrNotJoined
	}
	a.participants = slices.Delete(a.participants, idx, idx+1)
	return a.rosterLocked(), nil
}

type fireKind int

const (
	fireNone fireKind = iota
	fireGoTime
	fireCancelled
)

type fireOutcome struct {
	kind           fireKind
	channel        string
	activity       string
	gatheringPoint string
	participants   []string
	deltas         []ledger.Delta
}

// fire performs the fire-time transition at most once.
func (a *Appointment) fire(now time.Time) fireOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != "" || a.notified || now.Before(a.scheduledAt) {
		return fireOutcome{}
	}

	out := fireOutcome{
		channel:        a.channel,
		activity:       a.activity,
		gatheringPoint: a.gatheringPoint,
		participants:   slices.Clone(a.participants),
	}
	if len(a.participants) >= a.capacity {
		a.notified = true
		out.kind = fireGoTime
		return out
	}

	// Arrivals are only tracked after the go-time notification, so a party that
	// was never full yields zero-valued no-show deltas here; they are dropped.
	for _, d := range ledger.NoShows(a.arrivalsLocked(), now.Sub(a.scheduledAt), a.source()) {
		if !d.IsZero() {
			out.deltas = append(out.deltas, d)
		}
	}
	a.terminateLocked(StateCancelled, now)
	out.kind = fireCancelled
	return out
}

// cancelIfSilent closes an appointment nobody joined once it has been overdue
// for SilenceCancelAfter.
func (a *Appointment) cancelIfSilent(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != "" || len(a.participants) > 0 || now.Sub(a.scheduledAt) < SilenceCancelAfter {
		return false
	}
	a.terminateLocked(StateCancelled, now)
	return true
}

type cancelOutcome struct {
	channel      string
	activity     string
	participants []string
	deltas       []ledger.Delta
}

// cancel is an explicit call-off by a participant. Parties that were notified
// charge absentees exactly like the fire-time cancellation.
func (a *Appointment) cancel(requester string, now time.Time) (cancelOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != "" {
		return cancelOutcome{}, ErrNotFound
	}
	if !slices.Contains(a.participants, requester) && requester != a.creatorID {
		return cancelOutcome{}, ErrUnauthorized
	}

	out := cancelOutcome{
		channel:      a.channel,
		activity:     a.activity,
		participants: slices.Clone(a.participants),
	}
	if a.notified {
		elapsed := max(0, now.Sub(a.scheduledAt))
		for _, d := range ledger.NoShows(a.arrivalsLocked(), elapsed, a.source()) {
			if !d.IsZero() {
				out.deltas = append(out.deltas, d)
			}
		}
	}
	a.terminateLocked(StateCancelled, now)
	return out, nil
}

type arrivalOutcome struct {
	recorded  bool
	completed bool
	channel   string
	activity  string
	deltas    []ledger.Delta
}

// recordArrival stores the first arrival of a participant and, when that
// arrival completes a full party, settles the ledger and terminates.
func (a *Appointment) recordArrival(userID string, now time.Time) (arrivalOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != "" || !a.notified {
		return arrivalOutcome{}, nil
	}
	if !slices.Contains(a.participants, userID) {
		return arrivalOutcome{}, fmt.Errorf("arrival for non-participant %q in appointment %s: %w", userID, a.id, ErrInvariant)
	}
	if _, ok := a.arrivedAt[userID]; ok {
		return arrivalOutcome{}, nil
	}
	a.arrivedAt[userID] = now

	out := arrivalOutcome{recorded: true, channel: a.channel, activity: a.activity}
	if len(a.arrivedAt) == len(a.participants) && len(a.participants) >= a.capacity {
		out.completed = true
		out.deltas = ledger.Settle(a.arrivalsLocked(), a.scheduledAt, a.source())
		a.terminateLocked(StateCompleted, now)
	}
	return out, nil
}

type checkpointDue struct {
	threshold      int
	channel        string
	activity       string
	gatheringPoint string
	absent         []string
}

// dueCheckpoint marks every reached and unfired threshold as fired and returns
// the highest of them with the participants still absent. ok is false when no
// threshold became due.
func (a *Appointment) dueCheckpoint(now time.Time) (checkpointDue, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != "" || !a.notified {
		return checkpointDue{}, false
	}
	elapsed := ledger.Minutes(now.Sub(a.scheduledAt))
	latest := 0
	for _, threshold := range Checkpoints {
		if elapsed < threshold || a.fired[threshold] {
			continue
		}
		a.fired[threshold] = true
		latest = threshold
	}
	if latest == 0 {
		return checkpointDue{}, false
	}
	return checkpointDue{
		threshold:      latest,
		channel:        a.channel,
		activity:       a.activity,
		gatheringPoint: a.gatheringPoint,
		absent:         a.absentLocked(),
	}, true
}

// absent returns the participants without an arrival, or nil when the
// appointment is not tracking arrivals.
func (a *Appointment) absent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.terminal != "" || !a.notified {
		return nil
	}
	return a.absentLocked()
}

func (a *Appointment) absentLocked() []string {
	var absent []string
	for _, user := range a.participants {
		if _, ok := a.arrivedAt[user]; !ok {
			absent = append(absent, user)
		}
	}
	return absent
}

func (a *Appointment) arrivalsLocked() []ledger.Arrival {
	arrivals := make([]ledger.Arrival, 0, len(a.participants))
	for _, user := range a.participants {
		arrival := ledger.Arrival{UserID: user}
		if at, ok := a.arrivedAt[user]; ok {
			at := at
			arrival.ArrivedAt = &at
		}
		arrivals = append(arrivals, arrival)
	}
	return arrivals
}

func (a *Appointment) terminateLocked(state State, now time.Time) {
	a.terminal = state
	a.endedAt = now
}

func (a *Appointment) source() string {
	return "appointment:" + a.activity
}

func (a *Appointment) hasParticipant(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Contains(a.participants, userID)
}

func (a *Appointment) atGatheringPoint(point string) bool {
	return a.gatheringPoint == point
}
