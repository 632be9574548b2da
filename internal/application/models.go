package application

import (
	"context"
	"time"

	"github.com/example/chronopact/internal/ledger"
)

// State identifies where an appointment is in its lifecycle.
type State string

const (
	// StateOpen accepts joins and leaves; the fire time has not been reached.
	StateOpen State = "open"
	// StateDue means the fire time passed but the scheduler has not fired yet.
	StateDue State = "due"
	// StateActive means the party was full at fire time and arrivals are tracked.
	StateActive State = "active"
	// StateCompleted means every participant arrived and the ledger was settled.
	StateCompleted State = "completed"
	// StateCancelled is terminal for parties that were not full or were called off.
	StateCancelled State = "cancelled"
)

// EndReason records why a harassment session ended.
type EndReason string

const (
	// EndReasonTargetArrived means the target showed up at the gathering point.
	EndReasonTargetArrived EndReason = "target-arrived"
	// EndReasonGivenUp means a waiting user called it off.
	EndReasonGivenUp EndReason = "given-up"
)

// Checkpoints are the elapsed-minute thresholds after fire time at which absent
// participants are re-checked and shamed.
var Checkpoints = []int{5, 10, 15, 30, 45, 60}

// SilenceCancelAfter is how long an appointment without participants may stay
// live past its scheduled time.
const SilenceCancelAfter = 30 * time.Minute

// MaxCapacity bounds the party size accepted at creation.
const MaxCapacity = 50

// Message is the platform neutral content handed to the notification sink.
type Message struct {
	Title    string
	Content  string
	Fields   []MessageField
	Mentions []string
}

// MessageField is one labelled value of an embed-style message.
type MessageField struct {
	Name   string
	Value  string
	Inline bool
}

// InsultContext is what the insult generator knows about the latecomers.
type InsultContext struct {
	SubjectNames   []string
	ElapsedMinutes int
	Activity       string
}

// Notifier delivers messages to a channel and returns the platform message reference.
type Notifier interface {
	Send(ctx context.Context, channelRef string, msg Message) (string, error)
}

// PresenceOracle answers whether a user is currently at a gathering point and
// streams newly arrived users.
type PresenceOracle interface {
	IsPresent(ctx context.Context, userID, gatheringPoint string) (bool, error)
	Arrivals(ctx context.Context, gatheringPoint string) (<-chan string, error)
}

// InsultGenerator produces shaming text for latecomers.
type InsultGenerator interface {
	Generate(ctx context.Context, input InsultContext) (string, error)
}

// StatsStore accumulates ledger deltas into persistent per-user totals.
type StatsStore interface {
	Append(ctx context.Context, userID string, delta ledger.Delta) error
	Flush(ctx context.Context) error
}

// Metrics receives lifecycle observations. A nil Metrics disables recording.
type Metrics interface {
	ObserveTransition(kind string)
	ObserveCollaboratorFailure(collaborator string)
}

// CreateAppointmentParams wraps the data required to create an appointment.
type CreateAppointmentParams struct {
	Activity       string
	Capacity       int
	Time           string
	Channel        string
	GatheringPoint string
	CreatorID      string
}

// AppointmentSnapshot is a copy of an appointment's state at one instant.
type AppointmentSnapshot struct {
	ID               string
	Activity         string
	Capacity         int
	ScheduledAt      time.Time
	Channel          string
	GatheringPoint   string
	CreatorID        string
	Participants     []string
	Arrivals         map[string]time.Time
	FiredCheckpoints []int
	Notified         bool
	State            State
	EndedAt          *time.Time
}

// StartHarassmentParams wraps the data required to start a harassment session.
type StartHarassmentParams struct {
	TargetID        string
	GatheringPoint  string
	Channel         string
	WaitingUserIDs  []string
	IntervalMinutes int
}

// HarassmentSnapshot is a copy of a harassment session's state at one instant.
type HarassmentSnapshot struct {
	ID               string
	TargetID         string
	GatheringPoint   string
	Channel          string
	WaitingUserIDs   []string
	StartedAt        time.Time
	IntervalMinutes  int
	LastInsultMinute int
	Ended            bool
	EndedAt          *time.Time
	EndReason        EndReason
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string)          {}
func (noopMetrics) ObserveCollaboratorFailure(string) {}
