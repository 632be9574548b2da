package testfixtures

import (
	"time"

	"github.com/example/chronopact/internal/application"
)

var referenceTime = time.Date(2024, time.June, 1, 19, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures:
// 2024-06-01 19:00 UTC, a Saturday evening.
func ReferenceTime() time.Time {
	return referenceTime
}

// AppointmentOption configures CreateAppointmentParams.
type AppointmentOption func(*application.CreateAppointmentParams)

// NewAppointmentParams returns a valid two-seat appointment in 30 minutes.
func NewAppointmentParams(opts ...AppointmentOption) application.CreateAppointmentParams {
	params := application.CreateAppointmentParams{
		Activity:       "Valorant",
		Capacity:       2,
		Time:           "in 30 minutes",
		Channel:        "general",
		GatheringPoint: "voice-1",
		CreatorID:      "creator",
	}
	for _, opt := range opts {
		opt(&params)
	}
	return params
}

// WithActivity overrides the activity name.
func WithActivity(activity string) AppointmentOption {
	return func(p *application.CreateAppointmentParams) { p.Activity = activity }
}

// WithCapacity overrides the party size.
func WithCapacity(capacity int) AppointmentOption {
	return func(p *application.CreateAppointmentParams) { p.Capacity = capacity }
}

// WithTime overrides the time expression.
func WithTime(expr string) AppointmentOption {
	return func(p *application.CreateAppointmentParams) { p.Time = expr }
}

// WithGatheringPoint overrides the gathering point.
func WithGatheringPoint(point string) AppointmentOption {
	return func(p *application.CreateAppointmentParams) { p.GatheringPoint = point }
}

// WithCreator overrides the creator.
func WithCreator(id string) AppointmentOption {
	return func(p *application.CreateAppointmentParams) { p.CreatorID = id }
}

// NewHarassmentParams returns params for harassing target at voice-1 on behalf
// of waiting, at the service's default interval.
func NewHarassmentParams(target string, waiting ...string) application.StartHarassmentParams {
	return application.StartHarassmentParams{
		TargetID:       target,
		GatheringPoint: "voice-1",
		Channel:        "general",
		WaitingUserIDs: waiting,
	}
}
