package application

import "errors"

var (
	// ErrUnauthorized is returned when the acting user may not perform an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested appointment or session is not live.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyActive is returned when a harassment session already runs for the target.
	ErrAlreadyActive = errors.New("application: harassment already active")
	// ErrAlreadyJoined is returned when a participant joins the same appointment twice.
	ErrAlreadyJoined = errors.New("application: already joined")
	// ErrNotJoined is returned when a non-participant tries to leave an appointment.
	ErrNotJoined = errors.New("application: not joined")
	// ErrAppointmentClosed is returned for roster changes after the appointment fired.
	ErrAppointmentClosed = errors.New("application: appointment closed")

	// ErrDelivery wraps notification sink failures.
	ErrDelivery = errors.New("application: delivery failed")
	// ErrGeneration wraps insult generator failures.
	ErrGeneration = errors.New("application: generation failed")
	// ErrPresenceLookup wraps presence oracle failures.
	ErrPresenceLookup = errors.New("application: presence lookup failed")
	// ErrStats wraps stats store failures.
	ErrStats = errors.New("application: stats store failed")

	// ErrInvariant marks an internal consistency violation such as an arrival
	// recorded for a user that is not a participant.
	ErrInvariant = errors.New("application: invariant violated")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
	// Cause keeps the underlying error of a single-field failure, if any.
	Cause error
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// Unwrap exposes the underlying cause so callers can match parser sentinels.
func (v *ValidationError) Unwrap() error {
	if v == nil {
		return nil
	}
	return v.Cause
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
