package timeexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeExpression indicates the expression matches neither the relative
// nor the absolute form.
var ErrInvalidTimeExpression = errors.New("timeexpr: invalid time expression")

// ErrTimeNotInFuture indicates the expression resolved to an instant that is not
// strictly after the reference time.
var ErrTimeNotInFuture = errors.New("timeexpr: time is not in the future")

// Parser resolves user supplied time expressions against a wall clock location.
type Parser struct {
	location *time.Location
}

// NewParser constructs a Parser that interprets absolute times in loc.
// If loc is nil, the process local time zone is used.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{location: loc}
}

// Parse converts expr into an absolute instant strictly after now.
//
// Supported forms:
//   - "in <N> seconds" / "in <N> minutes" (singular unit accepted, N > 0)
//   - "HH:MM" in 24-hour notation, resolved to the next occurrence of that wall
//     clock time at or after now; a time of day that already passed today rolls
//     forward exactly one calendar day. Seconds are zeroed.
func (p *Parser) Parse(expr string, now time.Time) (time.Time, error) {
	loc := p.location
	if loc == nil {
		loc = time.Local
	}

	normalized := strings.ToLower(strings.TrimSpace(expr))
	if normalized == "" {
		return time.Time{}, fmt.Errorf("%w: empty expression", ErrInvalidTimeExpression)
	}

	var (
		resolved time.Time
		err      error
	)
	if rest, ok := strings.CutPrefix(normalized, "in "); ok {
		resolved, err = parseRelative(rest, now)
	} else {
		resolved, err = parseClock(normalized, now.In(loc))
	}
	if err != nil {
		return time.Time{}, err
	}

	if !resolved.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s resolves to %s", ErrTimeNotInFuture, expr, resolved.Format(time.RFC3339))
	}
	return resolved, nil
}

// Parse resolves expr using the process local time zone.
func Parse(expr string, now time.Time) (time.Time, error) {
	return NewParser(nil).Parse(expr, now)
}

func parseRelative(rest string, now time.Time) (time.Time, error) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("%w: expected \"in <N> minutes\" or \"in <N> seconds\"", ErrInvalidTimeExpression)
	}

	amount, err := strconv.Atoi(fields[0])
	if err != nil || amount <= 0 {
		return time.Time{}, fmt.Errorf("%w: %q is not a positive integer", ErrInvalidTimeExpression, fields[0])
	}

	var unit time.Duration
	switch fields[1] {
	case "second", "seconds":
		unit = time.Second
	case "minute", "minutes":
		unit = time.Minute
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported unit %q", ErrInvalidTimeExpression, fields[1])
	}

	return now.Add(time.Duration(amount) * unit), nil
}

func parseClock(value string, now time.Time) (time.Time, error) {
	hourPart, minutePart, ok := strings.Cut(value, ":")
	if !ok || len(hourPart) == 0 || len(hourPart) > 2 || len(minutePart) != 2 {
		return time.Time{}, fmt.Errorf("%w: expected HH:MM", ErrInvalidTimeExpression)
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: hour %q out of range", ErrInvalidTimeExpression, hourPart)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: minute %q out of range", ErrInvalidTimeExpression, minutePart)
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if candidate.Before(now) {
		candidate = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return candidate, nil
}
