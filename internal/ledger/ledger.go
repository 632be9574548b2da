// Package ledger converts arrival timestamps into per-user waiting-time deltas.
//
// Every function in this package is pure: identical input always yields identical
// output, and nothing here touches a clock, a store or a collaborator.
package ledger

import (
	"math"
	"sort"
	"time"
)

// NeverArrived is the LateMinutes sentinel for a participant that never showed up.
// It compares greater than any real lateness so absentees rank first.
const NeverArrived = math.MaxInt

// Arrival pairs a participant with the instant they reached the gathering point.
// A nil ArrivedAt marks a participant that has not arrived.
type Arrival struct {
	UserID    string
	ArrivedAt *time.Time
}

// Delta is one user's contribution from one settled appointment or harassment
// session. Deltas are facts: they are aggregated by the stats store, never edited.
type Delta struct {
	UserID         string
	WastedMinutes  int
	WaitingMinutes int
	LateMinutes    int
	Source         string
}

// Absent reports whether the delta belongs to a participant that never arrived.
func (d Delta) Absent() bool {
	return d.LateMinutes == NeverArrived
}

// IsZero reports whether the delta carries no wasted or waiting minutes.
func (d Delta) IsZero() bool {
	return d.WastedMinutes == 0 && d.WaitingMinutes == 0
}

// Settle computes one delta per participant, in input order.
//
// Arrived participants are ordered by arrival instant (ties keep input order). The
// participant at sorted position i is charged the minutes every earlier arrival j
// spent waiting for them, floor((a[i]-a[j]) / 1m), and records how long they
// themselves waited for the final arrival. Participants without an arrival get
// zero wasted and waiting minutes and LateMinutes == NeverArrived.
func Settle(participants []Arrival, scheduledAt time.Time, source string) []Delta {
	deltas := make([]Delta, len(participants))

	type arrived struct {
		index int
		at    time.Time
	}
	order := make([]arrived, 0, len(participants))
	for i, p := range participants {
		deltas[i] = Delta{UserID: p.UserID, LateMinutes: NeverArrived, Source: source}
		if p.ArrivedAt != nil {
			order = append(order, arrived{index: i, at: *p.ArrivedAt})
		}
	}
	if len(order) == 0 {
		return deltas
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].at.Before(order[j].at)
	})

	last := order[len(order)-1].at
	for i, current := range order {
		wasted := 0
		for j := 0; j < i; j++ {
			wasted += Minutes(current.at.Sub(order[j].at))
		}
		d := &deltas[current.index]
		d.WastedMinutes = wasted
		d.WaitingMinutes = Minutes(last.Sub(current.at))
		d.LateMinutes = max(0, Minutes(current.at.Sub(scheduledAt)))
	}
	return deltas
}

// Rank returns a copy of deltas ordered worst offender first: descending
// LateMinutes with absentees leading, ties kept in input order.
func Rank(deltas []Delta) []Delta {
	ranked := make([]Delta, len(deltas))
	copy(ranked, deltas)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].LateMinutes > ranked[j].LateMinutes
	})
	return ranked
}

// NoShows charges every participant without an arrival for the time the arrived
// participants spent waiting: floor(elapsed / 1m) * number of arrivals. Only
// absent participants produce a delta.
func NoShows(participants []Arrival, elapsed time.Duration, source string) []Delta {
	arrivedCount := 0
	for _, p := range participants {
		if p.ArrivedAt != nil {
			arrivedCount++
		}
	}

	minutes := max(0, Minutes(elapsed))
	deltas := make([]Delta, 0, len(participants)-arrivedCount)
	for _, p := range participants {
		if p.ArrivedAt != nil {
			continue
		}
		deltas = append(deltas, Delta{
			UserID:        p.UserID,
			WastedMinutes: minutes * arrivedCount,
			LateMinutes:   NeverArrived,
			Source:        source,
		})
	}
	return deltas
}

// Harassment settles a harassment session: the target is charged
// minutesElapsed * len(waiting), every waiting user records minutesElapsed of
// waiting. The target delta comes first.
func Harassment(target string, waiting []string, startedAt, endedAt time.Time, source string) []Delta {
	minutes := max(0, Minutes(endedAt.Sub(startedAt)))
	deltas := make([]Delta, 0, len(waiting)+1)
	deltas = append(deltas, Delta{
		UserID:        target,
		WastedMinutes: minutes * len(waiting),
		LateMinutes:   minutes,
		Source:        source,
	})
	for _, userID := range waiting {
		deltas = append(deltas, Delta{
			UserID:         userID,
			WaitingMinutes: minutes,
			Source:         source,
		})
	}
	return deltas
}

// Minutes floors a duration to whole minutes, rounding toward negative infinity.
func Minutes(d time.Duration) int {
	q := d / time.Minute
	if d < 0 && d%time.Minute != 0 {
		q--
	}
	return int(q)
}
