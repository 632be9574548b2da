package application

import (
	"slices"
	"sync"
	"time"

	"github.com/example/chronopact/internal/ledger"
)

// HarassmentSession nags one late target until they arrive or a waiting user
// gives up. The ended flag is the single terminal guard for both paths.
type HarassmentSession struct {
	mu sync.Mutex

	id             string
	target         string
	gatheringPoint string
	channel        string
	waiting        []string
	startedAt      time.Time
	interval       int

	lastInsultMinute int
	ended            bool
	endedAt          time.Time
	endReason        EndReason
}

func newHarassmentSession(id string, params StartHarassmentParams, waiting []string, startedAt time.Time) *HarassmentSession {
	return &HarassmentSession{
		id:             id,
		target:         params.TargetID,
		gatheringPoint: params.GatheringPoint,
		channel:        params.Channel,
		waiting:        waiting,
		startedAt:      startedAt,
		interval:       params.IntervalMinutes,
	}
}

// Target returns the user the session is nagging.
func (h *HarassmentSession) Target() string {
	return h.target
}

// Snapshot copies the session state.
func (h *HarassmentSession) Snapshot() HarassmentSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *HarassmentSession) snapshotLocked() HarassmentSnapshot {
	snap := HarassmentSnapshot{
		ID:               h.id,
		TargetID:         h.target,
		GatheringPoint:   h.gatheringPoint,
		Channel:          h.channel,
		WaitingUserIDs:   slices.Clone(h.waiting),
		StartedAt:        h.startedAt,
		IntervalMinutes:  h.interval,
		LastInsultMinute: h.lastInsultMinute,
		Ended:            h.ended,
		EndReason:        h.endReason,
	}
	if h.ended {
		endedAt := h.endedAt
		snap.EndedAt = &endedAt
	}
	return snap
}

// dueInsult reports the elapsed minute an insult is owed for, claiming it so
// the same minute is never insulted twice.
func (h *HarassmentSession) dueInsult(now time.Time) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ended {
		return 0, false
	}
	elapsed := ledger.Minutes(now.Sub(h.startedAt))
	if elapsed <= 0 || elapsed%h.interval != 0 || elapsed == h.lastInsultMinute {
		return 0, false
	}
	h.lastInsultMinute = elapsed
	return elapsed, true
}

type harassmentEnd struct {
	snapshot HarassmentSnapshot
	deltas   []ledger.Delta
}

// end terminates the session once; later callers get ok == false.
func (h *HarassmentSession) end(reason EndReason, now time.Time) (harassmentEnd, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ended {
		return harassmentEnd{}, false
	}
	h.ended = true
	h.endedAt = now
	h.endReason = reason

	return harassmentEnd{
		snapshot: h.snapshotLocked(),
		deltas:   ledger.Harassment(h.target, h.waiting, h.startedAt, now, "harassment:"+string(reason)),
	}, true
}

func (h *HarassmentSession) isWaiting(userID string) bool {
	return slices.Contains(h.waiting, userID)
}
