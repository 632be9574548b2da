package persistence

import "time"

// UserStats is the running total of everything the ledger charged a user.
type UserStats struct {
	UserID         string
	WastedMinutes  int
	WaitingMinutes int
	// Settled counts the appointments and harassment sessions the user took part in.
	Settled int
	// NoShows counts the settlements in which the user never arrived.
	NoShows   int
	UpdatedAt time.Time
}

// LedgerEntry is one delta as it was recorded. Entries are append-only.
type LedgerEntry struct {
	ID             string
	UserID         string
	Source         string
	WastedMinutes  int
	WaitingMinutes int
	Absent         bool
	RecordedAt     time.Time
}

// Validate checks the invariants the schema enforces.
func (e LedgerEntry) Validate() error {
	if e.ID == "" || e.UserID == "" {
		return ErrConstraintViolation
	}
	if e.WastedMinutes < 0 || e.WaitingMinutes < 0 {
		return ErrConstraintViolation
	}
	return nil
}
