// Package timeexpr parses the time option of the appointment command.
//
// Expressions are either relative ("in 15 minutes", "in 30 seconds") or an
// absolute 24-hour wall clock time ("21:30"). All absolute times are evaluated in
// a single location; there is no per-user time zone.
package timeexpr
