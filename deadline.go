// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import "time"

// Deadline is an absolute expiry instant.
//
// Deadlines are immutable values. The zero value means "no deadline" and
// never expires. An operation may carry several independent deadlines (the
// overall one plus one per handshake phase).
type Deadline struct {
	at time.Time
}

// NewDeadline returns the [Deadline] expiring d after now.
//
// A non-positive d yields a deadline that is already expired.
func NewDeadline(now time.Time, d time.Duration) Deadline {
	return Deadline{at: now.Add(d)}
}

// DeadlineAt returns the [Deadline] expiring at t.
//
// The zero [time.Time] yields the zero [Deadline].
func DeadlineAt(t time.Time) Deadline {
	return Deadline{at: t}
}

// IsZero returns whether this is the zero [Deadline].
func (d Deadline) IsZero() bool {
	return d.at.IsZero()
}

// Time returns the expiry instant or the zero [time.Time].
func (d Deadline) Time() time.Time {
	return d.at
}

// Remaining returns the time left before expiry, never negative.
//
// The zero [Deadline] reports the maximum representable duration.
func (d Deadline) Remaining(now time.Time) time.Duration {
	if d.at.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return max(d.at.Sub(now), 0)
}

// Expired returns whether the deadline has passed at now.
//
// This is a pure check. Callers race it against I/O.
func (d Deadline) Expired(now time.Time) bool {
	return !d.at.IsZero() && !now.Before(d.at)
}

// Earlier returns whichever of d and other expires first. The zero
// [Deadline] loses against any non-zero one.
func (d Deadline) Earlier(other Deadline) Deadline {
	switch {
	case d.at.IsZero():
		return other
	case other.at.IsZero():
		return d
	case other.at.Before(d.at):
		return other
	default:
		return d
	}
}

// DeadlinePolicy controls how per-phase deadlines relate to the overall one.
type DeadlinePolicy int

const (
	// IndependentPerPhase gives each phase its full configured duration
	// regardless of the time already spent. The sum of the phase timeouts
	// may therefore exceed the overall timeout. This is the default.
	IndependentPerPhase DeadlinePolicy = iota

	// SharedRemainingBudget gives each phase min(configured, overallRemaining).
	SharedRemainingBudget
)

// String implements [fmt.Stringer].
func (p DeadlinePolicy) String() string {
	switch p {
	case SharedRemainingBudget:
		return "sharedRemainingBudget"
	default:
		return "independentPerPhase"
	}
}

// PhaseDeadline computes the deadline of a phase starting at now.
//
// A zero configured duration means the phase has no timeout of its own
// and inherits the overall deadline.
func PhaseDeadline(policy DeadlinePolicy, now time.Time, configured time.Duration, overall Deadline) Deadline {
	if configured <= 0 {
		return overall
	}
	phase := NewDeadline(now, configured)
	if policy == SharedRemainingBudget {
		return phase.Earlier(overall)
	}
	return phase
}
