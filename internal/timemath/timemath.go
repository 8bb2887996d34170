// Package timemath holds the pure departure/arrival arithmetic. Every
// function takes explicit timestamps; nothing in this package reads the
// wall clock, so callers (and tests) control "now". All comparisons happen
// in UTC. An event's timezone identifier is display-only and must never
// feed deadline arithmetic.
package timemath

import "time"

// DefaultTravelTimeMinutes is applied when no travel time estimate or user
// override exists for an event.
const DefaultTravelTimeMinutes = 15

// Phase is the coarse position of "now" relative to an event's departure
// window.
type Phase string

const (
	PhaseUpcoming     Phase = "upcoming"
	PhaseDepartureDue Phase = "departure-due"
	PhaseOverdue      Phase = "overdue"
)

// EffectiveTravelMinutes resolves an optional travel time to minutes,
// falling back to DefaultTravelTimeMinutes when unset or negative.
func EffectiveTravelMinutes(travelTimeMinutes *int) int {
	if travelTimeMinutes == nil || *travelTimeMinutes < 0 {
		return DefaultTravelTimeMinutes
	}
	return *travelTimeMinutes
}

// DepartureDeadline is the moment the user must leave: the event start
// minus the travel time.
func DepartureDeadline(startTime time.Time, travelTimeMinutes int) time.Time {
	return startTime.Add(-time.Duration(travelTimeMinutes) * time.Minute)
}

// MinutesUntil returns whole minutes from now until target, truncated
// toward zero. Negative when target is already past.
func MinutesUntil(target, now time.Time) int {
	return int(target.Sub(now) / time.Minute)
}

// Classify places now within the event's window:
//
//	Upcoming      now < departureDeadline
//	DepartureDue  departureDeadline <= now < startTime
//	Overdue       now >= startTime
func Classify(now, startTime, departureDeadline time.Time) Phase {
	if now.Before(departureDeadline) {
		return PhaseUpcoming
	}
	if now.Before(startTime) {
		return PhaseDepartureDue
	}
	return PhaseOverdue
}

// OnTime reports whether an arrival at now counts as on time for an event
// starting at startTime. Arriving exactly at the start still counts.
func OnTime(now, startTime time.Time) bool {
	return !now.After(startTime)
}

// EarlyArrivalMargin is how far before the start an arrival must land to
// count as early.
const EarlyArrivalMargin = 10 * time.Minute

// Early reports whether an arrival at now is at least EarlyArrivalMargin
// before startTime.
func Early(now, startTime time.Time) bool {
	return !now.After(startTime.Add(-EarlyArrivalMargin))
}
