package domain

import (
	"time"

	"github.com/emersion/go-ical"
)

// Event represents one event from the remote ICS feed, keyed by UID.
type Event struct {
	UID       string
	Summary   string
	StartTime time.Time
	EndTime   time.Time
	AllDay    bool
	RRule     string // Recurrence rule (e.g., "FREQ=WEEKLY;BYDAY=MO")
	ExDates   []time.Time

	// Components holds the original VEVENT component(s) carrying this UID:
	// the base event first, then any RECURRENCE-ID overrides. They are
	// uploaded together so override instances stay attached to their master.
	Components []*ical.Component

	// Timezones holds the VTIMEZONE definitions referenced by the
	// components, so an uploaded object is self-contained.
	Timezones []*ical.Component
}

// Recurring returns true if the event has a recurrence rule
func (e *Event) Recurring() bool {
	return e.RRule != ""
}

// Duration returns the event length, zero for open-ended events
func (e *Event) Duration() time.Duration {
	if e.EndTime.IsZero() || e.EndTime.Before(e.StartTime) {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}
