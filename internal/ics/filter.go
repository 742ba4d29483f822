package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tazhate/icsync/internal/domain"
)

// FutureOnly drops events that are decisively over: one-off events whose
// end is before now, and recurring events with no occurrence ending at
// or after now. Events whose rule cannot be parsed are kept.
func FutureOnly(events []domain.Event, now time.Time) (kept []domain.Event, skipped int) {
	kept = make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if endsAtOrAfter(ev, now) {
			kept = append(kept, ev)
		} else {
			skipped++
		}
	}
	return kept, skipped
}

func endsAtOrAfter(ev domain.Event, now time.Time) bool {
	if ev.StartTime.IsZero() {
		return true
	}

	if !ev.Recurring() {
		return !ev.EndTime.Before(now)
	}

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return true
	}
	r.DTStart(ev.StartTime)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.StartTime.Location()))
	}

	// An occurrence that started before now but is still in progress
	// counts as current.
	next := set.After(now.Add(-ev.Duration()), true)
	return !next.IsZero()
}
