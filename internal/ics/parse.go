package ics

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/icsync/internal/domain"
)

// Parse decodes an ICS payload into events, in document order. VEVENTs
// sharing a UID (a master plus its RECURRENCE-ID overrides) collapse
// into a single event so they travel together. An empty calendar is
// valid and yields zero events.
func Parse(data []byte) ([]domain.Event, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, domain.Wrap(domain.ErrFormat, fmt.Errorf("decode calendar: %w", err))
	}

	timezones := make(map[string]*ical.Component)
	for _, comp := range cal.Children {
		if comp.Name != ical.CompTimezone {
			continue
		}
		if prop := comp.Props.Get(ical.PropTimezoneID); prop != nil && prop.Value != "" {
			timezones[prop.Value] = comp
		}
	}

	var order []string
	byUID := make(map[string]*domain.Event)

	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}

		uid := componentUID(comp)
		ev, ok := byUID[uid]
		if !ok {
			ev = &domain.Event{UID: uid}
			byUID[uid] = ev
			order = append(order, uid)
		}

		if comp.Props.Get(ical.PropRecurrenceID) != nil {
			ev.Components = append(ev.Components, comp)
		} else {
			// The master component goes first and provides the metadata.
			ev.Components = append([]*ical.Component{comp}, ev.Components...)
			fillEventMeta(ev, comp)
		}
	}

	events := make([]domain.Event, 0, len(order))
	for _, uid := range order {
		ev := byUID[uid]
		if ev.StartTime.IsZero() && len(ev.Components) > 0 {
			// Overrides without a master still carry usable times.
			fillEventMeta(ev, ev.Components[0])
		}
		attachTimezones(ev, timezones)
		events = append(events, *ev)
	}
	return events, nil
}

// componentUID returns the VEVENT's UID, deriving a stable one from the
// component content when the feed omits it. The derived UID is written
// back so the uploaded object matches.
func componentUID(comp *ical.Component) string {
	if prop := comp.Props.Get(ical.PropUID); prop != nil && prop.Value != "" {
		return prop.Value
	}
	uid := synthesizeUID(comp)
	comp.Props.SetText(ical.PropUID, uid)
	return uid
}

func synthesizeUID(comp *ical.Component) string {
	names := make([]string, 0, len(comp.Props))
	for name := range comp.Props {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		for _, p := range comp.Props[name] {
			b.WriteString(name)
			b.WriteByte(':')
			b.WriteString(p.Value)
			b.WriteByte('\n')
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8]) + "@icsync"
}

func fillEventMeta(ev *domain.Event, comp *ical.Component) {
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		ev.Summary = prop.Value
	}

	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
		if t, err := prop.DateTime(time.UTC); err == nil {
			ev.StartTime = t
		}
		if prop.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
			ev.AllDay = true
		}
	}

	// DateTimeEnd covers DTEND, DTSTART+DURATION and the RFC 5545
	// defaults (one day for all-day events, zero length otherwise).
	if end, err := (&ical.Event{Component: comp}).DateTimeEnd(time.UTC); err == nil {
		ev.EndTime = end
	} else {
		ev.EndTime = ev.StartTime
	}

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		ev.RRule = prop.Value
	}

	for _, prop := range comp.Props[ical.PropExceptionDates] {
		loc := exDateLocation(prop)
		for _, raw := range strings.Split(prop.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(raw), loc); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
}

func exDateLocation(prop ical.Prop) *time.Location {
	tzid := prop.Params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseICSTime handles the three value shapes EXDATE comes in:
// 20060102T150405Z, 20060102T150405 (with TZID) and bare 20060102.
func parseICSTime(raw string, loc *time.Location) (time.Time, error) {
	switch {
	case strings.HasSuffix(raw, "Z"):
		return time.Parse("20060102T150405Z", raw)
	case strings.Contains(raw, "T"):
		return time.ParseInLocation("20060102T150405", raw, loc)
	default:
		return time.ParseInLocation("20060102", raw, loc)
	}
}

// attachTimezones copies the VTIMEZONE definitions referenced via TZID
// parameters onto the event. The order is sorted so a re-synced object
// encodes identically.
func attachTimezones(ev *domain.Event, timezones map[string]*ical.Component) {
	if len(timezones) == 0 {
		return
	}
	referenced := make(map[string]bool)
	for _, comp := range ev.Components {
		for _, props := range comp.Props {
			for _, p := range props {
				if tzid := p.Params.Get(ical.ParamTimezoneID); tzid != "" {
					referenced[tzid] = true
				}
			}
		}
	}

	tzids := make([]string, 0, len(referenced))
	for tzid := range referenced {
		tzids = append(tzids, tzid)
	}
	sort.Strings(tzids)

	for _, tzid := range tzids {
		if tz, ok := timezones[tzid]; ok {
			ev.Timezones = append(ev.Timezones, tz)
		}
	}
}
