package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	applog "famcal/internal/log"
	"famcal/internal/model"
)

// maxOccurrencesPerEvent caps expansion so a pathological RRULE cannot
// balloon one feed into an unbounded event list.
const maxOccurrencesPerEvent = 1000

// Expand turns parsed events into concrete calendar events for the given
// window.
//
// Non-recurring events pass through untouched, window or not; filtering to
// individual days is the bucketer's job. Events carrying an RRULE are
// expanded into one event per occurrence inside [rangeStart, rangeEnd],
// honoring EXDATE and preserving the original duration. Feed-encounter
// order is preserved; occurrences of one recurring event are emitted in
// chronological order at that event's position.
func Expand(events []ParsedEvent, rangeStart, rangeEnd time.Time) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))

	for _, ev := range events {
		if ev.RawRRule == "" {
			out = append(out, ev.Event(ev.Start, ev.End))
			continue
		}
		out = append(out, expandRecurring(ev, rangeStart, rangeEnd)...)
	}

	return out
}

func expandRecurring(ev ParsedEvent, rangeStart, rangeEnd time.Time) []model.CalendarEvent {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		// Unparseable rule: fall back to the base instance so the event is
		// not lost entirely.
		applog.Error("ics: failed to parse RRULE", err, "uid", ev.ID, "rrule", ev.RawRRule)
		return []model.CalendarEvent{ev.Event(ev.Start, ev.End)}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between operates in the event's own timezone.
	occTimes := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		applog.Error("ics: truncating recurrence expansion", nil, "uid", ev.ID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	out := make([]model.CalendarEvent, 0, len(occTimes))
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			day := midnightOf(occStart)
			occStart = day
			occEnd = day.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}
		out = append(out, ev.Event(occStart, occEnd))
	}

	return out
}
