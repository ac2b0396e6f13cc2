package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	applog "famcal/internal/log"
	"famcal/internal/model"
)

// ParsedEvent is a normalized VEVENT plus the recurrence metadata needed
// for expansion. Expansion (expand.go) turns these into model.CalendarEvent.
type ParsedEvent struct {
	ID          string
	Title       string
	Description string
	Location    string

	Start time.Time
	End   time.Time

	Owner      string
	OwnerColor string

	AllDay   bool
	RawRRule string
	ExDates  []time.Time
}

// Event returns the ParsedEvent as a model.CalendarEvent with the given
// concrete start/end.
func (p ParsedEvent) Event(start, end time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		Start:       start,
		End:         end,
		Owner:       p.Owner,
		OwnerColor:  p.OwnerColor,
	}
}

// ParseEvents parses a raw iCalendar payload into events tagged with their
// owner. Components missing a start or a summary are unusable and skipped;
// a malformed feed degrades to fewer events, never an error per component.
// Output preserves feed-encounter order.
func ParseEvents(body []byte, owner, ownerColor string) ([]ParsedEvent, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, ok := parseVEvent(ve, owner, ownerColor)
		if !ok {
			applog.Debug("ics: skipping component without start or summary", "owner", owner)
			continue
		}
		events = append(events, ev)
	}

	applog.Debug("ics parse completed", "owner", owner, "event_count", len(events))
	return events, nil
}

// ParseMeals parses the meal feed. Meals are day-level markers: the start's
// time-of-day is discarded and the date normalized to midnight.
func ParseMeals(body []byte) ([]model.MealEvent, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	meals := make([]model.MealEvent, 0)
	for _, ve := range cal.Events() {
		summary := propValue(ve, ical.ComponentPropertySummary)
		start, ok := eventStart(ve)
		if !ok || summary == "" {
			continue
		}

		id := propValue(ve, ical.ComponentPropertyUniqueId)
		if id == "" {
			id = fallbackID("meal")
		}

		meals = append(meals, model.MealEvent{
			ID:    id,
			Title: summary,
			Date:  midnightOf(start),
		})
	}

	return meals, nil
}

func parseVEvent(ve *ical.VEvent, owner, ownerColor string) (ParsedEvent, bool) {
	summary := propValue(ve, ical.ComponentPropertySummary)
	start, ok := eventStart(ve)
	if !ok || summary == "" {
		return ParsedEvent{}, false
	}

	out := ParsedEvent{
		Title:       summary,
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		Start:       start,
		Owner:       owner,
		OwnerColor:  ownerColor,
	}

	out.ID = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.ID == "" {
		// Best-effort identity only; feeds without UIDs cannot be deduped
		// across fetches.
		out.ID = fallbackID(owner)
	}

	end, ok := eventEnd(ve)
	if !ok || end.IsZero() {
		end = start.Add(time.Hour)
	}
	out.End = end

	out.AllDay = isAllDay(ve)

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out, true
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func eventStart(ve *ical.VEvent) (time.Time, bool) {
	start, err := ve.GetStartAt()
	if err != nil {
		start, err = ve.GetAllDayStartAt()
	}
	if err != nil || start.IsZero() {
		return time.Time{}, false
	}
	return start, true
}

func eventEnd(ve *ical.VEvent) (time.Time, bool) {
	end, err := ve.GetEndAt()
	if err != nil {
		end, err = ve.GetAllDayEndAt()
	}
	if err != nil {
		return time.Time{}, false
	}
	return end, true
}

// isAllDay reports whether DTSTART carries VALUE=DATE or a date-only value.
func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// fallbackID builds a substitute identity for components without a UID:
// prefix, wall-clock milliseconds, short random suffix.
func fallbackID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// parseICSTime parses basic ICS date/date-time strings (UTC, local
// date-time, date-only) as used in EXDATE values.
func parseICSTime(v string) (time.Time, error) {
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}
