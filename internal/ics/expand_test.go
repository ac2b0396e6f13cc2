package ics

import (
	"testing"
	"time"
)

func TestExpandPassthrough(t *testing.T) {
	ev := ParsedEvent{
		ID:    "ev-1",
		Title: "One-off",
		Start: time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC),
	}

	// Even outside the window, non-recurring events pass through; the
	// bucketer decides day membership.
	out := Expand([]ParsedEvent{ev},
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 7, 23, 59, 59, 0, time.UTC))

	if len(out) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out))
	}
	if !out[0].Start.Equal(ev.Start) || !out[0].End.Equal(ev.End) {
		t.Errorf("passthrough changed times: %v-%v", out[0].Start, out[0].End)
	}
}

func TestExpandWeeklyRecurrence(t *testing.T) {
	ev := ParsedEvent{
		ID:       "rec-1",
		Title:    "Piano lesson",
		Start:    time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC), // a Monday
		End:      time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=WEEKLY;BYDAY=MO",
	}

	weekStart := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	weekEnd := time.Date(2024, 3, 17, 23, 59, 59, 0, time.UTC)

	out := Expand([]ParsedEvent{ev}, weekStart, weekEnd)
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 occurrence in the week, got %d", len(out))
	}

	wantStart := time.Date(2024, 3, 11, 16, 0, 0, 0, time.UTC)
	if !out[0].Start.Equal(wantStart) {
		t.Errorf("occurrence start = %v, want %v", out[0].Start, wantStart)
	}
	if got := out[0].End.Sub(out[0].Start); got != time.Hour {
		t.Errorf("occurrence duration = %v, want 1h", got)
	}
}

func TestExpandHonorsExDates(t *testing.T) {
	ev := ParsedEvent{
		ID:       "rec-2",
		Title:    "Daily standup",
		Start:    time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 11, 9, 15, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY;COUNT=5",
		ExDates:  []time.Time{time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)},
	}

	out := Expand([]ParsedEvent{ev},
		time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 17, 23, 59, 59, 0, time.UTC))

	if len(out) != 4 {
		t.Fatalf("expected 4 occurrences after EXDATE, got %d", len(out))
	}
	for _, occ := range out {
		if occ.Start.Day() == 13 {
			t.Errorf("excluded date still present: %v", occ.Start)
		}
	}
}

func TestExpandBadRRuleFallsBackToBase(t *testing.T) {
	ev := ParsedEvent{
		ID:       "rec-3",
		Title:    "Broken",
		Start:    time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=NONSENSE",
	}

	out := Expand([]ParsedEvent{ev},
		time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 17, 23, 59, 59, 0, time.UTC))

	if len(out) != 1 {
		t.Fatalf("expected base instance, got %d events", len(out))
	}
	if !out[0].Start.Equal(ev.Start) {
		t.Errorf("base instance start = %v, want %v", out[0].Start, ev.Start)
	}
}
