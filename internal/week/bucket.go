// Package week turns flat event and meal lists into a Monday-start week of
// day buckets.
package week

import (
	"sort"
	"time"

	"famcal/internal/model"
)

// DaysPerWeek is the number of buckets every aggregation produces.
const DaysPerWeek = 7

// Window returns the Monday-start week containing ref: start is the most
// recent Monday at midnight, end is the following Sunday at 23:59:59.999.
func Window(ref time.Time) (start, end time.Time) {
	// time.Weekday numbers Sunday as 0; shift so Monday is day 0.
	offset := (int(ref.Weekday()) + 6) % 7
	start = Midnight(ref.AddDate(0, 0, -offset))
	end = EndOfDay(start.AddDate(0, 0, DaysPerWeek-1))
	return start, end
}

// Midnight normalizes t to 00:00:00.000 of its own day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay normalizes t to 23:59:59.999 of its own day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// BucketEvents returns the events overlapping [dayStart, dayEnd], sorted
// ascending by start. The overlap test widens each event to whole days on
// comparison-only copies, so a multi-day event lands in every bucket it
// spans. Ties on start preserve feed-encounter order, and the result is a
// fresh slice the caller may mutate freely.
func BucketEvents(events []model.CalendarEvent, dayStart, dayEnd time.Time) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	for _, ev := range events {
		// Feeds do not guarantee end >= start; clamp so a backwards or
		// missing end never drops the event from its start day.
		end := ev.End
		if end.IsZero() || end.Before(ev.Start) {
			end = ev.Start
		}
		cmpStart := Midnight(ev.Start)
		cmpEnd := EndOfDay(end)

		if !cmpStart.After(dayEnd) && !cmpEnd.Before(dayStart) {
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// FindMeal returns the first meal falling on the same calendar day as date,
// or nil if none matches.
func FindMeal(meals []model.MealEvent, date time.Time) *model.MealEvent {
	for _, meal := range meals {
		if sameDay(meal.Date, date) {
			m := meal
			return &m
		}
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// BuildWeek produces the 7 day buckets, Monday through Sunday, of the week
// containing ref. Buckets own their event slices.
func BuildWeek(ref time.Time, events []model.CalendarEvent, meals []model.MealEvent) []model.DayBucket {
	weekStart, _ := Window(ref)

	buckets := make([]model.DayBucket, 0, DaysPerWeek)
	for i := 0; i < DaysPerWeek; i++ {
		day := Midnight(weekStart.AddDate(0, 0, i))
		dayEnd := EndOfDay(day)

		buckets = append(buckets, model.DayBucket{
			Date:       day,
			DayOfWeek:  day.Weekday().String(),
			DayOfMonth: day.Day(),
			Month:      day.Month().String(),
			Meal:       FindMeal(meals, day),
			Events:     BucketEvents(events, day, dayEnd),
		})
	}

	return buckets
}
