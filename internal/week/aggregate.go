package week

import (
	"context"
	"sync"
	"time"

	"famcal/internal/ics"
	applog "famcal/internal/log"
	"famcal/internal/model"
)

// Aggregator fetches and parses every configured feed and assembles the
// weekly day buckets. One broken calendar never blanks the whole week: any
// per-source failure is logged and that source simply contributes nothing.
type Aggregator struct {
	fetcher *ics.Fetcher
}

// NewAggregator creates an Aggregator using the given feed fetcher.
func NewAggregator(fetcher *ics.Fetcher) *Aggregator {
	return &Aggregator{fetcher: fetcher}
}

// sourceResult is the explicit per-source outcome: either the source's
// events or the error that disqualified it this week.
type sourceResult struct {
	events []model.CalendarEvent
	err    error
}

// AggregateWeek builds the 7 day buckets of the week containing ref
// (time.Now if ref is zero) from the given sources plus the optional meal
// feed.
//
// Feeds are fetched concurrently; results are reassembled in
// source-declaration order so that same-instant events tie-break by
// configuration order, not completion order. Sources with an empty URL are
// skipped silently. The call fails only on internal errors (context
// cancellation), never because a feed is unreachable or malformed — a week
// with every feed down is still 7 well-formed empty buckets.
func (a *Aggregator) AggregateWeek(ctx context.Context, ref time.Time, sources []model.FeedSource, meal *model.MealSource) ([]model.DayBucket, error) {
	if ref.IsZero() {
		ref = time.Now()
	}
	weekStart, weekEnd := Window(ref)

	results := make([]sourceResult, len(sources))
	var (
		wg       sync.WaitGroup
		meals    []model.MealEvent
		mealsErr error
	)

	for i, src := range sources {
		if src.URL == "" {
			applog.Debug("no calendar URL configured; skipping", "owner", src.Owner)
			continue
		}
		wg.Add(1)
		go func(i int, src model.FeedSource) {
			defer wg.Done()
			results[i] = a.fetchSource(ctx, src, weekStart, weekEnd)
		}(i, src)
	}

	if meal != nil && meal.Active && meal.URL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			meals, mealsErr = a.fetchMeals(ctx, meal.URL)
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Flatten successes in declaration order; discard error variants.
	allEvents := make([]model.CalendarEvent, 0)
	for i, res := range results {
		if res.err != nil {
			applog.Error("calendar feed failed; skipping source", res.err, "owner", sources[i].Owner)
			continue
		}
		allEvents = append(allEvents, res.events...)
	}

	if mealsErr != nil {
		// A broken meal feed costs the week its meals, nothing more.
		applog.Error("meal feed failed; week will have no meals", mealsErr)
		meals = nil
	}

	return BuildWeek(ref, allEvents, meals), nil
}

func (a *Aggregator) fetchSource(ctx context.Context, src model.FeedSource, weekStart, weekEnd time.Time) sourceResult {
	body, err := a.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return sourceResult{err: err}
	}

	parsed, err := ics.ParseEvents(body, src.Owner, src.Color)
	if err != nil {
		return sourceResult{err: err}
	}

	events := ics.Expand(parsed, weekStart, weekEnd)
	applog.Info("calendar feed loaded", "owner", src.Owner, "event_count", len(events))
	return sourceResult{events: events}
}

func (a *Aggregator) fetchMeals(ctx context.Context, url string) ([]model.MealEvent, error) {
	body, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ics.ParseMeals(body)
}
