package week

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"famcal/internal/ics"
	"famcal/internal/model"
)

// stubClient serves canned responses keyed by URL and records requests.
type stubClient struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	requested []string
}

type stubResponse struct {
	status int
	body   string
	err    error
}

func (c *stubClient) Do(req *http.Request) (*http.Response, error) {
	url := req.URL.String()

	c.mu.Lock()
	c.requested = append(c.requested, url)
	resp, ok := c.responses[url]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unexpected request: %s", url)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(strings.NewReader(resp.body)),
	}, nil
}

func feedWithEvent(uid, summary, dtstart string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//famcal//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:" + uid + "\r\nDTSTART:" + dtstart + "\r\nSUMMARY:" + summary + "\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
}

func newTestAggregator(responses map[string]stubResponse) (*Aggregator, *stubClient) {
	client := &stubClient{responses: responses}
	return NewAggregator(ics.NewFetcherWithClient(client)), client
}

// Thursday 2024-03-14; its week is Mon 03-11 .. Sun 03-17.
var testRef = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

func TestAggregateWeekPartialFailure(t *testing.T) {
	agg, _ := newTestAggregator(map[string]stubResponse{
		"https://cal.example.com/a.ics": {status: 404, body: "gone"},
		"https://cal.example.com/b.ics": {status: 200, body: feedWithEvent("b-1", "Swim class", "20240312T160000Z")},
	})

	sources := []model.FeedSource{
		{Owner: "Alice", Color: "#ff6b6b", URL: "https://cal.example.com/a.ics"},
		{Owner: "Bob", Color: "#4dabf7", URL: "https://cal.example.com/b.ics"},
	}

	buckets, err := agg.AggregateWeek(context.Background(), testRef, sources, nil)
	if err != nil {
		t.Fatalf("aggregation must tolerate a broken source: %v", err)
	}
	if len(buckets) != DaysPerWeek {
		t.Fatalf("expected %d buckets, got %d", DaysPerWeek, len(buckets))
	}

	var nonEmpty int
	var found *model.CalendarEvent
	for i := range buckets {
		if len(buckets[i].Events) > 0 {
			nonEmpty++
			found = &buckets[i].Events[0]
		}
	}
	if nonEmpty != 1 {
		t.Fatalf("expected exactly 1 non-empty bucket, got %d", nonEmpty)
	}
	if found.Owner != "Bob" || found.Title != "Swim class" {
		t.Errorf("unexpected surviving event: %+v", found)
	}
}

func TestAggregateWeekAllFeedsDown(t *testing.T) {
	agg, _ := newTestAggregator(map[string]stubResponse{
		"https://cal.example.com/a.ics": {err: io.ErrUnexpectedEOF},
		"https://cal.example.com/b.ics": {status: 500, body: "boom"},
	})

	sources := []model.FeedSource{
		{Owner: "Alice", URL: "https://cal.example.com/a.ics"},
		{Owner: "Bob", URL: "https://cal.example.com/b.ics"},
	}

	buckets, err := agg.AggregateWeek(context.Background(), testRef, sources, nil)
	if err != nil {
		t.Fatalf("a week with every feed down must still aggregate: %v", err)
	}
	if len(buckets) != DaysPerWeek {
		t.Fatalf("expected %d buckets, got %d", DaysPerWeek, len(buckets))
	}
	for i, b := range buckets {
		if len(b.Events) != 0 || b.Meal != nil {
			t.Errorf("bucket %d not empty: %+v", i, b)
		}
		if b.DayOfWeek == "" || b.Month == "" {
			t.Errorf("bucket %d missing derived fields", i)
		}
	}
}

func TestAggregateWeekSourceOrderTieBreak(t *testing.T) {
	// Same-instant events must keep configuration order even though the
	// fetches run concurrently.
	agg, _ := newTestAggregator(map[string]stubResponse{
		"https://cal.example.com/a.ics": {status: 200, body: feedWithEvent("a-1", "From A", "20240313T090000Z")},
		"https://cal.example.com/b.ics": {status: 200, body: feedWithEvent("b-1", "From B", "20240313T090000Z")},
	})

	sources := []model.FeedSource{
		{Owner: "Alice", URL: "https://cal.example.com/a.ics"},
		{Owner: "Bob", URL: "https://cal.example.com/b.ics"},
	}

	for i := 0; i < 10; i++ {
		buckets, err := agg.AggregateWeek(context.Background(), testRef, sources, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wednesday := buckets[2]
		var owners []string
		for _, ev := range wednesday.Events {
			owners = append(owners, ev.Owner)
		}
		if diff := cmp.Diff([]string{"Alice", "Bob"}, owners); diff != "" {
			t.Fatalf("tie-break order mismatch on run %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestAggregateWeekSkipsUnconfiguredSources(t *testing.T) {
	agg, client := newTestAggregator(map[string]stubResponse{})

	sources := []model.FeedSource{
		{Owner: "Alice", URL: ""},
		{Owner: "Bob", URL: ""},
	}

	buckets, err := agg.AggregateWeek(context.Background(), testRef, sources, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != DaysPerWeek {
		t.Fatalf("expected %d buckets, got %d", DaysPerWeek, len(buckets))
	}
	if len(client.requested) != 0 {
		t.Errorf("no requests expected for URL-less sources, got %v", client.requested)
	}
}

func TestAggregateWeekMeals(t *testing.T) {
	mealFeed := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//famcal//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:m-1\r\nDTSTART:20240313T170000Z\r\nSUMMARY:Tacos\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	agg, _ := newTestAggregator(map[string]stubResponse{
		"https://cal.example.com/meals.ics": {status: 200, body: mealFeed},
	})

	meal := &model.MealSource{URL: "https://cal.example.com/meals.ics", Active: true}
	buckets, err := agg.AggregateWeek(context.Background(), testRef, nil, meal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wednesday 03-13 gets the meal; every other day has none.
	for i, b := range buckets {
		if i == 2 {
			if b.Meal == nil || b.Meal.Title != "Tacos" {
				t.Errorf("expected Tacos on Wednesday, got %+v", b.Meal)
			}
			continue
		}
		if b.Meal != nil {
			t.Errorf("bucket %d unexpectedly has meal %+v", i, b.Meal)
		}
	}
}

func TestAggregateWeekMealFeedFailure(t *testing.T) {
	agg, _ := newTestAggregator(map[string]stubResponse{
		"https://cal.example.com/a.ics":     {status: 200, body: feedWithEvent("a-1", "Dentist", "20240311T090000Z")},
		"https://cal.example.com/meals.ics": {status: 500, body: "boom"},
	})

	sources := []model.FeedSource{{Owner: "Alice", URL: "https://cal.example.com/a.ics"}}
	meal := &model.MealSource{URL: "https://cal.example.com/meals.ics", Active: true}

	buckets, err := agg.AggregateWeek(context.Background(), testRef, sources, meal)
	if err != nil {
		t.Fatalf("meal feed failure must not fail the week: %v", err)
	}
	if len(buckets[0].Events) != 1 {
		t.Errorf("events lost alongside meal failure: %d", len(buckets[0].Events))
	}
	for i, b := range buckets {
		if b.Meal != nil {
			t.Errorf("bucket %d has meal despite broken feed: %+v", i, b.Meal)
		}
	}
}

func TestAggregateWeekInactiveMealFeedIgnored(t *testing.T) {
	agg, client := newTestAggregator(map[string]stubResponse{})

	meal := &model.MealSource{URL: "https://cal.example.com/meals.ics", Active: false}
	if _, err := agg.AggregateWeek(context.Background(), testRef, nil, meal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.requested) != 0 {
		t.Errorf("inactive meal feed must not be fetched, got %v", client.requested)
	}
}
