package model

import "time"

// CalendarEvent is a single timed event from one family member's feed,
// already tagged with its owner. Immutable after parse.
type CalendarEvent struct {
	// ID is the feed-provided UID, or a generated fallback when the feed
	// omits one.
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`

	Start time.Time `json:"start"`
	// End defaults to Start + 1h when the feed provides no DTEND.
	End time.Time `json:"end"`

	// Owner is the family member display name; OwnerColor is the member's
	// display color (e.g. "#ff6b6b").
	Owner      string `json:"owner"`
	OwnerColor string `json:"ownerColor"`
}

// MealEvent is a day-level marker from the meal feed. Date is normalized
// to local midnight; time-of-day is not meaningful for meals.
type MealEvent struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

// DayBucket is one calendar day of the aggregated week: the day's events
// (sorted by start, a private copy) plus an optional meal.
type DayBucket struct {
	Date       time.Time `json:"date"`
	DayOfWeek  string    `json:"dayOfWeek"`
	DayOfMonth int       `json:"dayOfMonth"`
	Month      string    `json:"month"`

	Meal   *MealEvent      `json:"meal,omitempty"`
	Events []CalendarEvent `json:"events"`
}

// FeedSource pairs an owner with a calendar URL. Sources with an empty URL
// are skipped silently during aggregation.
type FeedSource struct {
	Owner string
	Color string
	URL   string
}

// MealSource is the single optional meal feed.
type MealSource struct {
	URL    string
	Active bool
}

// FamilyMember is a configured household member and their calendar feed.
type FamilyMember struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	CalendarURL string `json:"calendarUrl"`
	Active      bool   `json:"active"`
}

// MealCalendar is the stored meal-feed configuration.
type MealCalendar struct {
	ID          int    `json:"id"`
	CalendarURL string `json:"calendarUrl"`
	Active      bool   `json:"active"`
}

// Task is one entry of the shared household task list.
type Task struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Settings holds the dashboard preferences.
type Settings struct {
	ID                 int    `json:"id"`
	FamilyName         string `json:"familyName"`
	TimeFormat         string `json:"timeFormat"`         // "12" or "24"
	ScreensaverTimeout int    `json:"screensaverTimeout"` // minutes
	PhotoDirectory     string `json:"photoDirectory"`
	WeatherAPIKey      string `json:"weatherApiKey,omitempty"`
	WeatherLocation    string `json:"weatherLocation"`
	TempUnit           string `json:"tempUnit"` // "F" or "C"
}

// Photo is a record of an uploaded slideshow photo.
type Photo struct {
	ID         int       `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// WeatherReport is the dashboard's weather summary.
type WeatherReport struct {
	Temperature int    `json:"temperature"`
	Condition   string `json:"condition"`
	Icon        string `json:"icon"`
	Location    string `json:"location"`
	Unit        string `json:"unit"`
}
