// Package store holds the dashboard's configuration entities: family
// members, the meal calendar, tasks, settings and photo records.
package store

import "famcal/internal/model"

// Repository is the persistence boundary for dashboard entities. The
// aggregation pipeline never touches it directly; callers hand the pipeline
// a read-only snapshot of the sources instead.
//
// Writes are best-effort: implementations persist what they can and log
// what they cannot, mirroring the "best-effort file write" contract.
type Repository interface {
	FamilyMembers() []model.FamilyMember
	FamilyMember(id int) (model.FamilyMember, bool)
	CreateFamilyMember(name, color, calendarURL string, active bool) model.FamilyMember
	UpdateFamilyMember(id int, mutate func(*model.FamilyMember)) (model.FamilyMember, bool)
	DeleteFamilyMember(id int) bool

	MealCalendar() (model.MealCalendar, bool)
	SetMealCalendar(calendarURL string, active bool) model.MealCalendar

	Tasks() []model.Task
	Task(id int) (model.Task, bool)
	CreateTask(title, description string, completed bool) model.Task
	UpdateTask(id int, mutate func(*model.Task)) (model.Task, bool)
	DeleteTask(id int) bool

	Settings() model.Settings
	UpdateSettings(mutate func(*model.Settings)) model.Settings

	Photos() []model.Photo
	Photo(id int) (model.Photo, bool)
	CreatePhoto(filename, path string) model.Photo
	DeletePhoto(id int) bool
}

// DefaultSettings are the first-run dashboard preferences.
func DefaultSettings() model.Settings {
	return model.Settings{
		ID:                 1,
		FamilyName:         "Family",
		TimeFormat:         "12",
		ScreensaverTimeout: 10,
		PhotoDirectory:     "./photos",
		WeatherLocation:    "New York,US",
		TempUnit:           "F",
	}
}
