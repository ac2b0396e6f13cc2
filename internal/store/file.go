package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "famcal/internal/log"
	"famcal/internal/model"
)

// fileState is the on-disk shape of the store: every entity plus the ID
// counters, in one JSON document.
type fileState struct {
	FamilyMembers []model.FamilyMember `json:"familyMembers"`
	MealCalendar  *model.MealCalendar  `json:"mealCalendar,omitempty"`
	Tasks         []model.Task         `json:"tasks"`
	Settings      model.Settings       `json:"settings"`
	Photos        []model.Photo        `json:"photos"`
	Counters      counters             `json:"counters"`
}

type counters struct {
	MemberID int `json:"memberId"`
	TaskID   int `json:"taskId"`
	PhotoID  int `json:"photoId"`
}

// FileStore keeps all entities in memory and persists the whole state to a
// single JSON file after every mutation. Slices keep declaration order,
// which matters for family members: aggregation tie-breaks follow it.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
}

var _ Repository = (*FileStore)(nil)

// OpenFile loads the store from path, falling back to fresh defaults when
// the file does not exist yet. A corrupt file is logged and replaced with
// defaults rather than failing startup.
func OpenFile(path string) *FileStore {
	s := &FileStore{
		path:  path,
		state: freshState(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			applog.Error("store: failed to read data file; starting fresh", err, "path", path)
		}
		return s
	}

	var loaded fileState
	if err := json.Unmarshal(data, &loaded); err != nil {
		applog.Error("store: failed to parse data file; starting fresh", err, "path", path)
		return s
	}

	normalizeState(&loaded)
	s.state = loaded
	return s
}

func freshState() fileState {
	return fileState{
		FamilyMembers: []model.FamilyMember{},
		Tasks:         []model.Task{},
		Settings:      DefaultSettings(),
		Photos:        []model.Photo{},
		Counters:      counters{MemberID: 1, TaskID: 1, PhotoID: 1},
	}
}

// normalizeState fills gaps in older or hand-edited data files.
func normalizeState(st *fileState) {
	if st.FamilyMembers == nil {
		st.FamilyMembers = []model.FamilyMember{}
	}
	if st.Tasks == nil {
		st.Tasks = []model.Task{}
	}
	if st.Photos == nil {
		st.Photos = []model.Photo{}
	}
	def := DefaultSettings()
	if st.Settings.ID == 0 {
		st.Settings = def
	}
	if st.Settings.PhotoDirectory == "" {
		st.Settings.PhotoDirectory = def.PhotoDirectory
	}
	if st.Settings.TimeFormat == "" {
		st.Settings.TimeFormat = def.TimeFormat
	}
	if st.Settings.TempUnit == "" {
		st.Settings.TempUnit = def.TempUnit
	}
	if st.Settings.WeatherLocation == "" {
		st.Settings.WeatherLocation = def.WeatherLocation
	}
	if st.Counters.MemberID < 1 {
		st.Counters.MemberID = nextID(len(st.FamilyMembers))
	}
	if st.Counters.TaskID < 1 {
		st.Counters.TaskID = nextID(len(st.Tasks))
	}
	if st.Counters.PhotoID < 1 {
		st.Counters.PhotoID = nextID(len(st.Photos))
	}
}

func nextID(existing int) int {
	return existing + 1
}

// persist writes the full state atomically (temp file + rename, 0600).
// Failures are logged, not returned; the in-memory state stays
// authoritative for the process lifetime. Callers must hold s.mu.
func (s *FileStore) persist() {
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		applog.Error("store: failed to marshal state", err)
		return
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		applog.Error("store: failed to create data directory", err, "dir", dir)
		return
	}

	tmp, err := os.CreateTemp(dir, ".famcal-data-*.tmp")
	if err != nil {
		applog.Error("store: failed to create temp file", err)
		return
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		applog.Error("store: failed to write temp file", err)
		return
	}
	if err := tmp.Close(); err != nil {
		applog.Error("store: failed to close temp file", err)
		return
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		applog.Error("store: failed to chmod temp file", err)
		return
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		applog.Error("store: failed to replace data file", err, "path", s.path)
	}
}

// Family members

func (s *FileStore) FamilyMembers() []model.FamilyMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FamilyMember, len(s.state.FamilyMembers))
	copy(out, s.state.FamilyMembers)
	return out
}

func (s *FileStore) FamilyMember(id int) (model.FamilyMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.state.FamilyMembers {
		if m.ID == id {
			return m, true
		}
	}
	return model.FamilyMember{}, false
}

func (s *FileStore) CreateFamilyMember(name, color, calendarURL string, active bool) model.FamilyMember {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := model.FamilyMember{
		ID:          s.state.Counters.MemberID,
		Name:        name,
		Color:       color,
		CalendarURL: calendarURL,
		Active:      active,
	}
	s.state.Counters.MemberID++
	s.state.FamilyMembers = append(s.state.FamilyMembers, m)
	s.persist()
	return m
}

func (s *FileStore) UpdateFamilyMember(id int, mutate func(*model.FamilyMember)) (model.FamilyMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.FamilyMembers {
		if s.state.FamilyMembers[i].ID == id {
			mutate(&s.state.FamilyMembers[i])
			s.state.FamilyMembers[i].ID = id
			s.persist()
			return s.state.FamilyMembers[i], true
		}
	}
	return model.FamilyMember{}, false
}

func (s *FileStore) DeleteFamilyMember(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.state.FamilyMembers {
		if m.ID == id {
			s.state.FamilyMembers = append(s.state.FamilyMembers[:i], s.state.FamilyMembers[i+1:]...)
			s.persist()
			return true
		}
	}
	return false
}

// Meal calendar

func (s *FileStore) MealCalendar() (model.MealCalendar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.MealCalendar == nil {
		return model.MealCalendar{}, false
	}
	return *s.state.MealCalendar, true
}

func (s *FileStore) SetMealCalendar(calendarURL string, active bool) model.MealCalendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MealCalendar = &model.MealCalendar{
		ID:          1,
		CalendarURL: calendarURL,
		Active:      active,
	}
	s.persist()
	return *s.state.MealCalendar
}

// Tasks

func (s *FileStore) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, len(s.state.Tasks))
	copy(out, s.state.Tasks)
	return out
}

func (s *FileStore) Task(id int) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

func (s *FileStore) CreateTask(title, description string, completed bool) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := model.Task{
		ID:          s.state.Counters.TaskID,
		Title:       title,
		Description: description,
		Completed:   completed,
		CreatedAt:   time.Now(),
	}
	s.state.Counters.TaskID++
	s.state.Tasks = append(s.state.Tasks, t)
	s.persist()
	return t
}

func (s *FileStore) UpdateTask(id int, mutate func(*model.Task)) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Tasks {
		if s.state.Tasks[i].ID == id {
			mutate(&s.state.Tasks[i])
			s.state.Tasks[i].ID = id
			s.persist()
			return s.state.Tasks[i], true
		}
	}
	return model.Task{}, false
}

func (s *FileStore) DeleteTask(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.state.Tasks {
		if t.ID == id {
			s.state.Tasks = append(s.state.Tasks[:i], s.state.Tasks[i+1:]...)
			s.persist()
			return true
		}
	}
	return false
}

// Settings

func (s *FileStore) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Settings
}

func (s *FileStore) UpdateSettings(mutate func(*model.Settings)) model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state.Settings)
	s.state.Settings.ID = 1
	s.persist()
	return s.state.Settings
}

// Photos

func (s *FileStore) Photos() []model.Photo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Photo, len(s.state.Photos))
	copy(out, s.state.Photos)
	return out
}

func (s *FileStore) Photo(id int) (model.Photo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.state.Photos {
		if p.ID == id {
			return p, true
		}
	}
	return model.Photo{}, false
}

func (s *FileStore) CreatePhoto(filename, path string) model.Photo {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := model.Photo{
		ID:         s.state.Counters.PhotoID,
		Filename:   filename,
		Path:       path,
		UploadedAt: time.Now(),
	}
	s.state.Counters.PhotoID++
	s.state.Photos = append(s.state.Photos, p)
	s.persist()
	return p
}

func (s *FileStore) DeletePhoto(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.state.Photos {
		if p.ID == id {
			// Remove the file best-effort; a missing file should not keep a
			// stale record around.
			if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				applog.Error("store: failed to delete photo file", err, "path", p.Path)
			}
			s.state.Photos = append(s.state.Photos[:i], s.state.Photos[i+1:]...)
			s.persist()
			return true
		}
	}
	return false
}
