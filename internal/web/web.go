// Package web exposes the dashboard REST API.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"famcal/internal/config"
	applog "famcal/internal/log"
	"famcal/internal/model"
	"famcal/internal/store"
	"famcal/internal/weather"
	"famcal/internal/week"
)

// calendarCacheTTL bounds how stale the current-week response may get
// between cron prewarms.
const calendarCacheTTL = 30 * time.Second

// Server wires the HTTP surface: the weekly calendar, weather, and CRUD for
// tasks, settings, family members, the meal calendar and photos.
type Server struct {
	cfg     *config.Config
	repo    store.Repository
	agg     *week.Aggregator
	weather *weather.Client
	mux     *http.ServeMux

	// Current-week responses are cached briefly so dashboard polling does
	// not refetch every feed on each request. Requests with an explicit
	// ?date= bypass the cache.
	calMu    sync.RWMutex
	calCache *calendarCache

	refresher *cron.Cron
}

type calendarCache struct {
	buckets   []model.DayBucket
	updatedAt time.Time
}

// NewServer constructs a Server over the given collaborators.
func NewServer(cfg *config.Config, repo store.Repository, agg *week.Aggregator, wc *weather.Client) *Server {
	s := &Server{
		cfg:     cfg,
		repo:    repo,
		agg:     agg,
		weather: wc,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the server's http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		applog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware protects every endpoint except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="famcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/weather", s.handleWeather)

	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	s.mux.HandleFunc("POST /api/family-members", s.handleCreateMember)
	s.mux.HandleFunc("PUT /api/family-members/{id}", s.handleUpdateMember)
	s.mux.HandleFunc("DELETE /api/family-members/{id}", s.handleDeleteMember)

	s.mux.HandleFunc("PUT /api/meal-calendar", s.handleSetMealCalendar)

	s.mux.HandleFunc("GET /api/photos", s.handleListPhotos)
	s.mux.HandleFunc("POST /api/photos/upload", s.handleUploadPhoto)
	s.mux.HandleFunc("POST /api/photos/upload-bulk", s.handleUploadPhotosBulk)
	s.mux.HandleFunc("DELETE /api/photos/{id}", s.handleDeletePhoto)
	s.mux.Handle("GET /api/photos/files/", http.StripPrefix("/api/photos/files/", s.photoFileServer()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// location resolves the configured display timezone, falling back to the
// host's local zone.
func (s *Server) location() *time.Location {
	if s.cfg.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		applog.Error("failed to load timezone; falling back to local", err, "name", s.cfg.Timezone)
		return time.Local
	}
	return loc
}

// feedSources builds the read-only aggregation snapshot from the store.
func (s *Server) feedSources() ([]model.FeedSource, *model.MealSource) {
	members := s.repo.FamilyMembers()
	sources := make([]model.FeedSource, 0, len(members))
	for _, m := range members {
		sources = append(sources, model.FeedSource{
			Owner: m.Name,
			Color: m.Color,
			URL:   m.CalendarURL,
		})
	}

	var meal *model.MealSource
	if mc, ok := s.repo.MealCalendar(); ok {
		meal = &model.MealSource{URL: mc.CalendarURL, Active: mc.Active}
	}
	return sources, meal
}

// handleCalendar serves the 7 day buckets of the requested week.
//
// GET /api/calendar?date=2024-03-14 — date optional, defaults to today.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := s.location()

	var ref time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
			return
		}
		ref = parsed
	} else {
		// Only the default "this week" view is cached.
		s.calMu.RLock()
		cc := s.calCache
		s.calMu.RUnlock()
		if cc != nil && time.Since(cc.updatedAt) < calendarCacheTTL {
			writeJSON(w, http.StatusOK, cc.buckets)
			return
		}
		ref = time.Now().In(loc)
	}

	sources, meal := s.feedSources()
	buckets, err := s.agg.AggregateWeek(ctx, ref, sources, meal)
	if err != nil {
		applog.Error("failed to aggregate weekly calendar", err)
		writeError(w, http.StatusInternalServerError, "Failed to get calendar data")
		return
	}

	if r.URL.Query().Get("date") == "" {
		s.calMu.Lock()
		s.calCache = &calendarCache{buckets: buckets, updatedAt: time.Now()}
		s.calMu.Unlock()
	}

	writeJSON(w, http.StatusOK, buckets)
}

// refreshCalendar prewarms the current-week cache. Called from cron.
func (s *Server) refreshCalendar(ctx context.Context) {
	sources, meal := s.feedSources()
	buckets, err := s.agg.AggregateWeek(ctx, time.Now().In(s.location()), sources, meal)
	if err != nil {
		applog.Error("calendar prewarm failed", err)
		return
	}

	s.calMu.Lock()
	s.calCache = &calendarCache{buckets: buckets, updatedAt: time.Now()}
	s.calMu.Unlock()
	applog.Debug("calendar prewarm completed", "sources", len(sources))
}

// StartRefresh begins the cron-driven cache prewarm using the configured
// schedule.
func (s *Server) StartRefresh(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.RefreshCron, func() {
		s.refreshCalendar(ctx)
	})
	if err != nil {
		return err
	}
	c.Start()
	s.refresher = c
	applog.Info("calendar refresh scheduled", "cron", s.cfg.RefreshCron)
	return nil
}

// StopRefresh stops the prewarm scheduler, waiting for a running job.
func (s *Server) StopRefresh() {
	if s.refresher != nil {
		<-s.refresher.Stop().Done()
	}
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	settings := s.repo.Settings()
	report, err := s.weather.Fetch(r.Context(), settings.WeatherLocation, settings.TempUnit, settings.WeatherAPIKey)
	if err != nil {
		applog.Error("failed to fetch weather", err, "location", settings.WeatherLocation)
		writeError(w, http.StatusInternalServerError, "Failed to get weather data")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Tasks

type taskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.Tasks())
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task payload")
		return
	}
	if req.Title == nil || *req.Title == "" {
		writeError(w, http.StatusBadRequest, "Task title is required")
		return
	}

	task := s.repo.CreateTask(*req.Title, strOrEmpty(req.Description), req.Completed != nil && *req.Completed)
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req taskPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task payload")
		return
	}

	task, found := s.repo.UpdateTask(id, func(t *model.Task) {
		if req.Title != nil {
			t.Title = *req.Title
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.Completed != nil {
			t.Completed = *req.Completed
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.repo.DeleteTask(id) {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Settings

// appSettingsResponse is the combined settings view the frontend consumes:
// stored preferences plus the family member list and meal feed URL.
type appSettingsResponse struct {
	FamilyName         string               `json:"familyName"`
	TimeFormat         string               `json:"timeFormat"`
	ScreensaverTimeout int                  `json:"screensaverTimeout"`
	PhotoDirectory     string               `json:"photoDirectory"`
	WeatherAPIKey      string               `json:"weatherApiKey,omitempty"`
	WeatherLocation    string               `json:"weatherLocation"`
	TempUnit           string               `json:"tempUnit"`
	FamilyMembers      []model.FamilyMember `json:"familyMembers"`
	MealCalendarURL    string               `json:"mealCalendarUrl,omitempty"`
}

type settingsPatch struct {
	FamilyName         *string `json:"familyName"`
	TimeFormat         *string `json:"timeFormat"`
	ScreensaverTimeout *int    `json:"screensaverTimeout"`
	PhotoDirectory     *string `json:"photoDirectory"`
	WeatherAPIKey      *string `json:"weatherApiKey"`
	WeatherLocation    *string `json:"weatherLocation"`
	TempUnit           *string `json:"tempUnit"`
}

func (s *Server) appSettings() appSettingsResponse {
	settings := s.repo.Settings()
	resp := appSettingsResponse{
		FamilyName:         settings.FamilyName,
		TimeFormat:         settings.TimeFormat,
		ScreensaverTimeout: settings.ScreensaverTimeout,
		PhotoDirectory:     settings.PhotoDirectory,
		WeatherAPIKey:      settings.WeatherAPIKey,
		WeatherLocation:    settings.WeatherLocation,
		TempUnit:           settings.TempUnit,
		FamilyMembers:      s.repo.FamilyMembers(),
	}
	if mc, ok := s.repo.MealCalendar(); ok {
		resp.MealCalendarURL = mc.CalendarURL
	}
	return resp
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.appSettings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings payload")
		return
	}

	s.repo.UpdateSettings(func(st *model.Settings) {
		if req.FamilyName != nil {
			st.FamilyName = *req.FamilyName
		}
		if req.TimeFormat != nil {
			st.TimeFormat = *req.TimeFormat
		}
		if req.ScreensaverTimeout != nil {
			st.ScreensaverTimeout = *req.ScreensaverTimeout
		}
		if req.PhotoDirectory != nil {
			st.PhotoDirectory = *req.PhotoDirectory
		}
		if req.WeatherAPIKey != nil {
			st.WeatherAPIKey = *req.WeatherAPIKey
		}
		if req.WeatherLocation != nil {
			st.WeatherLocation = *req.WeatherLocation
		}
		if req.TempUnit != nil {
			st.TempUnit = *req.TempUnit
		}
	})
	writeJSON(w, http.StatusOK, s.appSettings())
}

// Family members

type memberPatch struct {
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	CalendarURL *string `json:"calendarUrl"`
	Active      *bool   `json:"active"`
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid family member payload")
		return
	}
	if req.Name == nil || *req.Name == "" {
		writeError(w, http.StatusBadRequest, "Family member name is required")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	member := s.repo.CreateFamilyMember(*req.Name, strOrEmpty(req.Color), strOrEmpty(req.CalendarURL), active)
	s.invalidateCalendar()
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req memberPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid family member payload")
		return
	}

	member, found := s.repo.UpdateFamilyMember(id, func(m *model.FamilyMember) {
		if req.Name != nil {
			m.Name = *req.Name
		}
		if req.Color != nil {
			m.Color = *req.Color
		}
		if req.CalendarURL != nil {
			m.CalendarURL = *req.CalendarURL
		}
		if req.Active != nil {
			m.Active = *req.Active
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "Family member not found")
		return
	}
	s.invalidateCalendar()
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.repo.DeleteFamilyMember(id) {
		writeError(w, http.StatusNotFound, "Family member not found")
		return
	}
	s.invalidateCalendar()
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Meal calendar

type mealCalendarRequest struct {
	CalendarURL string `json:"calendarUrl"`
	Active      *bool  `json:"active"`
}

func (s *Server) handleSetMealCalendar(w http.ResponseWriter, r *http.Request) {
	var req mealCalendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid meal calendar payload")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	mc := s.repo.SetMealCalendar(req.CalendarURL, active)
	s.invalidateCalendar()
	writeJSON(w, http.StatusOK, mc)
}

// invalidateCalendar drops the cached week after a feed-affecting change.
func (s *Server) invalidateCalendar() {
	s.calMu.Lock()
	s.calCache = nil
	s.calMu.Unlock()
}

// Helpers

type successResponse struct {
	Success bool `json:"success"`
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Message string `json:"message"`
	}
	writeJSON(w, status, errResp{Message: msg})
}
