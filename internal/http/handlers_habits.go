package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tueje/internal/core"
	"tueje/internal/services"
)

type habitRequest struct {
	Title       string         `json:"title"`
	GoalPerWeek int            `json:"goalPerWeek"`
	Type        core.HabitType `json:"type"`
}

type logRequest struct {
	Done  *bool    `json:"done"`
	Value *float64 `json:"value"`
}

func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := s.deps.Habits.ListHabits(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(nonNil(habits)).Write(w)
}

func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if !bindJSON(w, r, &req) {
		return
	}
	h, err := s.deps.Habits.CreateHabit(r.Context(), services.NewHabit{
		Title:       sanitizeInput(req.Title),
		GoalPerWeek: req.GoalPerWeek,
		Type:        req.Type,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Changed().Body(h).Write(w)
}

func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Habits.DeleteHabit(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Changed().Write(w)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.deps.Habits.ListLogs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(nonNil(logs)).Write(w)
}

// handleLogDay records a habit for {date}; "today" uses the configured zone.
func (s *Server) handleLogDay(w http.ResponseWriter, r *http.Request) {
	var day core.Date
	if raw := chi.URLParam(r, "date"); raw != "today" {
		d, err := core.ParseDate(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		day = d
	}

	var req logRequest
	if !bindJSON(w, r, &req) {
		return
	}
	l, err := s.deps.Habits.LogDay(r.Context(), chi.URLParam(r, "id"), day, services.LogEntry{
		Done:  req.Done,
		Value: req.Value,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Changed().Body(l).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.deps.Habits.Dashboard(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"today": s.deps.Habits.Today(),
		"rows":  nonNil(rows),
	}).Write(w)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
