package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tueje/internal/core"
	applog "tueje/internal/log"
	"tueje/internal/stats"
	"tueje/internal/store"
)

const (
	DefaultDashboardDays = 7
	MaxDashboardDays     = 90
)

var ErrInvalidDays = errors.New("days must be between 1 and 90")

// NewHabit is the user-supplied part of a habit.
type NewHabit struct {
	Title       string         `json:"title"`
	GoalPerWeek int            `json:"goalPerWeek"`
	Type        core.HabitType `json:"type"`
}

// LogEntry is one day's input for a habit.
type LogEntry struct {
	Done  *bool    `json:"done,omitempty"`
	Value *float64 `json:"value,omitempty"`
}

// HabitService orchestrates habits and their daily logs.
type HabitService struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

func NewHabitService(s *store.Store, loc *time.Location) *HabitService {
	if loc == nil {
		loc = time.UTC
	}
	return &HabitService{store: s, loc: loc, now: time.Now}
}

// Today is the current calendar day in the configured zone.
func (s *HabitService) Today() core.Date {
	return core.DateOf(s.now().In(s.loc))
}

func (s *HabitService) CreateHabit(ctx context.Context, in NewHabit) (core.Habit, error) {
	h := core.Habit{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		GoalPerWeek: in.GoalPerWeek,
		Type:        in.Type,
		CreatedAt:   s.now().UTC(),
	}
	if err := h.Validate(); err != nil {
		return core.Habit{}, err
	}
	saved, err := s.store.Habits.Save(ctx, h)
	if err != nil {
		return core.Habit{}, fmt.Errorf("save habit: %w", err)
	}
	slog.InfoContext(ctx, "Habit created", applog.FieldComponent, applog.ComponentStore, applog.FieldRecordID, saved.ID, applog.FieldUserID, saved.UserID)
	return saved, nil
}

func (s *HabitService) ListHabits(ctx context.Context) ([]core.Habit, error) {
	return s.store.Habits.List(ctx)
}

// DeleteHabit removes the habit and all its logs.
func (s *HabitService) DeleteHabit(ctx context.Context, id string) error {
	found, err := s.store.DeleteHabit(ctx, id)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

// LogDay records the outcome of a habit for a day, replacing any earlier
// log for that day.
func (s *HabitService) LogDay(ctx context.Context, habitID string, day core.Date, e LogEntry) (core.HabitLog, error) {
	h, err := s.store.Habits.Get(ctx, habitID)
	if err != nil {
		return core.HabitLog{}, err
	}
	if day.IsZero() {
		day = s.Today()
	}
	l := core.HabitLog{
		ID:      uuid.NewString(),
		HabitID: h.ID,
		Date:    day,
		Done:    e.Done,
		Value:   e.Value,
	}
	if err := l.ValidateFor(h); err != nil {
		return core.HabitLog{}, err
	}
	return s.store.SaveLog(ctx, l)
}

func (s *HabitService) ListLogs(ctx context.Context) ([]core.HabitLog, error) {
	return s.store.Logs.List(ctx)
}

// Dashboard computes one row per habit over the last days ending today.
func (s *HabitService) Dashboard(ctx context.Context, days int) ([]core.HabitRow, error) {
	if days < 1 || days > MaxDashboardDays {
		return nil, ErrInvalidDays
	}
	habits, err := s.store.Habits.List(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.Logs.List(ctx)
	if err != nil {
		return nil, err
	}
	return stats.HabitRows(habits, logs, stats.LastNDays(s.Today(), days)), nil
}
