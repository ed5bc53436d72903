// Package stats derives display statistics from raw records. Every function
// is pure: the same inputs always give the same output.
package stats

import (
	"math"

	"tueje/internal/core"
)

// LastNDays returns n calendar days ending with today's day, oldest first.
func LastNDays(today core.Date, n int) []core.Date {
	if n <= 0 {
		return nil
	}
	days := make([]core.Date, n)
	for i := 0; i < n; i++ {
		days[i] = core.Date{Time: today.AddDate(0, 0, i-(n-1))}
	}
	return days
}

// DayCells builds one cell per day for habit h. Check habits are completed
// when done is set; number habits when the logged value is above zero.
func DayCells(h core.Habit, logs []core.HabitLog, days []core.Date) []core.DayCell {
	byDay := make(map[string]core.HabitLog)
	for _, l := range logs {
		if l.HabitID == h.ID {
			byDay[l.Date.String()] = l
		}
	}

	cells := make([]core.DayCell, len(days))
	for i, d := range days {
		cell := core.DayCell{Date: d}
		if l, ok := byDay[d.String()]; ok {
			switch h.Type {
			case core.HabitCheck:
				cell.Completed = l.Done != nil && *l.Done
			case core.HabitNumber:
				cell.Completed = l.Value != nil && *l.Value > 0
			}
			if l.Value != nil {
				v := *l.Value
				cell.Value = &v
			}
		}
		cells[i] = cell
	}
	return cells
}

// Streak counts completed days backwards from the last cell.
func Streak(cells []core.DayCell) int {
	n := 0
	for i := len(cells) - 1; i >= 0; i-- {
		if !cells[i].Completed {
			break
		}
		n++
	}
	return n
}

// Hits counts completed cells.
func Hits(cells []core.DayCell) int {
	n := 0
	for _, c := range cells {
		if c.Completed {
			n++
		}
	}
	return n
}

// CompletionPercent is min(100, round(100*completed/max(1, goal))).
func CompletionPercent(completed, goal int) int {
	if goal < 1 {
		goal = 1
	}
	pct := int(math.Round(100 * float64(completed) / float64(goal)))
	if pct > 100 {
		return 100
	}
	return pct
}

// PeriodSum adds up the logged values in range.
func PeriodSum(cells []core.DayCell) float64 {
	sum := 0.0
	for _, c := range cells {
		if c.Value != nil {
			sum += *c.Value
		}
	}
	return sum
}

// HabitRows computes the dashboard row of every habit over days.
func HabitRows(habits []core.Habit, logs []core.HabitLog, days []core.Date) []core.HabitRow {
	rows := make([]core.HabitRow, 0, len(habits))
	for _, h := range habits {
		cells := DayCells(h, logs, days)
		hits := Hits(cells)
		rows = append(rows, core.HabitRow{
			Habit:   h,
			Cells:   cells,
			Hits:    hits,
			Percent: CompletionPercent(hits, h.GoalPerWeek),
			Sum:     PeriodSum(cells),
			Streak:  Streak(cells),
		})
	}
	return rows
}
