package core

import "github.com/shopspring/decimal"

// DayCell is one day of a habit's history.
type DayCell struct {
	Date      Date     `json:"date"`
	Completed bool     `json:"completed"`
	Value     *float64 `json:"value,omitempty"`
}

// HabitRow is the per-habit view of a day range.
type HabitRow struct {
	Habit   Habit     `json:"habit"`
	Cells   []DayCell `json:"cells"`
	Hits    int       `json:"hits"`
	Percent int       `json:"percent"`
	Sum     float64   `json:"sum"`
	Streak  int       `json:"streak"`
}

// FinanceSummary holds totals for a window.
type FinanceSummary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// BalancePoint is one step of the cumulative balance series.
type BalancePoint struct {
	Date    Date            `json:"date"`
	Balance decimal.Decimal `json:"balance"`
}

// MonthComparison is income versus expense for a YYYY-MM bucket.
type MonthComparison struct {
	Month   string          `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// FinanceOverview bundles every finance aggregate for one window.
type FinanceOverview struct {
	Window     string            `json:"period"`
	Summary    FinanceSummary    `json:"summary"`
	ByCategory []CategoryAmount  `json:"byCategory"`
	Balance    []BalancePoint    `json:"balance"`
	Monthly    []MonthComparison `json:"monthly"`
}
