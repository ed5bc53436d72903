package stats

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tueje/internal/core"
)

// Window selects how far back finance aggregates look.
type Window string

const (
	WindowMonth       Window = "month"
	WindowThreeMonths Window = "3months"
	WindowYear        Window = "year"
	WindowAll         Window = "all"
)

var ErrInvalidWindow = errors.New("invalid period")

func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case WindowMonth, WindowThreeMonths, WindowYear, WindowAll:
		return w, nil
	case "":
		return WindowMonth, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
}

// Cutoff returns now minus the window's calendar months or years. The
// second result is false for WindowAll.
func Cutoff(now time.Time, w Window) (time.Time, bool) {
	switch w {
	case WindowMonth:
		return now.AddDate(0, -1, 0), true
	case WindowThreeMonths:
		return now.AddDate(0, -3, 0), true
	case WindowYear:
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// FilterWindow keeps transactions dated on or after the cutoff instant.
func FilterWindow(txs []core.Transaction, now time.Time, w Window) []core.Transaction {
	cutoff, ok := Cutoff(now, w)
	if !ok {
		return txs
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if !t.Date.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func Summarize(txs []core.Transaction) core.FinanceSummary {
	var s core.FinanceSummary
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			s.Income = s.Income.Add(t.Amount)
		case core.Expense:
			s.Expense = s.Expense.Add(t.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// CategoryBreakdown groups expenses by category, largest sum first. Equal
// sums are ordered by category name.
func CategoryBreakdown(txs []core.Transaction) []core.CategoryAmount {
	sums := make(map[core.Category]decimal.Decimal)
	for _, t := range txs {
		if t.Type != core.Expense {
			continue
		}
		sums[t.Category] = sums[t.Category].Add(t.Amount)
	}

	out := make([]core.CategoryAmount, 0, len(sums))
	for c, amt := range sums {
		out = append(out, core.CategoryAmount{Category: c, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Amount.Cmp(out[j].Amount); cmp != 0 {
			return cmp > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// CumulativeBalance sorts by date (stable) and emits the running signed
// total after each transaction.
func CumulativeBalance(txs []core.Transaction) []core.BalancePoint {
	sorted := make([]core.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})

	points := make([]core.BalancePoint, len(sorted))
	running := decimal.Zero
	for i, t := range sorted {
		running = running.Add(t.Signed())
		points[i] = core.BalancePoint{Date: t.Date, Balance: running}
	}
	return points
}

// MonthlyComparison totals income and expense per YYYY-MM, oldest first.
func MonthlyComparison(txs []core.Transaction) []core.MonthComparison {
	byMonth := make(map[string]*core.MonthComparison)
	for _, t := range txs {
		key := t.Date.MonthKey()
		m, ok := byMonth[key]
		if !ok {
			m = &core.MonthComparison{Month: key}
			byMonth[key] = m
		}
		switch t.Type {
		case core.Income:
			m.Income = m.Income.Add(t.Amount)
		case core.Expense:
			m.Expense = m.Expense.Add(t.Amount)
		}
	}

	out := make([]core.MonthComparison, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Overview computes every finance aggregate for the window.
func Overview(txs []core.Transaction, now time.Time, w Window) core.FinanceOverview {
	in := FilterWindow(txs, now, w)
	return core.FinanceOverview{
		Window:     string(w),
		Summary:    Summarize(in),
		ByCategory: CategoryBreakdown(in),
		Balance:    CumulativeBalance(in),
		Monthly:    MonthlyComparison(in),
	}
}
