// Package sheets mirrors a user's ledger into a spreadsheet tab.
package sheets

import (
	"context"
	"sort"

	"tueje/internal/core"
)

// LedgerWriter is the outbound port of the export worker.
type LedgerWriter interface {
	// ReplaceTab overwrites the whole tab with rows, creating it if needed.
	ReplaceTab(ctx context.Context, tab string, rows [][]any) error
}

// Header is the first row of every ledger tab.
var Header = []any{"Date", "Type", "Category", "Description", "Amount", "Signed", "ID"}

// LedgerRows renders transactions oldest first, header included. Same-day
// transactions keep their creation order.
func LedgerRows(txs []core.Transaction) [][]any {
	sorted := make([]core.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date.Time) {
			return sorted[i].Date.Before(sorted[j].Date.Time)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	rows := make([][]any, 0, len(sorted)+1)
	rows = append(rows, Header)
	for _, t := range sorted {
		rows = append(rows, []any{
			t.Date.String(),
			string(t.Type),
			string(t.Category),
			t.Description,
			core.FormatAmount(t.Amount),
			core.FormatAmount(t.Signed()),
			t.ID,
		})
	}
	return rows
}
