// Package memory keeps ledger tabs in process memory. Tests and local runs
// without spreadsheet credentials use it.
package memory

import (
	"context"
	"sync"

	"tueje/internal/sheets"
)

type Writer struct {
	mu     sync.Mutex
	tabs   map[string][][]any
	writes int
	err    error
}

var _ sheets.LedgerWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{tabs: make(map[string][][]any)}
}

// FailWith makes subsequent writes return err. Nil restores normal writes.
func (w *Writer) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *Writer) ReplaceTab(_ context.Context, tab string, rows [][]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	copied := make([][]any, len(rows))
	for i, r := range rows {
		copied[i] = append([]any(nil), r...)
	}
	w.tabs[tab] = copied
	w.writes++
	return nil
}

// Tab returns the current rows of tab.
func (w *Writer) Tab(tab string) ([][]any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.tabs[tab]
	return rows, ok
}

// Writes counts successful ReplaceTab calls.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
