package memory

import (
	"context"
	"errors"
	"testing"
)

func TestWriter_ReplaceTab(t *testing.T) {
	w := New()
	ctx := context.Background()

	if err := w.ReplaceTab(ctx, "ledger-u1", [][]any{{"Date"}, {"2025-03-01"}}); err != nil {
		t.Fatalf("ReplaceTab() error = %v", err)
	}
	if err := w.ReplaceTab(ctx, "ledger-u1", [][]any{{"Date"}}); err != nil {
		t.Fatalf("ReplaceTab() error = %v", err)
	}

	rows, ok := w.Tab("ledger-u1")
	if !ok || len(rows) != 1 {
		t.Fatalf("tab = %v, %v; want header only", rows, ok)
	}
	if w.Writes() != 2 {
		t.Errorf("writes = %d, want 2", w.Writes())
	}
	if _, ok := w.Tab("ledger-u2"); ok {
		t.Error("unexpected tab ledger-u2")
	}
}

func TestWriter_FailWith(t *testing.T) {
	w := New()
	boom := errors.New("quota exceeded")
	w.FailWith(boom)

	if err := w.ReplaceTab(context.Background(), "t", nil); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if w.Writes() != 0 {
		t.Errorf("writes = %d, want 0", w.Writes())
	}

	w.FailWith(nil)
	if err := w.ReplaceTab(context.Background(), "t", nil); err != nil {
		t.Fatalf("error after reset = %v", err)
	}
}
