package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentStore, Handler: slog.NewTextHandler(&buf, nil)})

	logger.Info("saved", FieldUserID, "u1")

	out := buf.String()
	if !strings.Contains(out, "component=store") || !strings.Contains(out, "user_id=u1") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestStructuredLoggerRecordChanged(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Component: ComponentApp, Handler: slog.NewTextHandler(&buf, nil)}))

	sl.LogRecordChanged(context.Background(), OpDelete, "u1", "tueje_habits", "h1")
	sl.LogError(context.Background(), "boom", errors.New("bad"), ComponentStore, OpUpdate, NewFields())

	out := buf.String()
	for _, want := range []string{"collection=tueje_habits", "record_id=h1", "operation=delete", "error=bad"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	logger := New(Config{Component: ComponentHTTP, Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)})
	var got *Logger
	h := Middleware(logger)(ComponentMiddleware(ComponentIdentity)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentIdentity {
		t.Fatalf("expected identity component logger, got %+v", got)
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("FromContext without logger should fall back to default")
	}
}
