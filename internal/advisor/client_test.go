package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateSuccess(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Keep going! "},{"text":"You got this."}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "key", BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), "I ran 3 days", "You are a coach")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Keep going! You got this." {
		t.Errorf("out = %q", out)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "You are a coach" {
		t.Errorf("system instruction not sent: %+v", got.SystemInstruction)
	}
	if got.GenerationConfig.Temperature != 0.7 || got.GenerationConfig.MaxOutputTokens != 600 {
		t.Errorf("generation config = %+v", got.GenerationConfig)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		ctxText string
		status  int
		body    string
		wantErr error
	}{
		{"missing key", "", "ctx", 200, `{}`, ErrNotConfigured},
		{"missing context", "key", "  ", 200, `{}`, ErrMissingParams},
		{"quota exceeded", "key", "ctx", 429, `{"error":{"code":429,"message":"quota"}}`, ErrUpstream},
		{"server error plain body", "key", "ctx", 500, `oops`, ErrUpstream},
		{"empty candidates", "key", "ctx", 200, `{"candidates":[]}`, ErrEmptyResponse},
		{"malformed body", "key", "ctx", 200, `{`, ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Options{APIKey: tt.apiKey, BaseURL: srv.URL})
			out, err := c.Generate(context.Background(), tt.ctxText, "persona")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if out != "" {
				t.Errorf("out = %q, want empty", out)
			}
			if err.Error() == "" {
				t.Error("error must carry a user-visible message")
			}
		})
	}
}

func TestGenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(Options{APIKey: "key", BaseURL: srv.URL})
	if _, err := c.Generate(context.Background(), "ctx", "persona"); !errors.Is(err, ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}
