package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tueje/internal/advisor"
	"tueje/internal/cache"
	"tueje/internal/core"
	"tueje/internal/currency"
	"tueje/internal/events"
	"tueje/internal/identity"
	"tueje/internal/kv/memory"
	"tueje/internal/realtime"
	"tueje/internal/services"
	"tueje/internal/store"
)

type fakeGenerator struct {
	text string
	err  error

	gotContext string
	gotPrompt  string
}

func (g *fakeGenerator) Generate(_ context.Context, userContext, systemPrompt string) (string, error) {
	g.gotContext, g.gotPrompt = userContext, systemPrompt
	if userContext == "" || systemPrompt == "" {
		return "", advisor.ErrMissingParams
	}
	return g.text, g.err
}

type fakeRates struct{}

func (fakeRates) Rates(_ context.Context, base string) (currency.Rates, error) {
	if base == "" {
		base = "USD"
	}
	if _, ok := currency.Lookup(base); !ok {
		return currency.Rates{}, currency.ErrUnknownCurrency
	}
	return currency.Rates{Base: base, Rates: map[string]float64{"USD": 1, "EUR": 0.5, "CLP": 1000}}, nil
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	bus    *events.Bus
}

func newTestEnv(t *testing.T, gen advisor.Generator, ready func(context.Context) error) *testEnv {
	t.Helper()

	bus := events.NewBus()
	kvStore := memory.New()
	hasher := identity.NewHasher(identity.HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
	ids := identity.NewService(kvStore, hasher, bus)
	st := store.New(kvStore, ids, bus)

	habits := services.NewHabitService(st, time.UTC)
	finance := services.NewFinanceService(st, ids, cache.NewLRUCache[core.FinanceOverview](16, time.Minute), time.UTC)
	bus.Subscribe(finance.Invalidate)

	adv := services.NewAdvisorService(gen, habits, finance)

	hub := realtime.NewHub(nil)
	bus.Subscribe(hub.Handle)

	s := NewServer(Options{}, Deps{
		Identity: ids,
		Sessions: identity.NewSessions("test-secret", time.Hour),
		Habits:   habits,
		Finance:  finance,
		Advisor:  adv,
		Rates:    fakeRates{},
		Hub:      hub,
		Ready:    ready,
	})
	srv := httptest.NewServer(s.Handler)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) expect(t *testing.T, method, path, body string, want int) []byte {
	t.Helper()
	resp, data := e.do(t, method, path, body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d (body %s)", method, path, resp.StatusCode, want, data)
	}
	return data
}

func (e *testEnv) signUp(t *testing.T, email string) {
	t.Helper()
	e.expect(t, http.MethodPost, "/api/auth/register",
		fmt.Sprintf(`{"email":%q,"password":"secret1","name":"Ana"}`, email), http.StatusCreated)
	e.expect(t, http.MethodPost, "/api/auth/login",
		fmt.Sprintf(`{"email":%q,"password":"secret1"}`, email), http.StatusOK)
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	down := errors.New("db down")
	tests := []struct {
		name      string
		ready     func(context.Context) error
		wantReady int
	}{
		{name: "no probe", wantReady: http.StatusOK},
		{name: "backend up", ready: func(context.Context) error { return nil }, wantReady: http.StatusOK},
		{name: "backend down", ready: func(context.Context) error { return down }, wantReady: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, tt.ready)
			env.expect(t, http.MethodGet, "/healthz", "", http.StatusOK)
			env.expect(t, http.MethodGet, "/readyz", "", tt.wantReady)
		})
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	env.expect(t, http.MethodGet, "/api/me", "", http.StatusUnauthorized)

	body := env.expect(t, http.MethodPost, "/api/auth/register",
		`{"email":"Ana@Example.com","password":"secret1","name":"Ana"}`, http.StatusCreated)
	if got := decode[userResponse](t, body).User.Email; got != "ana@example.com" {
		t.Errorf("registered email = %q, want lowercased", got)
	}

	env.expect(t, http.MethodPost, "/api/auth/register",
		`{"email":"ana@example.com","password":"secret1","name":"Ana"}`, http.StatusConflict)
	env.expect(t, http.MethodPost, "/api/auth/register",
		`{"email":"bob@example.com","password":"123","name":"Bob"}`, http.StatusUnprocessableEntity)
	env.expect(t, http.MethodPost, "/api/auth/register", `{"email":`, http.StatusBadRequest)
	env.expect(t, http.MethodPost, "/api/auth/login",
		`{"email":"ana@example.com","password":"wrong!"}`, http.StatusUnauthorized)

	resp, body := env.do(t, http.MethodPost, "/api/auth/login", `{"email":"ANA@example.com","password":"secret1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d (%s)", resp.StatusCode, body)
	}
	if got := resp.Header.Get(EventHeader); got != events.DataChanged {
		t.Errorf("%s = %q, want %q", EventHeader, got, events.DataChanged)
	}

	me := decode[userResponse](t, env.expect(t, http.MethodGet, "/api/me", "", http.StatusOK))
	if me.User.Name != "Ana" || me.User.ID == "" {
		t.Errorf("me = %+v", me.User)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", "")
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get(EventHeader) != events.DataChanged {
		t.Errorf("logout = %d, %s = %q", resp.StatusCode, EventHeader, resp.Header.Get(EventHeader))
	}
	env.expect(t, http.MethodGet, "/api/me", "", http.StatusUnauthorized)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", "")
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get(EventHeader) != "" {
		t.Errorf("second logout = %d, %s = %q", resp.StatusCode, EventHeader, resp.Header.Get(EventHeader))
	}
}

func TestGoogleSignInNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.expect(t, http.MethodPost, "/api/auth/google", `{"idToken":"x"}`, http.StatusServiceUnavailable)
}

func TestAnonymousAccess(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, path := range []string{"/api/habits", "/api/habits/logs", "/api/transactions"} {
		if got := strings.TrimSpace(string(env.expect(t, http.MethodGet, path, "", http.StatusOK))); got != "[]" {
			t.Errorf("GET %s = %s, want []", path, got)
		}
	}

	writes := []struct{ method, path, body string }{
		{http.MethodPost, "/api/habits", `{"title":"Read","goalPerWeek":3,"type":"check"}`},
		{http.MethodDelete, "/api/habits/h1", ""},
		{http.MethodPut, "/api/habits/h1/logs/2025-03-10", `{"done":true}`},
		{http.MethodPost, "/api/transactions", `{"type":"expense","category":"food","amount":5}`},
		{http.MethodPut, "/api/transactions/t1", `{"type":"expense","category":"food","amount":5}`},
		{http.MethodDelete, "/api/transactions/t1", ""},
		{http.MethodGet, "/api/events", ""},
	}
	for _, w := range writes {
		t.Run(w.method+" "+w.path, func(t *testing.T) {
			env.expect(t, w.method, w.path, w.body, http.StatusUnauthorized)
		})
	}
}

func TestHabitLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signUp(t, "ana@example.com")

	resp, body := env.do(t, http.MethodPost, "/api/habits", `{"title":"  Read  ","goalPerWeek":3,"type":"check"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", resp.StatusCode, body)
	}
	if resp.Header.Get(EventHeader) != events.DataChanged {
		t.Error("create habit response missing change header")
	}
	habit := decode[core.Habit](t, body)
	if habit.Title != "Read" || habit.ID == "" {
		t.Fatalf("habit = %+v", habit)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed json", http.MethodPost, "/api/habits", `{"title":`, http.StatusBadRequest},
		{"empty title", http.MethodPost, "/api/habits", `{"title":" ","goalPerWeek":3,"type":"check"}`, http.StatusUnprocessableEntity},
		{"bad type", http.MethodPost, "/api/habits", `{"title":"x","goalPerWeek":3,"type":"boolean"}`, http.StatusUnprocessableEntity},
		{"title too long", http.MethodPost, "/api/habits", `{"title":"` + strings.Repeat("a", 201) + `","goalPerWeek":3,"type":"check"}`, http.StatusUnprocessableEntity},
		{"log done", http.MethodPut, "/api/habits/" + habit.ID + "/logs/2025-03-10", `{"done":true}`, http.StatusOK},
		{"log again keeps one", http.MethodPut, "/api/habits/" + habit.ID + "/logs/2025-03-10", `{"done":false}`, http.StatusOK},
		{"log today", http.MethodPut, "/api/habits/" + habit.ID + "/logs/today", `{"done":true}`, http.StatusOK},
		{"log wrong shape", http.MethodPut, "/api/habits/" + habit.ID + "/logs/2025-03-10", `{"value":2}`, http.StatusUnprocessableEntity},
		{"log bad date", http.MethodPut, "/api/habits/" + habit.ID + "/logs/10-03-2025", `{"done":true}`, http.StatusUnprocessableEntity},
		{"log unknown habit", http.MethodPut, "/api/habits/missing/logs/2025-03-10", `{"done":true}`, http.StatusNotFound},
		{"dashboard default", http.MethodGet, "/api/dashboard", "", http.StatusOK},
		{"dashboard days", http.MethodGet, "/api/dashboard?days=30", "", http.StatusOK},
		{"dashboard not a number", http.MethodGet, "/api/dashboard?days=abc", "", http.StatusUnprocessableEntity},
		{"dashboard too many", http.MethodGet, "/api/dashboard?days=500", "", http.StatusUnprocessableEntity},
		{"dashboard zero days", http.MethodGet, "/api/dashboard?days=0", "", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.expect(t, tt.method, tt.path, tt.body, tt.want)
		})
	}

	logs := decode[[]core.HabitLog](t, env.expect(t, http.MethodGet, "/api/habits/logs", "", http.StatusOK))
	var onDay int
	for _, l := range logs {
		if l.Date.String() == "2025-03-10" {
			onDay++
			if l.Done == nil || *l.Done {
				t.Errorf("upserted log done = %v, want false", l.Done)
			}
		}
	}
	if onDay != 1 {
		t.Errorf("logs on 2025-03-10 = %d, want 1", onDay)
	}

	env.expect(t, http.MethodDelete, "/api/habits/"+habit.ID, "", http.StatusNoContent)
	env.expect(t, http.MethodDelete, "/api/habits/"+habit.ID, "", http.StatusNotFound)

	logs = decode[[]core.HabitLog](t, env.expect(t, http.MethodGet, "/api/habits/logs", "", http.StatusOK))
	if len(logs) != 0 {
		t.Errorf("logs after habit delete = %d, want 0", len(logs))
	}
}

func TestUsersAreIsolated(t *testing.T) {
	ana := newTestEnv(t, nil, nil)
	ana.signUp(t, "ana@example.com")
	habit := decode[core.Habit](t, ana.expect(t, http.MethodPost, "/api/habits",
		`{"title":"Read","goalPerWeek":3,"type":"check"}`, http.StatusCreated))

	// Same server, separate cookie jar.
	jar, _ := cookiejar.New(nil)
	bob := &testEnv{srv: ana.srv, client: &http.Client{Jar: jar}, bus: ana.bus}
	bob.signUp(t, "bob@example.com")

	if got := strings.TrimSpace(string(bob.expect(t, http.MethodGet, "/api/habits", "", http.StatusOK))); got != "[]" {
		t.Errorf("bob sees %s", got)
	}
	bob.expect(t, http.MethodDelete, "/api/habits/"+habit.ID, "", http.StatusNotFound)

	list := decode[[]core.Habit](t, ana.expect(t, http.MethodGet, "/api/habits", "", http.StatusOK))
	if len(list) != 1 {
		t.Errorf("ana habits = %d, want 1", len(list))
	}
}

func TestTransactions(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signUp(t, "ana@example.com")

	for _, body := range []string{
		`{"type":"income","category":"salary","amount":100,"date":"2025-03-01"}`,
		`{"type":"expense","category":"food","amount":"40,00","date":"2025-03-02"}`,
		`{"type":"income","category":"freelance","amount":"10.00","date":"2025-03-03"}`,
	} {
		env.expect(t, http.MethodPost, "/api/transactions", body, http.StatusCreated)
	}

	invalid := []struct {
		name string
		body string
		want int
	}{
		{"bad amount", `{"type":"expense","category":"food","amount":"abc"}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"type":"expense","category":"food","amount":0}`, http.StatusUnprocessableEntity},
		{"category of other kind", `{"type":"income","category":"food","amount":5}`, http.StatusUnprocessableEntity},
		{"bad date", `{"type":"expense","category":"food","amount":5,"date":"yesterday"}`, http.StatusUnprocessableEntity},
		{"long description", `{"type":"expense","category":"food","amount":5,"description":"` + strings.Repeat("x", 201) + `"}`, http.StatusUnprocessableEntity},
		{"not json", `amount=5`, http.StatusBadRequest},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			env.expect(t, http.MethodPost, "/api/transactions", tt.body, tt.want)
		})
	}

	txs := decode[[]core.Transaction](t, env.expect(t, http.MethodGet, "/api/transactions", "", http.StatusOK))
	if len(txs) != 3 {
		t.Fatalf("transactions = %d, want 3", len(txs))
	}

	overview := decode[core.FinanceOverview](t, env.expect(t, http.MethodGet, "/api/finance/summary?period=all", "", http.StatusOK))
	if got := overview.Summary.Balance.String(); got != "70" {
		t.Errorf("balance = %s, want 70", got)
	}
	env.expect(t, http.MethodGet, "/api/finance/summary?period=decade", "", http.StatusUnprocessableEntity)

	var food core.Transaction
	for _, tx := range txs {
		if tx.Category == core.Food {
			food = tx
		}
	}
	updated := decode[core.Transaction](t, env.expect(t, http.MethodPut, "/api/transactions/"+food.ID,
		`{"type":"expense","category":"food","amount":50,"date":"2025-03-02"}`, http.StatusOK))
	if updated.ID != food.ID || !updated.CreatedAt.Equal(food.CreatedAt) {
		t.Errorf("update changed identity: %+v", updated)
	}

	overview = decode[core.FinanceOverview](t, env.expect(t, http.MethodGet, "/api/finance/summary?period=all", "", http.StatusOK))
	if got := overview.Summary.Balance.String(); got != "60" {
		t.Errorf("balance after update = %s, want 60", got)
	}

	env.expect(t, http.MethodPut, "/api/transactions/missing",
		`{"type":"expense","category":"food","amount":5,"date":"2025-03-02"}`, http.StatusNotFound)
	env.expect(t, http.MethodDelete, "/api/transactions/"+food.ID, "", http.StatusNoContent)
	env.expect(t, http.MethodDelete, "/api/transactions/"+food.ID, "", http.StatusNotFound)
}

func TestAdvisor(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		body string
		want int
	}{
		{name: "not configured", body: `{"context":"c","systemPrompt":"p"}`, want: http.StatusServiceUnavailable},
		{name: "ok", gen: &fakeGenerator{text: "Keep going"}, body: `{"context":"c","systemPrompt":"p"}`, want: http.StatusOK},
		{name: "missing params", gen: &fakeGenerator{text: "x"}, body: `{}`, want: http.StatusUnprocessableEntity},
		{name: "upstream failure", gen: &fakeGenerator{err: fmt.Errorf("%w: status 500", advisor.ErrUpstream)}, body: `{"context":"c","systemPrompt":"p"}`, want: http.StatusBadGateway},
		{name: "empty upstream", gen: &fakeGenerator{err: advisor.ErrEmptyResponse}, body: `{"context":"c","systemPrompt":"p"}`, want: http.StatusBadGateway},
		{name: "unknown topic", gen: &fakeGenerator{text: "x"}, body: `{"topic":"weather"}`, want: http.StatusUnprocessableEntity},
		{name: "topic builds context", gen: &fakeGenerator{text: "Bien"}, body: `{"topic":"habits","lang":"es"}`, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gen advisor.Generator
			if tt.gen != nil {
				gen = tt.gen
			}
			env := newTestEnv(t, gen, nil)
			body := env.expect(t, http.MethodPost, "/api/advisor", tt.body, tt.want)
			if tt.want != http.StatusOK {
				if decode[errorBody](t, body).Error == "" {
					t.Errorf("error body missing message: %s", body)
				}
				return
			}
			if got := decode[advisorResponse](t, body).Response; got != tt.gen.text {
				t.Errorf("response = %q, want %q", got, tt.gen.text)
			}
			if tt.gen.gotContext == "" || tt.gen.gotPrompt == "" {
				t.Errorf("generator got empty params: %q / %q", tt.gen.gotContext, tt.gen.gotPrompt)
			}
		})
	}
}

func TestCurrency(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rates := decode[currency.Rates](t, env.expect(t, http.MethodGet, "/api/currency/rates?base=EUR", "", http.StatusOK))
	if rates.Base != "EUR" {
		t.Errorf("base = %q, want EUR", rates.Base)
	}
	env.expect(t, http.MethodGet, "/api/currency/rates?base=NOTACURRENCY", "", http.StatusUnprocessableEntity)

	known := decode[[]currency.Currency](t, env.expect(t, http.MethodGet, "/api/currency/known", "", http.StatusOK))
	if len(known) != len(currency.Known) {
		t.Errorf("known = %d currencies, want %d", len(known), len(currency.Known))
	}

	tests := []struct {
		name   string
		query  string
		want   int
		result string
	}{
		{name: "usd to eur", query: "amount=10&from=usd&to=EUR", want: http.StatusOK, result: "5"},
		{name: "eur to clp", query: "amount=1&from=EUR&to=CLP", want: http.StatusOK, result: "2000"},
		{name: "same currency", query: "amount=3,5&from=CLP&to=CLP", want: http.StatusOK, result: "3.5"},
		{name: "unknown currency", query: "amount=1&from=XYZ&to=USD", want: http.StatusUnprocessableEntity},
		{name: "bad amount", query: "amount=-1&from=USD&to=EUR", want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := env.expect(t, http.MethodGet, "/api/currency/convert?"+tt.query, "", tt.want)
			if tt.want != http.StatusOK {
				return
			}
			if got := decode[conversionResponse](t, body).Result.String(); got != tt.result {
				t.Errorf("result = %s, want %s", got, tt.result)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp, _ := env.do(t, http.MethodGet, "/api/habits", "")
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", core.ErrEmptyTitle), http.StatusUnprocessableEntity},
		{core.Habit{Title: strings.Repeat("a", 201), GoalPerWeek: 3, Type: core.HabitCheck}.Validate(), http.StatusUnprocessableEntity},
		{services.ErrInvalidDays, http.StatusUnprocessableEntity},
		{store.ErrUnreadable, http.StatusInternalServerError},
		{store.ErrNotFound, http.StatusNotFound},
		{identity.ErrEmailTaken, http.StatusConflict},
		{identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{advisor.ErrNotConfigured, http.StatusServiceUnavailable},
		{advisor.ErrUpstream, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := ErrorFor(tt.err).statusCode; got != tt.want {
				t.Errorf("ErrorFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
