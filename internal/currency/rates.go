package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tueje/internal/cache"
	applog "tueje/internal/log"
)

const defaultRatesURL = "https://api.exchangerate-api.com/v4/latest"

// Rates is one table of exchange rates relative to Base.
type Rates struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetchedAt"`
	// Fallback is set when the table is the built-in default.
	Fallback bool `json:"fallback"`
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	TTL        time.Duration
	// FallbackTTL is how long a default table is served before the
	// provider is tried again.
	FallbackTTL time.Duration
	CacheSize   int
}

// Service serves exchange rates with caching and request coalescing.
type Service struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.LRUCache[Rates]
	fallbacks  *cache.LRUCache[Rates]
	group      singleflight.Group
	now        func() time.Time
}

func NewService(opts Options) *Service {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultRatesURL
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	fallbackTTL := opts.FallbackTTL
	if fallbackTTL <= 0 {
		fallbackTTL = time.Minute
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 16
	}
	return &Service{
		baseURL:    base,
		httpClient: client,
		cache:      cache.NewLRUCache[Rates](size, ttl),
		fallbacks:  cache.NewLRUCache[Rates](size, fallbackTTL),
		now:        time.Now,
	}
}

// Cache exposes the rate caches so they can be swept with the others.
func (s *Service) Cache() cache.Cleaner { return s }

func (s *Service) CleanExpired() int {
	return s.cache.CleanExpired() + s.fallbacks.CleanExpired()
}

// Rates returns the table for a known base currency. Provider errors are
// logged and the default table, rebased onto base, is served for a short
// while instead.
func (s *Service) Rates(ctx context.Context, base string) (Rates, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = "USD"
	}
	if _, ok := Lookup(base); !ok {
		return Rates{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, base)
	}
	if r, ok := s.cache.Get(base); ok {
		return r, nil
	}
	if r, ok := s.fallbacks.Get(base); ok {
		return r, nil
	}

	v, err, _ := s.group.Do(base, func() (interface{}, error) {
		r, err := s.fetch(ctx, base)
		if err == nil {
			s.cache.Set(base, r)
			return r, nil
		}
		slog.WarnContext(ctx, "Exchange rates unavailable, using defaults",
			applog.FieldComponent, applog.ComponentCurrency,
			applog.FieldCurrency, base,
			applog.FieldError, err)
		table, terr := DefaultRatesFor(base)
		if terr != nil {
			return Rates{}, terr
		}
		fb := Rates{Base: base, Rates: table, FetchedAt: s.now(), Fallback: true}
		s.fallbacks.Set(base, fb)
		return fb, nil
	})
	if err != nil {
		return Rates{}, err
	}
	return v.(Rates), nil
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (s *Service) fetch(ctx context.Context, base string) (Rates, error) {
	endpoint := s.baseURL + "/" + url.PathEscape(base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Rates{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Rates{}, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Rates{}, fmt.Errorf("rates provider status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Rates{}, fmt.Errorf("decode rates: %w", err)
	}
	if len(body.Rates) == 0 {
		return Rates{}, fmt.Errorf("rates provider returned an empty table")
	}
	if body.Base == "" {
		body.Base = base
	}
	return Rates{Base: body.Base, Rates: body.Rates, FetchedAt: s.now()}, nil
}
