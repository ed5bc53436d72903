package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tueje/internal/currency"
	"tueje/internal/identity"
	applog "tueje/internal/log"
	"tueje/internal/middleware/ratelimit"
	"tueje/internal/middleware/security"
	"tueje/internal/middleware/trace"
	"tueje/internal/realtime"
	"tueje/internal/services"
)

// RatesProvider serves exchange-rate tables.
type RatesProvider interface {
	Rates(ctx context.Context, base string) (currency.Rates, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Identity *identity.Service
	Sessions *identity.Sessions
	// Verifier is nil when federated sign-in is not configured.
	Verifier identity.TokenVerifier
	Habits   *services.HabitService
	Finance  *services.FinanceService
	Advisor  *services.AdvisorService
	Rates    RatesProvider
	Hub      *realtime.Hub
	// Ready reports whether the storage backend is reachable.
	Ready func(ctx context.Context) error
}

type Options struct {
	Addr         string
	CORSOrigins  []string
	CookieSecure bool
	Logger       *applog.Logger
	RateLimit    ratelimit.Config
}

type Server struct {
	http.Server
	deps        Deps
	opts        Options
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, deps Deps) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.FromContext(context.Background())
	}
	if opts.RateLimit.RequestsPerMinute == 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}

	s := &Server{
		deps:        deps,
		opts:        opts,
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		detector:    security.NewDetector(),
	}
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, s.opts.Logger).Middleware)
	r.Use(applog.Middleware(s.opts.Logger.WithComponent(applog.ComponentHTTP)))
	r.Use(applog.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", trace.RequestIDHeader},
		ExposedHeaders:   []string{EventHeader, trace.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
		}))
		r.Use(s.sessionMiddleware)

		auth := r.With(applog.ComponentMiddleware(applog.ComponentIdentity))
		auth.Post("/auth/register", s.handleRegister)
		auth.Post("/auth/login", s.handleLogin)
		auth.Post("/auth/logout", s.handleLogout)
		auth.Post("/auth/google", s.handleGoogleSignIn)
		auth.Get("/me", s.handleMe)

		r.Get("/habits", s.handleListHabits)
		r.Get("/habits/logs", s.handleListLogs)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/transactions", s.handleListTransactions)
		r.Get("/finance/summary", s.handleFinanceSummary)
		r.With(applog.ComponentMiddleware(applog.ComponentAdvisor)).Post("/advisor", s.handleAdvisor)

		fx := r.With(applog.ComponentMiddleware(applog.ComponentCurrency))
		fx.Get("/currency/rates", s.handleRates)
		fx.Get("/currency/convert", s.handleConvert)
		fx.Get("/currency/known", s.handleKnownCurrencies)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/habits", s.handleCreateHabit)
			r.Delete("/habits/{id}", s.handleDeleteHabit)
			r.Put("/habits/{id}/logs/{date}", s.handleLogDay)
			r.Post("/transactions", s.handleCreateTransaction)
			r.Put("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.With(applog.ComponentMiddleware(applog.ComponentRealtime)).Get("/events", s.handleEvents)
		})
	})

	return r
}

// Shutdown gracefully shuts down the server and its websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.deps.Hub != nil {
			s.deps.Hub.Close()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// RateLimiter exposes the limiter so its cleanup loop can be run.
func (s *Server) RateLimiter() *ratelimit.Limiter {
	return s.rateLimiter
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
