package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tueje/internal/advisor"
	"tueje/internal/amqp"
	"tueje/internal/cache"
	"tueje/internal/cli"
	"tueje/internal/config"
	"tueje/internal/core"
	"tueje/internal/currency"
	"tueje/internal/events"
	apphttp "tueje/internal/http"
	"tueje/internal/identity"
	applog "tueje/internal/log"
	"tueje/internal/realtime"
	"tueje/internal/services"
	"tueje/internal/store"
)

const (
	shutdownTimeout  = 30 * time.Second
	janitorInterval  = time.Minute
	overviewCacheTTL = 5 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(applog.ComponentApp, (*config.Config).Validate)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	be, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	}()

	loc := cfg.Location()
	bus := events.NewBus()
	ids := identity.NewService(be.Store, identity.NewHasher(identity.DefaultHashParams()), bus)
	st := store.New(be.Store, ids, bus)

	overviews := cache.NewLRUCache[core.FinanceOverview](512, overviewCacheTTL)
	habits := services.NewHabitService(st, loc)
	finance := services.NewFinanceService(st, ids, overviews, loc)
	bus.Subscribe(finance.Invalidate)

	var gen advisor.Generator
	if cfg.GeminiAPIKey != "" {
		gen = advisor.NewClient(advisor.Options{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	} else {
		logger.Warn("GEMINI_API_KEY not set, advisor disabled")
	}

	rates := currency.NewService(currency.Options{BaseURL: cfg.ExchangeRatesURL, TTL: cfg.RatesTTL})
	janitor := cache.NewJanitor(overviews, rates.Cache())

	var verifier identity.TokenVerifier
	if cfg.GoogleClientID != "" {
		v, err := identity.NewGoogleVerifier(ctx, cfg.GoogleClientID)
		if err != nil {
			return err
		}
		verifier = v
	}

	hub := realtime.NewHub(cfg.CORSOrigins)
	bus.Subscribe(hub.Handle)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		CORSOrigins:  cfg.CORSOrigins,
		CookieSecure: cfg.CookieSecure,
		Logger:       logger,
	}, apphttp.Deps{
		Identity: ids,
		Sessions: identity.NewSessions(cfg.JWTSecret, cfg.SessionTTL),
		Verifier: verifier,
		Habits:   habits,
		Finance:  finance,
		Advisor:  services.NewAdvisorService(gen, habits, finance),
		Rates:    rates,
		Hub:      hub,
		Ready:    be.Ready,
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		// An empty queue name gives this instance its own exclusive queue.
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "")
		if err != nil {
			logger.Warn("AMQP unavailable, running without event relay", "error", err)
		} else {
			defer client.Close()
			relay := amqp.NewRelay(client, bus)
			bus.Subscribe(relay.Forward)
			g.Go(func() error { return relay.Run(gctx) })
			g.Go(func() error { return relay.Listen(gctx) })
			logger.Info("Event relay enabled", "exchange", cfg.AMQPExchange, "instance", relay.InstanceID())
		}
	}

	g.Go(func() error { return janitor.Run(gctx, janitorInterval) })
	g.Go(func() error { return srv.RateLimiter().Run(gctx) })
	g.Go(func() error {
		logger.Info("Starting tueje server", "port", cfg.Port, "backend", cfg.DataBackend, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
