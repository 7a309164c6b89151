package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ssugameworks/invest-system-backend/internal/admin"
	"github.com/ssugameworks/invest-system-backend/internal/app"
	"github.com/ssugameworks/invest-system-backend/internal/auth"
	"github.com/ssugameworks/invest-system-backend/internal/comments"
	"github.com/ssugameworks/invest-system-backend/internal/config"
	"github.com/ssugameworks/invest-system-backend/internal/ledger"
	"github.com/ssugameworks/invest-system-backend/internal/limiter"
	"github.com/ssugameworks/invest-system-backend/internal/market"
	"github.com/ssugameworks/invest-system-backend/internal/metrics"
	"github.com/ssugameworks/invest-system-backend/internal/portfolio"
	"github.com/ssugameworks/invest-system-backend/internal/scheduler"
	"github.com/ssugameworks/invest-system-backend/internal/settings"
	"github.com/ssugameworks/invest-system-backend/internal/stream"
	"github.com/ssugameworks/invest-system-backend/internal/trade"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Log.Logger(os.Stdout)
	slog.SetDefault(logger)

	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		logger.Warn("auth.jwt_secret not set, using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	backend, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer backend.Close()
	st := backend.Store

	// --- Services ---
	var wg sync.WaitGroup
	hub := stream.NewHub(logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authSvc := auth.NewService(st, tokens, cfg.Game.InitialCapital, cfg.Auth.BcryptCost, logger)
	ledgerSvc := ledger.NewService(st, cfg.Game.InitialCapital, logger)
	portfolioSvc := portfolio.NewService(st)
	tradeSvc := trade.NewService(ledgerSvc, portfolioSvc, st, hub, logger)
	marketHandler := market.NewHandler(st, cfg.Game.HistoryWindow, logger)
	commentsHandler := comments.NewHandler(st, logger)

	pricingSrc := settings.NewSource(st, cfg.Pricing, logger)
	sched := scheduler.New(st, pricingSrc, logger,
		scheduler.WithPublisher(hub),
		scheduler.WithSpec(cfg.Scheduler.Spec),
	)
	if cfg.Scheduler.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil {
				logger.Error("price scheduler not started", "err", err)
			}
		}()
	} else {
		logger.Warn("price scheduler disabled")
	}

	var tradeLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		lim := limiter.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		wg.Add(1)
		go func() {
			defer wg.Done()
			lim.Run(ctx)
		}()
		tradeLimit = lim.Middleware
	}

	var inspector admin.TableInspector
	if backend.Pool != nil {
		inspector = admin.NewPGInspector(backend.Pool)
	}
	adminHandler := admin.NewHandler(cfg.Admin, admin.Deps{
		Tokens:    tokens,
		Store:     st,
		Settings:  pricingSrc,
		Recalc:    sched,
		Ledger:    ledgerSvc,
		Inspector: inspector,
		Logger:    logger,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"invest-system"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Long-lived; kept outside the request timeout.
		r.Get("/ws", hub.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
			auth.NewHandler(authSvc, tokens, logger).Routes(r)
			tradeSvc.Routes(r, tokens, tradeLimit)
			marketHandler.Routes(r)
			commentsHandler.Routes(r, tokens)
		})
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		adminHandler.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("invest-system listening", "port", cfg.Server.Port, "admin", cfg.Admin.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down invest-system...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	wg.Wait()
	fmt.Println("invest-system stopped")
}
