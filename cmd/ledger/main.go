// Command ledger runs the Ledger HTTP service: double-entry wallet
// bookkeeping, monetary policy (fees, demurrage), and device XP/heartbeat
// rewards.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/soms-platform/soms-core/internal/config"
	"github.com/soms-platform/soms-core/internal/httpmw"
	"github.com/soms-platform/soms-core/internal/ledger"
	"github.com/soms-platform/soms-core/internal/logger"
	"github.com/soms-platform/soms-core/internal/observability"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg, "ledger")

	db, err := ledger.OpenDB(cfg.LedgerDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger db")
	}
	defer db.Close()

	l := ledger.New(db, log)

	demurrageInterval := time.Duration(86400) * time.Second
	if cfg.Env == "development" {
		demurrageInterval = time.Hour
	}
	ticker := ledger.NewDemurrageTicker(l, log, demurrageInterval)
	ticker.Start()

	metrics := observability.New(prometheus.DefaultRegisterer, "ledger")

	r := chi.NewRouter()
	r.Use(httpmw.RequestIDMiddleware)
	r.Use(httpmw.RequestLogger(log))
	r.Use(httpmw.Recoverer(log))
	r.Use(metrics.Middleware)
	r.Use(httpmw.BodySizeLimit(cfg.MaxBodyBytes))
	r.Use(httpmw.CORS(cfg.CORSAllowedOrigins))
	r.Use(httpmw.SecurityHeaders)
	auth := httpmw.NewAuthMiddleware(log, cfg.APIKeyHeader, cfg.APIKeys)
	r.Use(auth.Handler)
	rl := httpmw.NewRateLimiter(log, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	r.Use(rl.Handler)
	tm := httpmw.NewTimeoutMiddleware(cfg.DefaultTimeout)
	r.Use(tm.Handler)
	r.Handle("/metrics", observability.Handler())
	r.Mount("/", l.Router())

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("ledger listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ticker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("ledger stopped gracefully")
	}
}
