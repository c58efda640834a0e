// Command taskstore runs the TaskStore HTTP service: task creation with
// two-stage deduplication, lifecycle transitions, and the fire-and-forget
// side effects those transitions trigger downstream in Ledger and on the bus.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/soms-platform/soms-core/internal/bus"
	"github.com/soms-platform/soms-core/internal/config"
	"github.com/soms-platform/soms-core/internal/httpmw"
	"github.com/soms-platform/soms-core/internal/logger"
	"github.com/soms-platform/soms-core/internal/observability"
	"github.com/soms-platform/soms-core/internal/taskstore"
	"github.com/soms-platform/soms-core/pkg/somssdk"
)

// walletAdapter satisfies taskstore.WalletClient over the ledger
// service's HTTP API: it looks up the zone's device-XP multiplier
// before crediting a task reward, the same way the oracle's dispatch
// decision looks up zone state before acting.
type walletAdapter struct {
	ledger *somssdk.LedgerClient
}

func (w *walletAdapter) GrantDeviceXP(ctx context.Context, zone string, xp int) error {
	return w.ledger.GrantDeviceXP(ctx, zone, int64(xp))
}

func (w *walletAdapter) PayTaskReward(ctx context.Context, userID, taskID, zone string, amountGold int) error {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil // no assignee recorded on this task; nothing to pay
	}
	multiplier, err := w.ledger.ZoneMultiplier(ctx, zone)
	if err != nil {
		multiplier = 1.0
	}
	adjusted := int64(float64(amountGold) * multiplier)
	_, err = w.ledger.TaskReward(ctx, id, taskID, adjusted)
	return err
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg, "taskstore")

	db, err := taskstore.OpenDB(cfg.TaskStoreDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open taskstore db")
	}
	defer db.Close()

	var publisher taskstore.Publisher
	natsBus, err := bus.Connect(cfg.NATSURL, log)
	if err != nil {
		log.Warn().Err(err).Msg("bus connect failed, task_report publishing disabled")
	} else {
		defer natsBus.Close()
		publisher = natsBus
	}

	ledgerClient := somssdk.NewLedgerClient(cfg.LedgerURL, cfg.InternalServiceKey, somssdk.WithTimeout(10*time.Second))

	dispatcher := taskstore.NewSideEffectDispatcher(log, publisher, &walletAdapter{ledger: ledgerClient}, taskstore.DefaultSideEffectDispatcherConfig())
	dispatcher.Start(context.Background())

	store := taskstore.New(db, log, dispatcher)

	metrics := observability.New(prometheus.DefaultRegisterer, "taskstore")

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
	r.Mount("/", store.Router())

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
		log.Info().Str("addr", cfg.Addr).Msg("taskstore listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	dispatcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("taskstore stopped gracefully")
	}
}
