// Command voice runs the VoicePipeline HTTP service: text-to-speech
// synthesis, task announcements, and a pre-generated rejection-line
// stock kept topped up by an idle background generator.
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
	"github.com/soms-platform/soms-core/internal/llmclient"
	"github.com/soms-platform/soms-core/internal/logger"
	"github.com/soms-platform/soms-core/internal/observability"
	"github.com/soms-platform/soms-core/internal/voice"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg, "voice")

	db, err := voice.OpenDB(cfg.VoiceDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open voice db")
	}
	defer db.Close()

	audio, err := voice.NewAudioStore(cfg.VoiceAudioDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open audio store")
	}

	synth := voice.NewSynthClient(voice.SynthConfig{
		BaseURL: cfg.SynthBaseURL,
		APIKey:  cfg.SynthAPIKey,
	})

	llm := llmclient.New(llmclient.Config{
		BaseURL:           cfg.LLMBaseURL,
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		Timeout:           cfg.LLMTimeout,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
	})

	stock, err := voice.NewRejectionStock(audio)
	if err != nil {
		log.Fatal().Err(err).Msg("open rejection stock")
	}

	pipeline := voice.New(db, log, audio, synth, llm, stock)

	metrics := observability.New(prometheus.DefaultRegisterer, "voice")
	pipeline.SetMetrics(metrics)

	pipeline.StartGenerator(context.Background())

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
	// announce_with_completion chains two LLM calls and two synthesis
	// calls; its deadline has to cover all four.
	tm := httpmw.NewTimeoutMiddleware(2*cfg.LLMTimeout + 2*time.Minute)
	r.Use(tm.Handler)
	r.Handle("/metrics", observability.Handler())
	r.Mount("/", pipeline.Router())

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
		log.Info().Str("addr", cfg.Addr).Msg("voice listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	pipeline.StopGenerator()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("voice stopped gracefully")
	}
}
