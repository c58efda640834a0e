// Command brain runs the ReAct cycle: it watches WorldModel state and
// task reports, decides what to do about them, and carries out
// create_task/send_device_command/speak tool calls through TaskStore,
// device MCP agents, and VoicePipeline.
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
	"github.com/redis/go-redis/v9"

	"github.com/soms-platform/soms-core/internal/brain"
	"github.com/soms-platform/soms-core/internal/bus"
	"github.com/soms-platform/soms-core/internal/config"
	"github.com/soms-platform/soms-core/internal/httpmw"
	"github.com/soms-platform/soms-core/internal/llmclient"
	"github.com/soms-platform/soms-core/internal/logger"
	"github.com/soms-platform/soms-core/internal/observability"
	"github.com/soms-platform/soms-core/internal/redisclient"
	"github.com/soms-platform/soms-core/internal/scheduler"
	"github.com/soms-platform/soms-core/internal/worldmodel"
	"github.com/soms-platform/soms-core/pkg/somssdk"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg, "brain")

	natsBus, err := bus.Connect(cfg.NATSURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("bus connect failed, brain cannot run without it")
	}
	defer natsBus.Close()

	var redisCli *redisclient.Client
	if rc, err := redisclient.New(cfg.RedisURL); err != nil {
		log.Warn().Err(err).Msg("redis client init failed, sanitizer counters stay in-memory only")
	} else if err := rc.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, sanitizer counters stay in-memory only")
	} else {
		redisCli = rc
		defer redisCli.Close()
	}

	llm := llmclient.New(llmclient.Config{
		BaseURL:           cfg.LLMBaseURL,
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		Timeout:           cfg.LLMTimeout,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
	})

	world := worldmodel.New(log)
	queue := scheduler.NewQueue()

	taskstoreClient := somssdk.NewTaskStoreClient(cfg.TaskStoreURL, cfg.InternalServiceKey, somssdk.WithTimeout(10*time.Second))
	voiceClient := somssdk.NewVoiceClient(cfg.VoiceURL, cfg.InternalServiceKey, somssdk.WithTimeout(30*time.Second))

	var sanitizerRedis *redis.Client
	if redisCli != nil {
		sanitizerRedis = redisCli.Raw()
	}
	sanitizer := brain.NewSanitizer(log, cfg.DeviceAgentAllowList, cfg.DeviceAgentPrefix, sanitizerRedis)

	mcp := brain.NewMCPBridge(natsBus, log)
	if err := mcp.Start(); err != nil {
		log.Fatal().Err(err).Msg("mcp bridge start failed")
	}

	executor := brain.NewToolExecutor(taskstoreClient, voiceClient, mcp, sanitizer, queue, world)
	history := brain.NewActionHistory()

	b := brain.New(log, llm, world, queue, taskstoreClient, executor, history, natsBus, brain.Config{
		CycleInterval:       cfg.CycleInterval,
		MinCycleInterval:    cfg.MinCycleInterval,
		BatchWindow:         cfg.BatchWindow,
		ReactMaxIterations:  cfg.ReactMaxIterations,
		MaxSpeakPerCycle:    cfg.MaxSpeakPerCycle,
		MaxConsecutiveError: cfg.MaxConsecutiveError,
	})

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := b.SeedQueue(seedCtx); err != nil {
		log.Warn().Err(err).Msg("seed queue failed, starting with an empty dispatch queue")
	}
	seedCancel()

	metrics := observability.New(prometheus.DefaultRegisterer, "brain")
	b.SetMetrics(metrics)

	runCtx, cancelRun := context.WithCancel(context.Background())
	go func() {
		if err := b.Run(runCtx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("brain run loop exited")
		}
	}()

	r := chi.NewRouter()
	r.Use(httpmw.RequestIDMiddleware)
	r.Use(httpmw.RequestLogger(log))
	r.Use(httpmw.Recoverer(log))
	r.Use(metrics.Middleware)
	r.Use(httpmw.BodySizeLimit(cfg.MaxBodyBytes))
	r.Use(httpmw.CORS(cfg.CORSAllowedOrigins))
	r.Use(httpmw.SecurityHeaders)
	r.Handle("/metrics", observability.Handler())
	r.Mount("/admin", b.AdminRouter())

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
		log.Info().Str("addr", cfg.Addr).Msg("brain admin surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	cancelRun()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("brain stopped gracefully")
	}
}
