package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/headline-ai/headline-server/internal/agent"
	"github.com/headline-ai/headline-server/internal/ai"
	"github.com/headline-ai/headline-server/internal/config"
	"github.com/headline-ai/headline-server/internal/db"
	"github.com/headline-ai/headline-server/internal/history"
	"github.com/headline-ai/headline-server/internal/httpapi"
	"github.com/headline-ai/headline-server/internal/httpapi/handlers"
	"github.com/headline-ai/headline-server/internal/store/rabbitmq"
	"github.com/headline-ai/headline-server/internal/store/redisstore"
)

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := newLogger(cfg)

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AgentMemoryTTL)
	if err := rds.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connect failed")
	}

	provider, err := ai.NewRegistryFromConfig(cfg).Get(context.Background(), cfg.AIProvider, "")
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.AIProvider).Msg("ai provider init failed")
	}

	// The orchestrator is built once here and injected; no package globals.
	orch := agent.New(
		provider,
		agent.NewSearchClient(cfg.SerperAPIKey, cfg.FetchTimeout),
		agent.NewPageFetcher(cfg.FetchTimeout, cfg.FetchMaxBytes),
		rds,
		agent.Options{MaxResults: cfg.SearchMaxResults, MaxTurns: cfg.ChatContextWindowSize},
		log,
	)

	histSvc := history.NewService(history.NewRepo(gdb), orch, log)

	var rabbit *rabbitmq.Publisher
	rabbit, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, async agent route disabled")
		rabbit = nil
	} else {
		defer rabbit.Close()
	}

	h := handlers.NewHandler(gdb, cfg, histSvc, rds, rabbit, log)
	router := httpapi.NewRouter(h, cfg, log)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
