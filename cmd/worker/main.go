package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/headline-ai/headline-server/internal/agent"
	"github.com/headline-ai/headline-server/internal/ai"
	"github.com/headline-ai/headline-server/internal/config"
	"github.com/headline-ai/headline-server/internal/db"
	"github.com/headline-ai/headline-server/internal/history"
	"github.com/headline-ai/headline-server/internal/store/redisstore"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("component", "worker").
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

	orch := agent.New(
		provider,
		agent.NewSearchClient(cfg.SerperAPIKey, cfg.FetchTimeout),
		agent.NewPageFetcher(cfg.FetchTimeout, cfg.FetchMaxBytes),
		rds,
		agent.Options{MaxResults: cfg.SearchMaxResults, MaxTurns: cfg.ChatContextWindowSize},
		log,
	)

	repo := history.NewRepo(gdb)
	svc := history.NewService(repo, orch, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial failed")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel failed")
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, nil); err != nil {
		log.Fatal().Err(err).Msg("queue declare failed")
	}

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos failed")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Error().Err(err).Int("worker", workerID).Msg("bad message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, m.JobID); err != nil {
					log.Error().Err(err).
						Int("worker", workerID).
						Str("job_id", m.JobID).
						Dur("cost", time.Since(start)).
						Msg("job failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Error().Err(err).Int("worker", workerID).Str("job_id", m.JobID).Msg("ack failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleJob(ctx context.Context, svc *history.Service, repo *history.Repo, jobID string) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	aiMsgID, err := svc.RunAgentTurnOnConversation(ctx, j.UserID, j.ConversationID, j.Query)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return repo.MarkJobSucceeded(ctx, jobID, aiMsgID)
}
