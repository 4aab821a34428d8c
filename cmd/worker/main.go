package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"

	"reelsmith/internal/cancel"
	"reelsmith/internal/credits"
	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/infra/credentials"
	"reelsmith/internal/notify"
	"reelsmith/internal/orchestrator"
	"reelsmith/internal/providerset"
	"reelsmith/internal/repo"
	"reelsmith/internal/storage"
	"reelsmith/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare artifact storage")
	}
	creds := credentials.NewStore(runner)
	registry, err := providerset.Build(ctx, cfg, creds, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider registry")
	}

	var notifier notify.Notifier
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQPURL, cfg.NotifyQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect notification queue")
		}
		defer publisher.Close()
		notifier = publisher
	}

	pool, err := ants.NewPool(cfg.GlobalWorkerCap)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create worker pool")
	}
	defer pool.Release()

	jobs := repo.NewJobRepository(runner)
	ledger := credits.NewLedger(runner, logger)
	cancels := cancel.NewController(redisClient, runner)
	heartbeat := infra.NewHeartbeat(redisClient, cfg.HeartbeatTTL)

	orch := orchestrator.New(
		jobs, ledger, registry, cancels, heartbeat, notifier,
		orchestrator.NewLimiters(providerset.Names(registry), cfg.ProviderRatePerMin),
		pool, logger,
		orchestrator.Config{WorkersPerJob: cfg.WorkersPerJob, MaxItemAttempts: cfg.MaxItemAttempts},
	)

	sweep := sweeper.New(jobs, heartbeat, logger, cfg.StaleAfter, cfg.SweepInterval)
	go sweep.Run(ctx)

	logger.Info().
		Int("global_cap", cfg.GlobalWorkerCap).
		Int("per_job", cfg.WorkersPerJob).
		Msg("worker started")
	claimLoop(ctx, jobs, orch, logger, cfg.JobPollInterval)
	logger.Info().Msg("worker stopped")
}

// claimLoop polls for pending jobs and runs each claimed job on its own
// goroutine, so one long video job does not block image jobs queued behind
// it. In-flight jobs are drained before exit.
func claimLoop(ctx context.Context, jobs *repo.JobRepository, orch *orchestrator.Orchestrator, logger infra.Logger, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	var wg sync.WaitGroup
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
		}

		for {
			job, err := jobs.ClaimJob(ctx)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					logger.Error().Err(err).Msg("worker: claim failed")
				}
				break
			}
			logger.Info().
				Str("job_id", job.ID).
				Str("kind", string(job.Kind)).
				Int("items", job.TotalItems).
				Msg("worker: job claimed")
			wg.Add(1)
			go func(job *domain.Job) {
				defer wg.Done()
				if err := orch.Run(ctx, job); err != nil {
					logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: job run failed")
				}
			}(job)
		}
	}
}
