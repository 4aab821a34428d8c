package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"

	"reelsmith/internal/cancel"
	"reelsmith/internal/credits"
	"reelsmith/internal/http/handlers"
	"reelsmith/internal/http/httpapi"
	"reelsmith/internal/infra"
	"reelsmith/internal/infra/credentials"
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
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	ctx := context.Background()
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

	jobs := repo.NewJobRepository(runner)
	ledger := credits.NewLedger(runner, logger)
	cancels := cancel.NewController(redisClient, runner)
	heartbeat := infra.NewHeartbeat(redisClient, cfg.HeartbeatTTL)
	creds := credentials.NewStore(runner)
	registry, err := providerset.Build(ctx, cfg, creds, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider registry")
	}

	// The API only submits and reads; the per-item machinery is driven by
	// the worker binary. The pool here exists to satisfy the orchestrator
	// wiring and stays idle.
	pool, err := ants.NewPool(cfg.GlobalWorkerCap)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create worker pool")
	}
	defer pool.Release()

	orch := orchestrator.New(
		jobs, ledger, registry, cancels, heartbeat, nil,
		orchestrator.NewLimiters(providerset.Names(registry), cfg.ProviderRatePerMin),
		pool, logger,
		orchestrator.Config{WorkersPerJob: cfg.WorkersPerJob, MaxItemAttempts: cfg.MaxItemAttempts},
	)
	sweep := sweeper.New(jobs, heartbeat, logger, cfg.StaleAfter, cfg.SweepInterval)

	app := &handlers.App{
		Jobs:      orch,
		Store:     jobs,
		Cancels:   cancels,
		Credits:   ledger,
		Accounts:  ledger,
		Sweeper:   sweep,
		Tokens:    creds,
		Artifacts: store,
		Logger:    logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultLocale:  cfg.DefaultLocale,
		Logger:         logger,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Run(runCtx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}
