package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/midopa-dept/python-code-judge-sub000/internal/config"
	amqpdelivery "github.com/midopa-dept/python-code-judge-sub000/internal/delivery/amqp"
	httpdelivery "github.com/midopa-dept/python-code-judge-sub000/internal/delivery/http"
	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/judge"
	"github.com/midopa-dept/python-code-judge-sub000/internal/pool"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository/postgres"
	redisrepo "github.com/midopa-dept/python-code-judge-sub000/internal/repository/redis"
	"github.com/midopa-dept/python-code-judge-sub000/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting judge worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	if err := postgres.EnsureSchema(ctx, dbPool); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL")

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	orchestrator, err := judge.Build(cfg.Judge, logger)
	if err != nil {
		logger.Fatal("Failed to initialize judge", zap.Error(err))
	}

	submissionRepo := postgres.NewPostgresSubmissionRepository(dbPool)
	idempotencyStore := redisrepo.NewRedisIdempotencyStore(redisClient)
	judgeUC := usecase.NewJudgeSubmissionUsecase(submissionRepo, idempotencyStore, orchestrator, logger).
		WithDefaults(cfg.Judge.Limits(), cfg.Judge.Options())

	jobsChan := make(chan *domain.JobMessage, cfg.Worker.PoolSize)

	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, jobsChan, cfg.Worker.PoolSize, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()

	publisher, err := amqpdelivery.NewPublisher(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AMQP publisher", zap.Error(err))
	}
	defer publisher.Close()
	logger.Info("Connected to RabbitMQ")

	gin.SetMode(cfg.Server.GinMode)
	healthHandler := httpdelivery.NewHealthHandler(map[string]httpdelivery.HealthCheck{
		"postgres": dbPool.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, logger)
	getUC := usecase.NewGetSubmissionUsecase(submissionRepo, logger)
	router := httpdelivery.NewRouter(httpdelivery.Handlers{
		Judge: httpdelivery.NewJudgeHandler(orchestrator, orchestrator.Analyzer(), cfg.Judge.Limits(), cfg.Judge.Options(), logger),
		Submission: httpdelivery.NewSubmissionHandler(
			usecase.NewSubmitSubmissionUsecase(submissionRepo, publisher, cfg.Judge.MaxSourceBytes, logger),
			getUC,
			logger,
		),
		Stream: httpdelivery.NewStreamHandler(getUC, 0, logger),
		Policy: httpdelivery.NewPolicyHandler(orchestrator.Policy()),
		Health: healthHandler,
	}, httpdelivery.RouterConfig{
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		RateLimit:       cfg.Server.RateLimit,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, jobsChan, judgeUC, logger)
	workerPool.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Start(gctx)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", zap.Error(err))
	}

	// In-flight submissions observe the cancelled context and finish.
	stop()
	workerPool.Stop()

	logger.Info("Worker stopped")
}
