package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/PratikDhanave/login-pii-pipeline/internal/config"
	"github.com/PratikDhanave/login-pii-pipeline/internal/httpserver"
	"github.com/PratikDhanave/login-pii-pipeline/internal/ingest"
	"github.com/PratikDhanave/login-pii-pipeline/internal/logger"
	"github.com/PratikDhanave/login-pii-pipeline/internal/masking"
	"github.com/PratikDhanave/login-pii-pipeline/internal/metrics"
	"github.com/PratikDhanave/login-pii-pipeline/internal/queue"
	"github.com/PratikDhanave/login-pii-pipeline/internal/store"
)

// main boots the worker: config → salt → DB → schema → queue → HTTP → ingestion loop.
func main() {
	// Load runtime config from environment (DB_URL, SQS_QUEUE_URL, salt source).
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	// The salt may live in SSM or Secrets Manager instead of the environment.
	if cfg.SaltSource != config.SaltFromEnv {
		resolver, err := config.NewAWSSaltResolver(ctx, cfg.AWSRegion)
		if err != nil {
			return err
		}
		if err := resolver.ResolveSalt(ctx, &cfg); err != nil {
			return err
		}
	}
	masker, err := masking.New(cfg.Salt)
	if err != nil {
		return err
	}
	log.Info("masking salt loaded", zap.String("source", string(cfg.SaltSource)))

	// Connect to durable storage (Postgres) using a connection pool.
	connectOpts := store.DefaultConnectOptions()
	connectOpts.OnRetry = func(err error, remaining int) {
		log.Warn("failed to connect to database", zap.Int("retries_left", remaining), zap.Error(err))
	}
	db, err := store.NewPostgresStore(ctx, cfg.DBURL, connectOpts)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	sqsClient, err := queue.NewClient(ctx, cfg.AWSRegion, cfg.SQSEndpoint)
	if err != nil {
		return err
	}
	q, err := queue.NewSQSQueue(sqsClient, cfg.SQSQueueURL, cfg.SQSMaxMessages, cfg.SQSWaitSeconds)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	proc, err := ingest.NewProcessor(q, db, masker, ingest.Options{
		Logger:              log,
		Metrics:             m,
		ReceiveErrorBackoff: cfg.ReceiveErrorBackoff,
	})
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.HTTPAddr, httpserver.NewRouter(cfg.APIKeys, db, reg))
	srvErr := make(chan error, 1)
	go func() {
		log.Info("http server started", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	loopErr := make(chan error, 1)
	go func() { loopErr <- proc.Run(loopCtx) }()

	select {
	case err = <-srvErr:
		cancelLoop()
		<-loopErr
	case err = <-loopErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return err
}
