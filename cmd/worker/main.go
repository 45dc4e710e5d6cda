package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/finbatch/internal/app"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/dispatch"
	"github.com/odyssey-erp/finbatch/internal/feedback"
	jobmetrics "github.com/odyssey-erp/finbatch/internal/jobs"
	"github.com/odyssey-erp/finbatch/internal/observability"
	"github.com/odyssey-erp/finbatch/internal/platform/bucket"
	"github.com/odyssey-erp/finbatch/internal/platform/cache"
	"github.com/odyssey-erp/finbatch/internal/platform/db"
	"github.com/odyssey-erp/finbatch/internal/platform/queue"
	"github.com/odyssey-erp/finbatch/jobs"
)

// noopPublisher stands in when no notification topic is configured.
type noopPublisher struct {
	log *slog.Logger
}

func (p noopPublisher) Publish(_ context.Context, payload any) error {
	p.log.Warn("notification topic not configured, dropping event", "payload", payload)
	return nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	transport, err := bucket.New(ctx, cfg.BucketName, cfg.BucketCredentialsJSON)
	if err != nil {
		logger.Error("connect bucket", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("bucket close", slog.Any("error", err))
		}
	}()

	var publisher feedback.Publisher = noopPublisher{log: logger}
	if cfg.PubSubProjectID != "" {
		p, err := queue.New(ctx, cfg.PubSubProjectID, cfg.AccountMailerTopic, cfg.BucketCredentialsJSON)
		if err != nil {
			logger.Error("connect pubsub", slog.Any("error", err))
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	}

	cons := cgi.Constants{
		FeederNumber:      cfg.CGIFeederNumber,
		MinistryPrefix:    cfg.CGIMinistryPrefix,
		MessageVersion:    cfg.CGIMessageVersion,
		EJVSupplierNumber: cfg.CGIEJVSupplierNumber,
		TriggerSuffix:     cfg.CGITriggerSuffix,

		APSupplierNumber:   cfg.CGIAPSupplierNumber,
		APSupplierLocation: cfg.CGIAPSupplierLocation,
		APDistribution:     cfg.CGIAPDistribution,
		APRemittanceCode:   cfg.CGIAPRemittanceCode,

		BCASupplierNumber:   cfg.BCASupplierNumber,
		BCASupplierLocation: cfg.BCASupplierLocation,
		EFTAPDistribution:   cfg.EFTAPDistribution,
	}

	dispatchSvc := dispatch.NewService(pool, transport, cons, dispatch.Config{
		ProcessingFolder:       cfg.BucketFolderProcessing,
		DisbursementDesc:       cfg.CGIDisbursementDesc,
		TransferDesc:           cfg.EFTTransferDesc,
		EFTHoldingGL:           cfg.EFTHoldingGL,
		RegistryClientCode:     cfg.CGIBCRegClientCode,
		NonGovPartnerCode:      cfg.NonGovPartnerCode,
		NonGovDistributionName: cfg.NonGovDistributionName,
	}, logger)

	feedbackSvc := feedback.NewService(pool, transport, publisher, feedback.Config{
		FeedbackFolder:     cfg.BucketFolderFeedback,
		RegistryClientCode: cfg.CGIBCRegClientCode,
		DisableErrorEmail:  cfg.DisableErrorEmail,
	}, logger)

	metrics := observability.NewMetrics()
	taskMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	tasks := jobs.NewTasks(dispatchSvc, feedbackSvc, transport, redisClient, taskMetrics, cfg.BucketFolderProcessed, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers:  tasks.Handlers(),
		Cron:      tasks.Cron(jobs.DefaultCronSchedule()),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	jobs.NewHandler(inspector, logger).MountRoutes(router)

	admin := &http.Server{Addr: cfg.AdminAddr, Handler: router}
	go func() {
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
