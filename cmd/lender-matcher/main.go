// cmd/lender-matcher/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"lender-matching/internal/api"
	"lender-matching/internal/common/camunda"
	"lender-matching/internal/common/config"
	"lender-matching/internal/common/database"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/observability"
	"lender-matching/internal/eligibility"
	"lender-matching/internal/oracle"
	"lender-matching/internal/services/evaluation"
	"lender-matching/internal/services/extraction"
	lendersvc "lender-matching/internal/services/lenders"
	"lender-matching/internal/store"

	sen "lender-matching/internal/workers/communication/send-eligibility-notification"
	ee "lender-matching/internal/workers/eligibility/evaluate-eligibility"
	elc "lender-matching/internal/workers/eligibility/extract-lender-criteria"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting lender matcher...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, cfg.Tracing, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startup := &camunda.RetryConfig{MaxRetries: 15, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

	var pg *database.PostgresClient
	err = camunda.RetryWithBackoff(ctx, startup, log, "PostgreSQL connection", func() error {
		var err error
		if pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
			return err
		}
		return pg.Ping(ctx)
	})
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pg.DB); err != nil {
			zapLog.Fatal("database migration failed", zap.Error(err))
		}
		zapLog.Info("Database migrations applied")
	}

	var redis *database.RedisClient
	err = camunda.RetryWithBackoff(ctx, startup, log, "Redis connection", func() error {
		var err error
		if redis, err = database.NewRedis(cfg.Database.Redis); err != nil {
			return err
		}
		return redis.Ping(ctx)
	})
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	var es *database.ElasticsearchClient
	err = camunda.RetryWithBackoff(ctx, startup, log, "Elasticsearch connection", func() error {
		var err error
		if es, err = database.NewElasticsearch(cfg.Database.Elasticsearch); err != nil {
			return err
		}
		return es.Ping(ctx)
	})
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	reportIndex := cfg.Database.Elasticsearch.ReportIndex
	if err := es.EnsureIndex(ctx, reportIndex, store.ReportIndexMapping); err != nil {
		zapLog.Warn("could not ensure report index", zap.String("index", reportIndex), zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	oracleClient := oracle.NewClient(oracle.ConfigFrom(cfg.Oracle), log)

	lenders := store.NewLenderStore(pg.DB, log)
	applications := store.NewApplicationStore(pg.DB, redis.Client,
		time.Duration(cfg.Eligibility.ApplicationCacheTTL)*time.Second, log)
	reports := store.NewReportStore(pg.DB, log)
	search := store.NewReportIndex(es.Client, reportIndex, log)

	coordinator := eligibility.NewCoordinator(
		eligibility.CoordinatorConfig{MaxConcurrency: cfg.Eligibility.MaxConcurrency},
		eligibility.NewEvaluator(oracleClient, log),
		log,
	)
	evaluationService := evaluation.NewService(
		evaluation.Config{LenderListLimit: cfg.Eligibility.LenderListLimit},
		lenders, applications, reports, search, coordinator, log,
	)
	extractionService := extraction.NewService(oracleClient, lenders, log)
	lenderService := lendersvc.NewService(lenders, log)

	var zeebe *camunda.Client
	var jobWorkers []worker.JobWorker
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.Connect(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		}, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		jobWorkers = startWorkers(cfg, zeebe, evaluationService, extractionService, log, zapLog)
	}

	readiness := map[string]api.Check{
		"postgres":      pg.Ping,
		"redis":         redis.Ping,
		"elasticsearch": es.Ping,
	}
	if zeebe != nil {
		readiness["zeebe"] = zeebe.HealthCheck
	}

	server := api.NewServer(api.Options{
		Evaluation:      evaluationService,
		Extraction:      extractionService,
		Lenders:         lenderService,
		ReadinessChecks: readiness,
		MaxUploadBytes:  int64(cfg.HTTP.MaxUploadSizeMB) << 20,
		Recorder:        obs,
		Logger:          log,
	})
	httpServer := &http.Server{
		Addr:         cfg.HTTP.ListenAddress,
		Handler:      server.Routes(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received, stopping...")
	case err := <-errCh:
		zapLog.Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	for _, jw := range jobWorkers {
		jw.Close()
		jw.AwaitClose()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	obs.Shutdown(shutdownCtx)

	zapLog.Info("Lender matcher stopped gracefully")
}

func startWorkers(cfg *config.Config, zeebe *camunda.Client, evaluationService *evaluation.Service,
	extractionService *extraction.Service, log logger.Logger, zapLog *zap.Logger) []worker.JobWorker {
	var started []worker.JobWorker
	start := func(taskType string, handler camunda.JobHandler) {
		if jw := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, log); jw != nil {
			started = append(started, jw)
		}
	}

	evaluateHandler, err := ee.NewHandler(ee.HandlerOptions{AppConfig: cfg, Service: evaluationService, Logger: log})
	if err != nil {
		zapLog.Fatal("failed to create evaluate-eligibility handler", zap.Error(err))
	}
	start(ee.TaskType, evaluateHandler)

	extractHandler, err := elc.NewHandler(elc.HandlerOptions{AppConfig: cfg, Service: extractionService, Logger: log})
	if err != nil {
		zapLog.Fatal("failed to create extract-lender-criteria handler", zap.Error(err))
	}
	start(elc.TaskType, extractHandler)

	if config.IsWorkerEnabled(cfg, sen.TaskType) {
		notifyHandler, err := sen.NewHandler(sen.HandlerOptions{AppConfig: cfg, Source: evaluationService, Logger: log})
		if err != nil {
			zapLog.Fatal("failed to create send-eligibility-notification handler", zap.Error(err))
		}
		start(sen.TaskType, notifyHandler)
	}

	zapLog.Info("Workers registered", zap.Int("count", len(started)))
	return started
}
