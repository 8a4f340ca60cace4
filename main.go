package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"priceflow/config"
	"priceflow/internal/metrics"
	"priceflow/internal/pipeline"
	"priceflow/internal/validator"
	"priceflow/logger"
	"priceflow/models"
	"priceflow/processor"
	"priceflow/reader/alphavantage"
	"priceflow/storage"
	"priceflow/writer"
)

const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

func main() {
	log := logger.GetLogger()

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols, overrides configuration")
	flag.Parse()

	env := config.AppEnvironment()
	if !config.IsProductionLike(env) {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("Error loading .env file")
		}
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(exitFatal)
	}
	if *symbolsFlag != "" {
		cfg.Pipeline.Symbols = config.NormalizeSymbols(strings.Split(*symbolsFlag, ","))
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(exitFatal)
	}

	log.WithEnv("APP_ENV", "AWS_REGION").WithComponent("main").WithFields(logger.Fields{
		"service": cfg.Priceflow.Name,
		"version": cfg.Priceflow.Version,
		"env":     env,
		"symbols": cfg.Pipeline.Symbols,
	}).Info("starting priceflow")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, *cfg, log)
	stop()

	logger.LogReport(log)
	log.WithComponent("main").WithField("exit_code", code).Info("priceflow finished")
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, log *logger.Log) int {
	mlog := log.WithComponent("main")

	if cfg.Metrics.CloudWatch.Enabled {
		if err := metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace); err != nil {
			mlog.WithError(err).Warn("CloudWatch disabled")
		}
	}

	store, err := storage.Open(ctx, cfg.Storage.Postgres)
	if err != nil {
		mlog.WithError(err).Error("store unreachable")
		return exitFatal
	}
	defer store.Close()

	var opts []pipeline.Option
	if cfg.Storage.S3.Enabled {
		archive, err := writer.NewS3Archive(ctx, cfg)
		if err != nil {
			mlog.WithError(err).Error("failed to initialize archive")
			return exitFatal
		}
		opts = append(opts, pipeline.WithArchiver(archive))
	}

	orch := pipeline.New(cfg,
		alphavantage.NewClient(cfg.Provider),
		processor.NewNormalizer(cfg.Provider),
		store,
		opts...,
	)

	summary, err := orch.Run(ctx, cfg.Pipeline.Symbols)
	if err != nil {
		mlog.WithError(err).Error("run aborted before any symbol")
		return exitFatal
	}

	fresh, validationErr := validate(ctx, cfg, store, mlog)
	if validationErr == nil {
		cleanup(ctx, cfg.Storage.Postgres.Retention, store, mlog)
	}

	// Reporting must still happen after an interrupt.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	emitRunMetrics(log, summary, fresh)
	if cfg.Metrics.Pushgateway.Enabled {
		if err := metrics.PushRunMetrics(reportCtx, cfg.Metrics.Pushgateway.URL, cfg.Metrics.Pushgateway.Job, summary); err != nil {
			mlog.WithError(err).Warn("pushgateway push failed")
		}
	}
	if cfg.Notify.Kafka.Enabled {
		notify(reportCtx, cfg.Notify.Kafka, summary, mlog)
	}

	return exitCode(summary, validationErr)
}

// validate returns how many symbols have fresh rows; -1 when validation is
// disabled.
func validate(ctx context.Context, cfg config.Config, counter validator.Counter, log *logger.Entry) (int, error) {
	if !cfg.Validation.Enabled {
		return -1, nil
	}
	counts, err := validator.NewFreshness(counter).Validate(ctx, cfg.Pipeline.Symbols, cfg.Validation.Window)
	if err != nil {
		if errors.Is(err, validator.ErrNoFreshData) {
			log.WithError(err).Error("freshness validation failed")
		} else {
			log.WithError(err).Error("freshness validation could not run")
		}
		return 0, err
	}
	fresh := 0
	for _, n := range counts {
		if n > 0 {
			fresh++
		}
	}
	return fresh, nil
}

type rowDeleter interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func cleanup(ctx context.Context, retention time.Duration, store rowDeleter, log *logger.Entry) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := store.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.WithError(err).Warn("retention cleanup failed")
		return
	}
	log.WithFields(logger.Fields{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	}).Info("retention cleanup done")
}

// emitRunMetrics publishes run totals. String fields become CloudWatch
// dimensions, so nothing run-specific goes into them.
func emitRunMetrics(log *logger.Log, summary *models.RunSummary, fresh int) {
	fields := func(unit string) logger.Fields {
		return logger.Fields{"unit": unit}
	}
	metrics.EmitMetric(log, "main", "rows_written", float64(summary.TotalRows), fields("count"))
	metrics.EmitMetric(log, "main", "symbols_succeeded", float64(len(summary.Succeeded)), fields("count"))
	metrics.EmitMetric(log, "main", "symbols_failed", float64(len(summary.Failed)), fields("count"))
	metrics.EmitMetric(log, "main", "fetch_attempts", float64(summary.FetchAttempts), fields("count"))
	metrics.EmitMetric(log, "main", "entries_skipped", float64(summary.EntriesSkipped), fields("count"))
	metrics.EmitMetric(log, "main", "run_duration_ms", float64(summary.Duration().Milliseconds()), fields("milliseconds"))
	if fresh >= 0 {
		metrics.EmitMetric(log, "main", "fresh_symbols", float64(fresh), fields("count"))
	}
}

func notify(ctx context.Context, cfg config.KafkaConfig, summary *models.RunSummary, log *logger.Entry) {
	n, err := writer.NewRunNotifier(cfg)
	if err != nil {
		log.WithError(err).Warn("run notifier unavailable")
		return
	}
	defer n.Close()
	if err := n.Notify(ctx, summary); err != nil {
		log.WithError(err).Warn("run notification failed")
	}
}

// exitCode maps the run outcome to the process status: validation failure is
// fatal, any failed symbol is partial.
func exitCode(summary *models.RunSummary, validationErr error) int {
	switch {
	case validationErr != nil:
		return exitFatal
	case summary == nil:
		return exitFatal
	case summary.HasFailures():
		return exitPartial
	default:
		return exitOK
	}
}
