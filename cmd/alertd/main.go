package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/heat-advisory-service/internal/adapter/africastalking"
	httpadapter "github.com/couchcryptid/heat-advisory-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/heat-advisory-service/internal/adapter/kafka"
	"github.com/couchcryptid/heat-advisory-service/internal/adapter/knowledge"
	"github.com/couchcryptid/heat-advisory-service/internal/adapter/sqlitestore"
	"github.com/couchcryptid/heat-advisory-service/internal/adapter/textgen"
	"github.com/couchcryptid/heat-advisory-service/internal/adapter/tomorrowio"
	"github.com/couchcryptid/heat-advisory-service/internal/composer"
	"github.com/couchcryptid/heat-advisory-service/internal/config"
	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/evaluator"
	"github.com/couchcryptid/heat-advisory-service/internal/notifier"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
	"github.com/couchcryptid/heat-advisory-service/internal/pipeline"
	"github.com/couchcryptid/heat-advisory-service/internal/resolver"
)

// stageBatchSize bounds one cycle of the composer and notifier loops. The
// evaluator uses the configured forecast batch limit instead, since its
// batch size is the forecast-quota admission control.
const stageBatchSize = 10

const readerMaxWait = 500 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if cfg.Threshold.Bypass {
		metrics.ThresholdBypass.Set(1)
		logger.Warn("THRESHOLD BYPASS ACTIVE: every well-formed forecast observation will trigger an alert")
	}

	store, err := sqlitestore.New(cfg.RecipientDBPath, cfg.RecipientTable)
	if err != nil {
		logger.Error("failed to open recipient store", "error", err, "path", cfg.RecipientDBPath)
		os.Exit(1)
	}
	defer store.Close()

	forecasts := tomorrowio.NewClient(cfg.TomorrowAPIKey, cfg.TomorrowTimeout, metrics, logger)

	var retriever domain.SnippetRetriever
	if cfg.KnowledgeEnabled {
		retriever = knowledge.NewClient(cfg.KnowledgeBaseURL, cfg.KnowledgeBaseID, cfg.KnowledgeTimeout, metrics, logger)
		logger.Info("knowledge retrieval enabled", "base_id", cfg.KnowledgeBaseID)
	} else {
		logger.Info("knowledge retrieval disabled; advisories compose without supporting context")
	}

	generator := textgen.NewClient(cfg.TextGenURL, cfg.TextGenModelID, cfg.TextGenSystemPrompt, cfg.TextGenTimeout, logger)
	sender := africastalking.NewClient(cfg.ATAPIKey, cfg.ATUsername, cfg.ATSenderID, cfg.SMSTimeout, metrics, logger)

	locationWriter := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.LocationTopic, logger)
	resultWriter := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.ResultTopic, logger)
	notifyWriter := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.NotifyTopic, logger)

	locationReader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.LocationTopic, cfg.GroupID("evaluator"), readerMaxWait, logger)
	resultReader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.ResultTopic, cfg.GroupID("composer"), readerMaxWait, logger)
	notifyReader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.NotifyTopic, cfg.GroupID("notifier"), readerMaxWait, logger)
	// The dashboard poller consumes the notify topic in its own group so it
	// never competes with the notifier for messages.
	pollReader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.NotifyTopic, cfg.GroupID("dashboard"), readerMaxWait, logger)

	var marker notifier.AlertMarker
	if cfg.WritebackEnabled {
		marker = store
		logger.Info("last-alert write-back enabled")
	}

	stages := []*pipeline.Stage{
		pipeline.NewStage("evaluator", locationReader,
			evaluator.New(forecasts, cfg.Threshold, logger, metrics),
			resultWriter, cfg.ForecastBatchLimit, logger, metrics),
		pipeline.NewStage("composer", resultReader,
			composer.New(retriever, generator, logger, metrics),
			notifyWriter, stageBatchSize, logger, metrics),
		pipeline.NewStage("notifier", notifyReader,
			notifier.New(sender, marker, logger, metrics),
			nil, stageBatchSize, logger, metrics),
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, pipeline.MultiReadiness(stages), pollReader, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := resolver.New(store, locationWriter, cfg.ScanPageSize, logger, metrics)
	runScan := func() {
		if _, err := res.Run(ctx, ""); err != nil && ctx.Err() == nil {
			logger.Error("resolver scan failed", "error", err)
		}
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron(cfg.ResolverSchedule).Do(runScan); err != nil {
		logger.Error("invalid resolver schedule", "error", err, "schedule", cfg.ResolverSchedule)
		os.Exit(1)
	}
	scheduler.StartAsync()
	logger.Info("resolver scheduled", "schedule", cfg.ResolverSchedule)

	if cfg.ResolverRunOnStart {
		go runScan()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, stage := range stages {
		wg.Add(1)
		go func(s *pipeline.Stage) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				logger.Error("stage error", "error", err)
			}
		}(stage)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	scheduler.Stop()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, c := range []interface{ Close() error }{
		locationReader, resultReader, notifyReader, pollReader,
		locationWriter, resultWriter, notifyWriter,
	} {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
