// Command logsentinel runs the ingest pipeline service: an HTTP admin
// surface is out of scope (spec §1), so this binary's job is to start the
// Scheduler tick, the worker pool, and serve until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/anomaly"
	"github.com/ternarybob/logsentinel/internal/clock"
	"github.com/ternarybob/logsentinel/internal/common"
	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/llm"
	"github.com/ternarybob/logsentinel/internal/pipeline"
	"github.com/ternarybob/logsentinel/internal/queue"
	"github.com/ternarybob/logsentinel/internal/scheduler"
	"github.com/ternarybob/logsentinel/internal/sources"
	"github.com/ternarybob/logsentinel/internal/storage/objectstore"
	"github.com/ternarybob/logsentinel/internal/storage/sqlite"
	"github.com/ternarybob/logsentinel/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	config, err := common.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := common.SetupLogger(config)
	defer common.Stop()

	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	common.PrintBanner(config, logger)

	if err := run(config, logger); err != nil {
		logger.Error().Err(err).Msg("logsentinel exited with error")
		os.Exit(1)
	}
}

func run(config *common.Config, logger arbor.ILogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(config.Storage.SQLite, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	jobStore := sqlite.NewJobStore(db, logger)
	sourceStore := sqlite.NewSourceStore(db, logger)
	sourcesSvc := sources.NewService(sourceStore, logger)

	taskQueue, err := queue.NewQueue(db.Raw(), config.Queue.QueueName, common.ParseDuration(config.Queue.VisibilityTimeout, 5*time.Minute))
	if err != nil {
		return fmt.Errorf("open task queue: %w", err)
	}

	objectStore, err := buildObjectStore(ctx, config.Storage.Object)
	if err != nil {
		return fmt.Errorf("build object store: %w", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to ensure object store bucket exists")
	}

	logFormats, errorFormats := siteFormats(config.Sites)

	sysClock := clock.System{}

	runner := pipeline.NewJobRunner(jobStore, objectStore, sysClock, logger, config.Aggregation.TopN, anomalyConfig(config), logFormats).
		WithErrorFormats(errorFormats)

	explainSvc := buildExplainService(config, logger)
	_ = explainSvc // wired for future use by an explain-on-demand task; the core ingest pipeline never calls it directly (spec §7)

	sched := scheduler.New(sourceStore, taskQueue, sysClock, logger)
	sched.Start(ctx)
	defer sched.Stop()

	pool := &worker.Pool{
		Queue:        taskQueue,
		Jobs:         jobStore,
		SourceStore:  sourceStore,
		Objects:      objectStore,
		SourcesSvc:   sourcesSvc,
		Runner:       runner,
		Clock:        sysClock,
		Logger:       logger,
		Concurrency:  config.Queue.Concurrency,
		PollInterval: common.ParseDuration(config.Queue.PollInterval, time.Second),
		FetcherCfg:   config.Fetcher,
		LogFormats:   logFormats,
		ErrorFormats: errorFormats,
	}
	pool.Run(ctx)

	<-ctx.Done()
	common.PrintShutdownBanner(logger)
	return nil
}

func anomalyConfig(config *common.Config) anomaly.Config {
	return anomaly.Config{
		BaselineDays:     config.Anomaly.BaselineDays,
		MinBaselineHours: config.Anomaly.MinBaselineHours,
		ZThreshold:       config.Anomaly.ZThreshold,
		NewPathMinCount:  config.Anomaly.NewPathMinCount,
	}
}

// buildObjectStore wires the internal blob-store adapter. Only "s3" is
// implemented as a concrete ObjectStore; GCS support exists only on the
// Fetcher's remote-pull side (internal/fetcher), since no spec component
// needs the pipeline's own artifact store to be GCS-backed.
func buildObjectStore(ctx context.Context, cfg common.ObjectStoreConfig) (interfaces.ObjectStore, error) {
	switch cfg.Provider {
	case "s3", "":
		return objectstore.NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported internal object store provider %q (only s3 is implemented)", cfg.Provider)
	}
}

// buildExplainService returns nil when LLM explain is disabled or
// misconfigured - a missing/invalid API key degrades the feature, it
// never blocks startup.
func buildExplainService(config *common.Config, logger arbor.ILogger) interfaces.LLMService {
	if !config.LLM.Enabled {
		return nil
	}
	svc, err := llm.New(config.LLM, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("llm explain disabled: invalid configuration")
		return nil
	}
	return svc
}

// siteFormats splits the declared Sites list into the access-log and
// error-log format lookups the JobRunner and worker pool need.
func siteFormats(sites []common.SiteConfig) (logFormats, errorFormats map[string]string) {
	logFormats = make(map[string]string, len(sites))
	errorFormats = make(map[string]string, len(sites))
	for _, s := range sites {
		if s.LogFormat != "" {
			logFormats[s.Name] = s.LogFormat
		}
		if s.ErrorFormat != "" {
			errorFormats[s.Name] = s.ErrorFormat
		}
	}
	return logFormats, errorFormats
}
