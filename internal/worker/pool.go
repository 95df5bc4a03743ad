// Package worker bridges the durable TaskQueue to the Fetcher and
// JobRunner: a small pool of goroutines that receive tasks, dispatch by
// name, and late-ack on success (spec §5's "parallel workers processing
// independent tasks from a durable queue").
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/common"
	"github.com/ternarybob/logsentinel/internal/fetcher"
	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
	"github.com/ternarybob/logsentinel/internal/pipeline"
	"github.com/ternarybob/logsentinel/internal/queue"
	"github.com/ternarybob/logsentinel/internal/sources"
)

const (
	taskFetchLogsFromSource = "fetch_logs_from_source"
	taskProcessJob          = "process_job"

	// extendInterval is how often a long-running task's visibility is
	// pushed out so the queue's timeout doesn't redeliver it mid-flight.
	extendInterval = 30 * time.Second
	extendBy       = 2 * time.Minute
)

// FetcherFactory builds the Fetcher variant for one LogSource. Production
// code uses buildFetcher; tests substitute a stub.
type FetcherFactory func(src models.LogSource, cfg common.FetcherConfig, logger arbor.ILogger) (fetcher.Fetcher, error)

// Pool runs Concurrency worker goroutines pulling from a TaskQueue.
type Pool struct {
	Queue       interfaces.TaskQueue
	Jobs        interfaces.JobStore
	SourceStore interfaces.SourceStore
	Objects     interfaces.ObjectStore
	SourcesSvc  *sources.Service
	Runner      *pipeline.JobRunner
	Clock       interfaces.Clock
	Logger      arbor.ILogger

	Concurrency    int
	PollInterval   time.Duration
	FetcherCfg     common.FetcherConfig
	LogFormats     map[string]string // site -> access-log format; a site that is absent or mapped to "" only receives error logs
	ErrorFormats   map[string]string // site -> error-log format
	BuildFetcher   FetcherFactory
}

// Run launches Concurrency workers, each blocking on ctx.Done() to stop.
func (p *Pool) Run(ctx context.Context) {
	concurrency := p.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if p.BuildFetcher == nil {
		p.BuildFetcher = buildFetcher
	}
	poll := p.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	for i := 0; i < concurrency; i++ {
		workerName := fmt.Sprintf("worker-%d", i)
		common.SafeGoWithContext(ctx, p.Logger, workerName, func() {
			p.loop(ctx, poll)
		})
	}
}

func (p *Pool) loop(ctx context.Context, poll time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.Queue.Receive(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrNoMessage) {
				p.Logger.Warn().Err(err).Msg("task queue receive failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(poll):
			}
			continue
		}

		p.dispatch(ctx, task)
	}
}

func (p *Pool) dispatch(ctx context.Context, task *interfaces.Task) {
	stopExtend := p.keepAlive(ctx, task.ID)
	defer stopExtend()

	var err error
	switch task.Name {
	case taskFetchLogsFromSource:
		err = p.handleFetch(ctx, task)
	case taskProcessJob:
		err = p.handleProcessJob(ctx, task)
	default:
		err = fmt.Errorf("unknown task %q", task.Name)
	}

	if err != nil {
		p.Logger.Error().Err(err).Str("task_id", task.ID).Str("task_name", task.Name).Msg("task failed, leaving for redelivery")
		return
	}

	if completeErr := p.Queue.Complete(ctx, task.ID); completeErr != nil {
		p.Logger.Error().Err(completeErr).Str("task_id", task.ID).Msg("failed to ack completed task")
	}
}

// keepAlive extends a task's visibility timeout on a ticker until the
// returned stop function is called, so a task that runs past the queue's
// default timeout isn't redelivered to another worker mid-flight.
func (p *Pool) keepAlive(ctx context.Context, taskID string) func() {
	done := make(chan struct{})
	common.SafeGoWithContext(ctx, p.Logger, "task-keepalive", func() {
		ticker := time.NewTicker(extendInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := p.Queue.Extend(ctx, taskID, extendBy); err != nil {
					p.Logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to extend task visibility")
				}
			}
		}
	})
	return func() { close(done) }
}

type fetchArgs struct {
	SourceID string `json:"source_id"`
}

// handleFetch pulls a due LogSource's files, writes each to the
// ObjectStore, creates a LogFile + Job row, and enqueues process_job.
func (p *Pool) handleFetch(ctx context.Context, task *interfaces.Task) error {
	var args fetchArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return fmt.Errorf("unmarshal fetch args: %w", err)
	}

	src, err := p.SourceStore.Get(ctx, args.SourceID)
	if err != nil {
		return fmt.Errorf("get source %s: %w", args.SourceID, err)
	}
	if src == nil {
		return fmt.Errorf("source %s not found", args.SourceID)
	}

	f, buildErr := p.BuildFetcher(*src, p.FetcherCfg, p.Logger)
	if buildErr != nil {
		p.recordFetchResult(ctx, args.SourceID, 0, buildErr)
		return fmt.Errorf("build fetcher for source %s: %w", args.SourceID, buildErr)
	}
	defer f.Cleanup()

	files, fetchErr := f.Fetch(ctx)
	if fetchErr != nil {
		p.recordFetchResult(ctx, args.SourceID, 0, fetchErr)
		return fmt.Errorf("fetch source %s: %w", args.SourceID, fetchErr)
	}

	var totalBytes int64
	now := p.Clock.Now()
	for _, file := range files {
		totalBytes += file.Size

		storageKey := fmt.Sprintf("logs/%s/%s-%s", src.Site, now.Format("20060102T150405"), file.Name)
		if err := p.Objects.Put(ctx, storageKey, file.Data); err != nil {
			return fmt.Errorf("put %s: %w", storageKey, err)
		}

		sum := sha256.Sum256(file.Data)
		logFile := &models.LogFile{
			ID:         uuid.New().String(),
			Site:       src.Site,
			Filename:   file.Name,
			Size:       file.Size,
			SHA256:     hex.EncodeToString(sum[:]),
			StorageKey: storageKey,
			Status:     models.LogFileStatusUploaded,
			UploadedAt: now,
		}
		if err := p.Jobs.SaveLogFile(ctx, logFile); err != nil {
			return fmt.Errorf("save log file %s: %w", storageKey, err)
		}

		job := &models.Job{
			ID:        uuid.New().String(),
			LogFileID: logFile.ID,
			Type:      p.jobTypeFor(src.Site, file.Name),
			Status:    models.JobStatusPending,
		}
		if err := p.Jobs.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("save job for log file %s: %w", storageKey, err)
		}

		jobArgs, err := json.Marshal(processJobArgs{JobID: job.ID})
		if err != nil {
			return fmt.Errorf("marshal process_job args: %w", err)
		}
		if _, err := p.Queue.Enqueue(ctx, taskProcessJob, jobArgs); err != nil {
			return fmt.Errorf("enqueue process_job for %s: %w", job.ID, err)
		}
	}

	p.recordFetchResult(ctx, args.SourceID, totalBytes, nil)
	return nil
}

func (p *Pool) recordFetchResult(ctx context.Context, sourceID string, bytesFetched int64, fetchErr error) {
	if p.SourcesSvc == nil {
		return
	}
	if err := p.SourcesSvc.RecordFetchResult(ctx, sourceID, p.Clock.Now(), bytesFetched, fetchErr); err != nil {
		p.Logger.Warn().Err(err).Str("source_id", sourceID).Msg("failed to record fetch result")
	}
}

// jobTypeFor decides whether a fetched file is an access log (JobTypeParse)
// or an application error log (JobTypeDetect): a site with no declared
// access-log format, or a filename containing "error", is routed to error
// grouping instead of the access-log pipeline.
func (p *Pool) jobTypeFor(site, filename string) models.JobType {
	if p.LogFormats[site] == "" {
		return models.JobTypeDetect
	}
	if strings.Contains(strings.ToLower(filename), "error") {
		return models.JobTypeDetect
	}
	return models.JobTypeParse
}

type processJobArgs struct {
	JobID string `json:"job_id"`
}

func (p *Pool) handleProcessJob(ctx context.Context, task *interfaces.Task) error {
	var args processJobArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return fmt.Errorf("unmarshal process_job args: %w", err)
	}
	return p.Runner.Run(ctx, args.JobID)
}
