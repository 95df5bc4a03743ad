// Package scheduler implements the Scheduler component (spec §4.7): a
// fixed 60-second tick that decides which LogSources are due for a fetch
// and enqueues fetch_logs_from_source tasks.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/common"
	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
)

const TickInterval = 60 * time.Second

const (
	minIntervalMinutes = 5
	maxIntervalMinutes = 7 * 24 * 60
)

// Report summarizes one scheduler tick.
type Report struct {
	Total     int
	Scheduled int
	Skipped   int
}

// Scheduler evaluates LogSources for due-ness and enqueues fetch tasks.
type Scheduler struct {
	sources interfaces.SourceStore
	queue   interfaces.TaskQueue
	clock   interfaces.Clock
	logger  arbor.ILogger

	cronParser cronlib.Parser
	stopCh     chan struct{}
}

// New builds a Scheduler. clock is injected so tests can control "now".
func New(sources interfaces.SourceStore, queue interfaces.TaskQueue, clock interfaces.Clock, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		sources:    sources,
		queue:      queue,
		clock:      clock,
		logger:     logger,
		cronParser: cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the fixed-cadence tick loop in a supervised goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	common.SafeGoWithContext(ctx, s.logger, "scheduler-tick", func() {
		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if _, err := s.Tick(ctx); err != nil {
					s.logger.Error().Err(err).Msg("scheduler tick failed")
				}
			}
		}
	})
}

// Stop halts the tick loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// Tick evaluates every active source once and enqueues fetch tasks for
// those that are due.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	sources, err := s.sources.ListActive(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list active sources: %w", err)
	}

	report := Report{Total: len(sources)}
	now := s.clock.Now()

	for i := range sources {
		src := sources[i]
		due, err := s.isDue(src, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("source_id", src.ID).Msg("failed to evaluate due time, skipping")
			report.Skipped++
			continue
		}
		if !due {
			report.Skipped++
			continue
		}

		// Update last_fetch_at BEFORE enqueuing so the next tick (which may
		// race a slow fetch) doesn't double-schedule the same source.
		src.LastFetchAt = &now
		if err := s.sources.Save(ctx, &src); err != nil {
			s.logger.Error().Err(err).Str("source_id", src.ID).Msg("failed to persist last_fetch_at")
			report.Skipped++
			continue
		}

		args, err := json.Marshal(fetchArgs{SourceID: src.ID})
		if err != nil {
			report.Skipped++
			continue
		}
		if _, err := s.queue.Enqueue(ctx, "fetch_logs_from_source", args); err != nil {
			s.logger.Error().Err(err).Str("source_id", src.ID).Msg("failed to enqueue fetch task")
			report.Skipped++
			continue
		}

		report.Scheduled++
	}

	return report, nil
}

type fetchArgs struct {
	SourceID string `json:"source_id"`
}

func (s *Scheduler) isDue(src models.LogSource, now time.Time) (bool, error) {
	if src.LastFetchAt == nil {
		return true, nil
	}

	switch src.ScheduleType {
	case models.ScheduleTypeCron:
		return s.isDueCron(src, now)
	default:
		return s.isDueInterval(src, now)
	}
}

func (s *Scheduler) isDueInterval(src models.LogSource, now time.Time) (bool, error) {
	minutes := src.IntervalMinutes
	if minutes < minIntervalMinutes {
		minutes = minIntervalMinutes
	}
	if minutes > maxIntervalMinutes {
		minutes = maxIntervalMinutes
	}
	elapsed := now.Sub(*src.LastFetchAt)
	return elapsed >= time.Duration(minutes)*time.Minute, nil
}

// isDueCron computes the real next-scheduled-time from the cron
// expression and compares it against now, replacing the placeholder
// "1 hour" rule spec §4.7 flags as provisional.
func (s *Scheduler) isDueCron(src models.LogSource, now time.Time) (bool, error) {
	schedule, err := s.cronParser.Parse(src.CronExpression)
	if err != nil {
		return false, fmt.Errorf("parse cron expression %q: %w", src.CronExpression, err)
	}
	next := schedule.Next(*src.LastFetchAt)
	return !now.Before(next), nil
}
