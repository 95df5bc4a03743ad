// Package sources implements LogSource CRUD, generalized from the
// teacher's crawl-source management service onto the spec's log-source
// entity: a remote SSH/SFTP/S3/GCS origin the Scheduler polls.
package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
)

// Service manages LogSource configurations over a SourceStore.
type Service struct {
	store  interfaces.SourceStore
	logger arbor.ILogger
}

func NewService(store interfaces.SourceStore, logger arbor.ILogger) *Service {
	return &Service{store: store, logger: logger}
}

// Create validates and persists a new LogSource, assigning an ID if the
// caller didn't provide one.
func (s *Service) Create(ctx context.Context, source *models.LogSource) error {
	if source.ID == "" {
		source.ID = uuid.New().String()
	}
	if err := validate(source); err != nil {
		return fmt.Errorf("source validation failed: %w", err)
	}
	if source.Status == "" {
		source.Status = models.SourceStatusActive
	}

	if err := s.store.Save(ctx, source); err != nil {
		return fmt.Errorf("save source: %w", err)
	}

	s.logger.Info().
		Str("id", source.ID).
		Str("site", source.Site).
		Str("type", string(source.Type)).
		Msg("log source created")

	return nil
}

// Update validates and re-persists an existing LogSource, preserving
// fields the Scheduler owns (LastFetchAt/Status/LastFetchError) unless
// the caller is explicitly updating them.
func (s *Service) Update(ctx context.Context, source *models.LogSource) error {
	if err := validate(source); err != nil {
		return fmt.Errorf("source validation failed: %w", err)
	}

	existing, err := s.store.Get(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("get existing source: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("source %q not found", source.ID)
	}
	if source.LastFetchAt == nil {
		source.LastFetchAt = existing.LastFetchAt
	}
	if source.Status == "" {
		source.Status = existing.Status
	}
	if source.LastFetchError == "" {
		source.LastFetchError = existing.LastFetchError
	}

	if err := s.store.Save(ctx, source); err != nil {
		return fmt.Errorf("save source: %w", err)
	}

	s.logger.Info().Str("id", source.ID).Msg("log source updated")
	return nil
}

// Get returns the source with its connection credentials redacted -
// callers needing raw credentials (the Fetcher) must go through
// SourceStore directly, never through this egress-facing service.
func (s *Service) Get(ctx context.Context, id string) (*models.LogSource, error) {
	source, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if source == nil {
		return nil, nil
	}
	redacted := source.Redacted()
	return &redacted, nil
}

// ListActive returns enabled sources with connection credentials
// redacted, for API/UI display.
func (s *Service) ListActive(ctx context.Context) ([]models.LogSource, error) {
	sources, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	out := make([]models.LogSource, len(sources))
	for i, src := range sources {
		out[i] = src.Redacted()
	}
	return out, nil
}

// Pause sets a source's status to paused, stopping the Scheduler from
// evaluating it on future ticks.
func (s *Service) Pause(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, models.SourceStatusPaused)
}

// Resume reactivates a paused source.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, models.SourceStatusActive)
}

func (s *Service) setStatus(ctx context.Context, id string, status models.SourceStatus) error {
	source, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}
	if source == nil {
		return fmt.Errorf("source %q not found", id)
	}
	source.Status = status
	if err := s.store.Save(ctx, source); err != nil {
		return fmt.Errorf("save source: %w", err)
	}
	s.logger.Info().Str("id", id).Str("status", string(status)).Msg("log source status changed")
	return nil
}

// RecordFetchResult updates a source's last-fetch bookkeeping after a
// Fetcher run, independent of the Scheduler's own LastFetchAt write
// (which happens before the fetch, per spec §5's ordering guarantee).
func (s *Service) RecordFetchResult(ctx context.Context, id string, fetchedAt time.Time, bytesFetched int64, fetchErr error) error {
	source, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}
	if source == nil {
		return fmt.Errorf("source %q not found", id)
	}

	source.LastFetchAt = &fetchedAt
	source.LastFetchedBytes = bytesFetched
	if fetchErr != nil {
		source.LastFetchStatus = "error"
		source.LastFetchError = fetchErr.Error()
	} else {
		source.LastFetchStatus = "success"
		source.LastFetchError = ""
	}

	return s.store.Save(ctx, source)
}

func validate(source *models.LogSource) error {
	if source.Site == "" {
		return fmt.Errorf("site is required")
	}
	switch source.Type {
	case models.SourceTypeSSH, models.SourceTypeSFTP, models.SourceTypeS3, models.SourceTypeGCS:
	default:
		return fmt.Errorf("unknown source type %q", source.Type)
	}
	switch source.ScheduleType {
	case models.ScheduleTypeInterval:
		if source.IntervalMinutes <= 0 {
			return fmt.Errorf("interval_minutes must be positive for interval schedules")
		}
	case models.ScheduleTypeCron:
		if source.CronExpression == "" {
			return fmt.Errorf("cron_expression is required for cron schedules")
		}
	default:
		return fmt.Errorf("unknown schedule type %q", source.ScheduleType)
	}
	return nil
}
