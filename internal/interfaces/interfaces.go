// Package interfaces declares the external collaborators the core
// pipeline consumes: ObjectStore, JobStore, Clock, TaskQueue, and the
// optional LLMService. The core never imports a concrete storage or
// transport package directly.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/logsentinel/internal/models"
)

// ObjectStore is the blob-storage collaborator (§6.1).
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, bool, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	EnsureBucket(ctx context.Context) error
}

// JobStore is the transactional persistence collaborator (§6.2).
type JobStore interface {
	LockJob(ctx context.Context, jobID string) (*models.Job, error)
	SaveJob(ctx context.Context, job *models.Job) error

	GetLogFile(ctx context.Context, logFileID string) (*models.LogFile, error)
	SaveLogFile(ctx context.Context, file *models.LogFile) error

	SaveAggregates(ctx context.Context, site, logFileID string, result *models.AggregationResult, topN int) error
	SaveFindings(ctx context.Context, site, logFileID string, findings []models.FindingCandidate) error

	UpsertErrorGroup(ctx context.Context, group *models.ErrorGroup) error
	InsertErrorOccurrence(ctx context.Context, occ models.ErrorOccurrence) (inserted bool, err error)

	// LoadBaselineSnapshots returns AggregateSnapshots for site with hour
	// >= fromHour, ordered by hour ascending.
	LoadBaselineSnapshots(ctx context.Context, site string, fromHour time.Time) ([]models.AggregateSnapshot, error)
}

// Clock returns the current UTC time. Production code uses a thin
// time.Now() wrapper; tests substitute a fixed or steppable clock.
type Clock interface {
	Now() time.Time
}

// SourceStore persists LogSource records. The Scheduler reads active
// sources each tick and writes back last_fetch_at before a fetch starts,
// per the ordering guarantee in spec §5.
type SourceStore interface {
	ListActive(ctx context.Context) ([]models.LogSource, error)
	Get(ctx context.Context, id string) (*models.LogSource, error)
	Save(ctx context.Context, source *models.LogSource) error
}

// TaskQueue is the durable, at-least-once, late-ack queue collaborator
// (§6.3).
type TaskQueue interface {
	Enqueue(ctx context.Context, taskName string, args []byte) (taskID string, err error)
	Receive(ctx context.Context) (*Task, error)
	Extend(ctx context.Context, taskID string, by time.Duration) error
	Complete(ctx context.Context, taskID string) error
}

// Task is one delivered message from the TaskQueue.
type Task struct {
	ID       string
	Name     string
	Args     []byte
	Attempts int
}

// LLMService is the optional, best-effort explain collaborator. Failures
// are tagged pipeline.KindLLMUnavailable (see llm.ExplainErrorGroup) and
// never propagate into the ingest pipeline.
type LLMService interface {
	Explain(ctx context.Context, prompt string) (string, error)
}
