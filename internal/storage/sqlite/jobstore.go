package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
	"github.com/ternarybob/logsentinel/internal/pipeline"
)

// JobStore implements interfaces.JobStore over a single-writer SQLite
// connection. mu serializes writes the same way the teacher's JobStorage
// does, since SQLite's single connection makes concurrent writers
// pointless to parallelize in-process.
type JobStore struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

func NewJobStore(db *DB, logger arbor.ILogger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

// retryOnConflict retries op once on a SQLITE_BUSY/"database is locked"
// error, matching the §7 policy for DBConflict ("retry transaction once;
// then surface").
func retryOnConflict(ctx context.Context, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if !isBusyError(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	return op()
}

func isBusyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func (s *JobStore) LockJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	var startedAt, completedAt sql.NullInt64
	var resultSummary, errorMessage sql.NullString

	row := s.db.db.QueryRowContext(ctx, `SELECT id, log_file_id, type, status, progress, started_at, completed_at, result_summary, error_message FROM jobs WHERE id = ?`, jobID)
	err := row.Scan(&job.ID, &job.LogFileID, &job.Type, &job.Status, &job.Progress, &startedAt, &completedAt, &resultSummary, &errorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.Wrap(pipeline.KindSchemaViolation, "job not found", pipeline.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}

	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		job.CompletedAt = &t
	}
	job.ResultSummary = resultSummary.String
	job.ErrorMessage = errorMessage.String

	return &job, nil
}

func (s *JobStore) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var startedAt, completedAt sql.NullInt64
	if job.StartedAt != nil {
		startedAt = sql.NullInt64{Int64: job.StartedAt.Unix(), Valid: true}
	}
	if job.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: job.CompletedAt.Unix(), Valid: true}
	}

	return retryOnConflict(ctx, func() error {
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO jobs (id, log_file_id, type, status, progress, started_at, completed_at, result_summary, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				log_file_id=excluded.log_file_id, type=excluded.type, status=excluded.status,
				progress=excluded.progress, started_at=excluded.started_at, completed_at=excluded.completed_at,
				result_summary=excluded.result_summary, error_message=excluded.error_message`,
			job.ID, job.LogFileID, job.Type, job.Status, job.Progress, startedAt, completedAt, job.ResultSummary, job.ErrorMessage)
		return err
	})
}

func (s *JobStore) GetLogFile(ctx context.Context, logFileID string) (*models.LogFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lf models.LogFile
	var uploadedAt int64

	row := s.db.db.QueryRowContext(ctx, `SELECT id, site, filename, size, sha256, storage_key, status, uploaded_at FROM log_files WHERE id = ?`, logFileID)
	err := row.Scan(&lf.ID, &lf.Site, &lf.Filename, &lf.Size, &lf.SHA256, &lf.StorageKey, &lf.Status, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get log file: %w", err)
	}
	lf.UploadedAt = time.Unix(uploadedAt, 0).UTC()
	return &lf, nil
}

func (s *JobStore) SaveLogFile(ctx context.Context, file *models.LogFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return retryOnConflict(ctx, func() error {
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO log_files (id, site, filename, size, sha256, storage_key, status, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				site=excluded.site, filename=excluded.filename, size=excluded.size, sha256=excluded.sha256,
				storage_key=excluded.storage_key, status=excluded.status, uploaded_at=excluded.uploaded_at`,
			file.ID, file.Site, file.Filename, file.Size, file.SHA256, file.StorageKey, file.Status, file.UploadedAt.Unix())
		return err
	})
}

// SaveAggregates writes one row per (site, log_file, hour) in a single
// transaction, satisfying the all-or-nothing rule in spec §5: external
// readers see either no rows or the full set.
func (s *JobStore) SaveAggregates(ctx context.Context, site, logFileID string, result *models.AggregationResult, topN int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return retryOnConflict(ctx, func() error {
		tx, err := s.db.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, bucket := range result.Buckets {
			dict := bucket.ToDict(topN)
			topJSON, err := json.Marshal(dict)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO aggregates (site, log_file_id, hour, requests, status_2xx, status_3xx, status_4xx, status_5xx, status_other, bytes, unique_ips, unique_paths, top_json)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(site, log_file_id, hour) DO UPDATE SET
					requests=excluded.requests, status_2xx=excluded.status_2xx, status_3xx=excluded.status_3xx,
					status_4xx=excluded.status_4xx, status_5xx=excluded.status_5xx, status_other=excluded.status_other,
					bytes=excluded.bytes, unique_ips=excluded.unique_ips, unique_paths=excluded.unique_paths, top_json=excluded.top_json`,
				site, logFileID, dict.Hour.Unix(), dict.Requests, dict.Status2xx, dict.Status3xx, dict.Status4xx, dict.Status5xx, dict.StatusOther,
				dict.Bytes, dict.UniqueIPs, dict.UniquePaths, string(topJSON)); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

func (s *JobStore) SaveFindings(ctx context.Context, site, logFileID string, findings []models.FindingCandidate) error {
	if len(findings) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return retryOnConflict(ctx, func() error {
		tx, err := s.db.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, f := range findings {
			evidenceJSON, err := json.Marshal(f.Evidence)
			if err != nil {
				return err
			}
			metadataJSON, err := json.Marshal(f.Metadata)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO findings (site, log_file_id, finding_type, severity, title, description, evidence_json, suggested_action, metadata_json, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				site, logFileID, f.FindingType, f.Severity, f.Title, f.Description, string(evidenceJSON), f.SuggestedAction, string(metadataJSON), time.Now().UTC().Unix()); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

// UpsertErrorGroup creates-or-updates the group atomically. group.OccurrenceCount
// is treated as an increment applied on top of whatever is already
// stored, not an absolute value - callers pass the count of occurrences
// newly inserted in this call, never a running total, so a redelivered
// job that inserts nothing yields a zero-increment no-op upsert.
func (s *JobStore) UpsertErrorGroup(ctx context.Context, group *models.ErrorGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolvedAt sql.NullInt64
	if group.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: group.ResolvedAt.Unix(), Valid: true}
	}
	var deploymentID sql.NullString
	if group.DeploymentID != nil {
		deploymentID = sql.NullString{String: *group.DeploymentID, Valid: true}
	}

	return retryOnConflict(ctx, func() error {
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO error_groups (site, fingerprint, error_type, canonical_message, first_seen, last_seen, occurrence_count, status, resolved_at, deployment_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(site, fingerprint) DO UPDATE SET
				error_type=excluded.error_type, canonical_message=excluded.canonical_message,
				first_seen=MIN(error_groups.first_seen, excluded.first_seen),
				last_seen=MAX(error_groups.last_seen, excluded.last_seen),
				occurrence_count=error_groups.occurrence_count + excluded.occurrence_count, status=excluded.status,
				resolved_at=excluded.resolved_at, deployment_id=excluded.deployment_id`,
			group.Site, group.Fingerprint, group.ErrorType, group.CanonicalMessage,
			group.FirstSeen.Unix(), group.LastSeen.Unix(), group.OccurrenceCount, group.Status, resolvedAt, deploymentID)
		return err
	})
}

// InsertErrorOccurrence inserts one occurrence, ignoring duplicates keyed
// on (group_fingerprint, timestamp, message) per the decided dedup
// policy. inserted is false when the row already existed.
func (s *JobStore) InsertErrorOccurrence(ctx context.Context, occ models.ErrorOccurrence) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contextJSON, err := json.Marshal(occ.Context)
	if err != nil {
		return false, err
	}

	var logFileID sql.NullString
	if occ.LogFileID != nil {
		logFileID = sql.NullString{String: *occ.LogFileID, Valid: true}
	}

	var inserted bool
	err = retryOnConflict(ctx, func() error {
		res, err := s.db.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO error_occurrences
				(group_fingerprint, site, log_file_id, timestamp, error_type, message, stack, file, line, function, request_url, request_method, ip, user, context_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			occ.GroupFingerprint, occ.Site, logFileID, occ.Timestamp.Unix(), occ.ErrorType, occ.Message, occ.Stack,
			occ.File, occ.Line, occ.Function, occ.RequestURL, occ.RequestMethod, occ.IP, occ.User, string(contextJSON))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// LoadBaselineSnapshots returns AggregateSnapshots for site with hour >=
// fromHour, ordered by hour ascending (spec §6.2).
func (s *JobStore) LoadBaselineSnapshots(ctx context.Context, site string, fromHour time.Time) ([]models.AggregateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT hour, requests, status_5xx, unique_ips, top_json FROM aggregates
		WHERE site = ? AND hour >= ? ORDER BY hour ASC`, site, fromHour.Unix())
	if err != nil {
		return nil, fmt.Errorf("load baseline snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.AggregateSnapshot
	for rows.Next() {
		var hourUnix int64
		var snap models.AggregateSnapshot
		var topJSON string
		if err := rows.Scan(&hourUnix, &snap.Requests, &snap.Status5xx, &snap.UniqueIPs, &topJSON); err != nil {
			return nil, err
		}
		snap.Hour = time.Unix(hourUnix, 0).UTC()

		var dict models.BucketDict
		if err := json.Unmarshal([]byte(topJSON), &dict); err == nil {
			snap.TopPaths = dict.TopPaths
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

var _ interfaces.JobStore = (*JobStore)(nil)
