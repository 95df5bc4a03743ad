package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
)

// SourceStore implements interfaces.SourceStore over the log_sources
// table, serializing LogSource.Connection to JSON the same way aggregates
// serialize their top-K summaries.
type SourceStore struct {
	db     *DB
	logger arbor.ILogger
}

func NewSourceStore(db *DB, logger arbor.ILogger) *SourceStore {
	return &SourceStore{db: db, logger: logger}
}

func (s *SourceStore) ListActive(ctx context.Context) ([]models.LogSource, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, site, type, connection_json, schedule_type, interval_minutes, cron_expression, status, last_fetch_at, last_fetch_status, last_fetch_error, last_fetched_bytes
		FROM log_sources WHERE status = ?`, models.SourceStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	defer rows.Close()

	var out []models.LogSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *SourceStore) Get(ctx context.Context, id string) (*models.LogSource, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, site, type, connection_json, schedule_type, interval_minutes, cron_expression, status, last_fetch_at, last_fetch_status, last_fetch_error, last_fetched_bytes
		FROM log_sources WHERE id = ?`, id)

	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return &src, nil
}

func (s *SourceStore) Save(ctx context.Context, source *models.LogSource) error {
	connJSON, err := json.Marshal(source.Connection)
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}

	var lastFetchAt sql.NullInt64
	if source.LastFetchAt != nil {
		lastFetchAt = sql.NullInt64{Int64: source.LastFetchAt.Unix(), Valid: true}
	}

	return retryOnConflict(ctx, func() error {
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO log_sources (id, site, type, connection_json, schedule_type, interval_minutes, cron_expression, status, last_fetch_at, last_fetch_status, last_fetch_error, last_fetched_bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				site=excluded.site, type=excluded.type, connection_json=excluded.connection_json,
				schedule_type=excluded.schedule_type, interval_minutes=excluded.interval_minutes,
				cron_expression=excluded.cron_expression, status=excluded.status,
				last_fetch_at=excluded.last_fetch_at, last_fetch_status=excluded.last_fetch_status,
				last_fetch_error=excluded.last_fetch_error, last_fetched_bytes=excluded.last_fetched_bytes`,
			source.ID, source.Site, source.Type, string(connJSON), source.ScheduleType, source.IntervalMinutes,
			source.CronExpression, source.Status, lastFetchAt, source.LastFetchStatus, source.LastFetchError, source.LastFetchedBytes)
		return err
	})
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting Get and
// ListActive share one scan routine.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (models.LogSource, error) {
	var src models.LogSource
	var connJSON string
	var lastFetchAt sql.NullInt64
	var cronExpr, lastFetchStatus, lastFetchError sql.NullString

	err := row.Scan(&src.ID, &src.Site, &src.Type, &connJSON, &src.ScheduleType, &src.IntervalMinutes,
		&cronExpr, &src.Status, &lastFetchAt, &lastFetchStatus, &lastFetchError, &src.LastFetchedBytes)
	if err != nil {
		return models.LogSource{}, err
	}

	if err := json.Unmarshal([]byte(connJSON), &src.Connection); err != nil {
		return models.LogSource{}, fmt.Errorf("unmarshal connection: %w", err)
	}
	src.CronExpression = cronExpr.String
	src.LastFetchStatus = lastFetchStatus.String
	src.LastFetchError = lastFetchError.String
	if lastFetchAt.Valid {
		t := unixToTime(lastFetchAt.Int64)
		src.LastFetchAt = &t
	}
	return src, nil
}

var _ interfaces.SourceStore = (*SourceStore)(nil)
