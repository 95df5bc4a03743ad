package models

import "time"

// SourceType is the transport a LogSource fetches over.
type SourceType string

const (
	SourceTypeSSH  SourceType = "ssh"
	SourceTypeSFTP SourceType = "sftp"
	SourceTypeS3   SourceType = "s3"
	SourceTypeGCS  SourceType = "gcs"
)

// SourceStatus is the operational state of a LogSource.
type SourceStatus string

const (
	SourceStatusActive SourceStatus = "active"
	SourceStatusPaused SourceStatus = "paused"
	SourceStatusError  SourceStatus = "error"
)

// ScheduleType selects how a LogSource's due time is evaluated.
type ScheduleType string

const (
	ScheduleTypeInterval ScheduleType = "interval"
	ScheduleTypeCron     ScheduleType = "cron"
)

// redactedFields lists the connection-config keys that must never appear
// in plaintext on egress (spec §6.4, §8 property 10).
var redactedFields = []string{"password", "private_key", "access_key_id", "secret_access_key"}

const redactedValue = "***REDACTED***"

// LogSource describes one remote log origin managed externally (e.g. via
// the sources CRUD service) and read by the Scheduler.
type LogSource struct {
	ID         string
	Site       string
	Type       SourceType
	Connection map[string]any

	ScheduleType     ScheduleType
	IntervalMinutes  int
	CronExpression   string

	Status SourceStatus

	LastFetchAt        *time.Time
	LastFetchStatus    string
	LastFetchError     string
	LastFetchedBytes   int64
}

// Redacted returns a copy of the source with sensitive connection fields
// replaced by the literal string "***REDACTED***". Safe for logging, API
// responses, and any other egress path.
func (s LogSource) Redacted() LogSource {
	cp := s
	cp.Connection = make(map[string]any, len(s.Connection))
	for k, v := range s.Connection {
		cp.Connection[k] = v
	}
	for _, field := range redactedFields {
		if _, ok := cp.Connection[field]; ok {
			cp.Connection[field] = redactedValue
		}
	}
	return cp
}
