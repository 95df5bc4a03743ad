package models

import "time"

// JobType selects which pipeline stages a Job runs.
type JobType string

const (
	JobTypeParse   JobType = "parse"
	JobTypeDetect  JobType = "detect"
	JobTypeAnomaly JobType = "anomaly"
	JobTypeExplain JobType = "explain"
)

// JobStatus is a Job's position in the state machine (§4.8).
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Progress milestones advanced, in order, before commit at each JobRunner
// stage so observers polling Job.Progress see monotonically
// non-decreasing values.
const (
	ProgressStart          = 0
	ProgressLocked         = 5
	ProgressLogFileLoaded  = 10
	ProgressFetched        = 20
	ProgressParsed         = 60
	ProgressAggregated     = 80
	ProgressAnomalyChecked = 90
	ProgressDone           = 100
)

// Job is the unit the JobRunner orchestrates end to end.
type Job struct {
	ID            string
	LogFileID     string
	Type          JobType
	Status        JobStatus
	Progress      int
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ResultSummary string
	ErrorMessage  string
}

// LogFileStatus is a LogFile's position in the ingest lifecycle.
type LogFileStatus string

const (
	LogFileStatusPendingUpload LogFileStatus = "pending_upload"
	LogFileStatusUploaded      LogFileStatus = "uploaded"
	LogFileStatusProcessing    LogFileStatus = "processing"
	LogFileStatusProcessed     LogFileStatus = "processed"
	LogFileStatusFailed        LogFileStatus = "failed"
)

// LogFile is one uploaded access/error log, whose transitions are gated
// by the JobRunner.
type LogFile struct {
	ID         string
	Site       string
	Filename   string
	Size       int64
	SHA256     string
	StorageKey string
	Status     LogFileStatus
	UploadedAt time.Time
}

// AggregateSnapshot is the persisted, read-back shape of one hourly
// bucket used as AnomalyDetector input (both baseline and target).
type AggregateSnapshot struct {
	Hour      time.Time
	Requests  int
	Status5xx int
	UniqueIPs int
	TopPaths  []CountItem
}
