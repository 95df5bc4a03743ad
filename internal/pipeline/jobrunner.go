package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/aggregator"
	"github.com/ternarybob/logsentinel/internal/anomaly"
	"github.com/ternarybob/logsentinel/internal/errorparser"
	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
	"github.com/ternarybob/logsentinel/internal/parser"
	"github.com/ternarybob/logsentinel/internal/security"
)

// baselineDays is how far back LoadBaselineSnapshots looks relative to the
// target hour, mirroring anomaly.DefaultConfig().BaselineDays.
const baselineDays = 7

// JobRunner orchestrates parse -> aggregate -> detect -> persist for a
// single log file, driving the Job state machine described in spec §4.8.
type JobRunner struct {
	jobs    interfaces.JobStore
	objects interfaces.ObjectStore
	clock   interfaces.Clock
	logger  arbor.ILogger

	topN              int
	anomalyCfg        anomaly.Config
	formatByType      map[string]string // site access-log format lookup, keyed by site
	errorFormatByType map[string]string // site error-log format lookup, keyed by site
}

// NewJobRunner builds a JobRunner. formatByType maps a site name to its
// declared access-log parser format (nginx_combined/apache_combined).
func NewJobRunner(jobs interfaces.JobStore, objects interfaces.ObjectStore, clock interfaces.Clock, logger arbor.ILogger, topN int, anomalyCfg anomaly.Config, formatByType map[string]string) *JobRunner {
	return &JobRunner{
		jobs:         jobs,
		objects:      objects,
		clock:        clock,
		logger:       logger,
		topN:         topN,
		anomalyCfg:   anomalyCfg,
		formatByType: formatByType,
	}
}

// WithErrorFormats attaches the site -> error-log-format lookup used by
// runErrorLog (python/javascript/java/http/apache/auto). Returns the
// receiver for chaining at construction time.
func (r *JobRunner) WithErrorFormats(errorFormatByType map[string]string) *JobRunner {
	r.errorFormatByType = errorFormatByType
	return r
}

// resultSummary is the compact JSON persisted into Job.ResultSummary.
type resultSummary struct {
	TotalLines    int      `json:"total_lines"`
	ParsedEvents  int      `json:"parsed_events"`
	FailedLines   int      `json:"failed_lines"`
	EmptyLines    int      `json:"empty_lines"`
	BucketCount   int      `json:"bucket_count"`
	FindingCount  int      `json:"finding_count"`
	AnomalyCount  int      `json:"anomaly_count"`
	FindingTypes  []string `json:"finding_types,omitempty"`
}

// Run executes the full parse job state machine for jobID. On any
// Kind-tagged failure it rolls the job and log file back to failed and
// re-raises so the queue's retry policy can decide redelivery, per §4.8's
// "on exception at any step" clause.
func (r *JobRunner) Run(ctx context.Context, jobID string) (err error) {
	job, err := r.jobs.LockJob(ctx, jobID)
	if err != nil {
		return Wrap(KindSchemaViolation, "lock job", ErrJobNotFound)
	}

	now := r.clock.Now()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &now
	job.Progress = models.ProgressLocked
	if err := r.jobs.SaveJob(ctx, job); err != nil {
		return Wrap(KindDBConflict, "save job after lock", err)
	}

	var logFile *models.LogFile
	defer func() {
		if err != nil {
			r.failJob(ctx, job, logFile, err)
		}
	}()

	logFile, err = r.jobs.GetLogFile(ctx, job.LogFileID)
	if err != nil || logFile == nil {
		err = Wrap(KindStorageMissing, "load log file", ErrLogFileNotFound)
		return err
	}
	logFile.Status = models.LogFileStatusProcessing
	job.Progress = models.ProgressLogFileLoaded
	if saveErr := r.jobs.SaveLogFile(ctx, logFile); saveErr != nil {
		err = Wrap(KindDBConflict, "save log file processing", saveErr)
		return err
	}

	if job.Type == models.JobTypeDetect {
		err = r.runErrorLog(ctx, job, logFile)
		return err
	}

	format, ok := r.formatByType[logFile.Site]
	if !ok {
		err = Wrap(KindParseFormat, fmt.Sprintf("no log_format configured for site %q", logFile.Site), nil)
		return err
	}

	raw, getErr := r.objects.Get(ctx, logFile.StorageKey)
	if getErr != nil {
		err = r.storageGetError(ctx, "fetch log bytes from object store", logFile.StorageKey, getErr)
		return err
	}
	job.Progress = models.ProgressFetched
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		err = Wrap(KindDBConflict, "save job after fetch", saveErr)
		return err
	}

	parseResult, parseErr := parser.Parse(format, raw)
	if parseErr != nil {
		err = Wrap(KindParseFormat, "declared format mismatch", parseErr)
		return err
	}
	job.Progress = models.ProgressParsed
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		err = Wrap(KindDBConflict, "save job after parse", saveErr)
		return err
	}

	aggResult := aggregator.Aggregate(parseResult.Events)
	job.Progress = models.ProgressAggregated
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		err = Wrap(KindDBConflict, "save job after aggregate", saveErr)
		return err
	}

	if saveErr := r.jobs.SaveAggregates(ctx, logFile.Site, logFile.ID, aggResult, r.topN); saveErr != nil {
		err = Wrap(KindDBConflict, "save aggregates", saveErr)
		return err
	}

	secFindings := security.Detect(parseResult.Events)
	if saveErr := r.jobs.SaveFindings(ctx, logFile.Site, logFile.ID, secFindings); saveErr != nil {
		err = Wrap(KindDBConflict, "save security findings", saveErr)
		return err
	}

	var anomalyFindings []models.FindingCandidate
	if len(aggResult.Buckets) > 0 {
		fromHour := aggResult.FirstSeen.Truncate(24 * time.Hour).AddDate(0, 0, -baselineDays)
		baseline, loadErr := r.jobs.LoadBaselineSnapshots(ctx, logFile.Site, fromHour)
		if loadErr != nil {
			err = Wrap(KindStorageTransient, "load baseline snapshots", loadErr)
			return err
		}

		targets := make([]models.AggregateSnapshot, 0, len(aggResult.Buckets))
		for _, b := range aggResult.Buckets {
			targets = append(targets, aggregator.Snapshot(b, r.topN))
		}

		anomalyFindings = anomaly.Detect(baseline, targets, r.anomalyCfg)
		if len(anomalyFindings) > 0 {
			if saveErr := r.jobs.SaveFindings(ctx, logFile.Site, logFile.ID, anomalyFindings); saveErr != nil {
				err = Wrap(KindDBConflict, "save anomaly findings", saveErr)
				return err
			}
		}
	}
	job.Progress = models.ProgressAnomalyChecked
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		err = Wrap(KindDBConflict, "save job after anomaly check", saveErr)
		return err
	}

	summary := resultSummary{
		TotalLines:   parseResult.TotalLines,
		ParsedEvents: len(parseResult.Events),
		FailedLines:  parseResult.FailedLines,
		EmptyLines:   parseResult.EmptyLines,
		BucketCount:  len(aggResult.Buckets),
		FindingCount: len(secFindings) + len(anomalyFindings),
		AnomalyCount: len(anomalyFindings),
	}
	for _, f := range secFindings {
		summary.FindingTypes = append(summary.FindingTypes, f.FindingType)
	}
	summaryJSON, marshalErr := json.Marshal(summary)
	if marshalErr != nil {
		err = Wrap(KindSchemaViolation, "marshal result summary", marshalErr)
		return err
	}

	completedAt := r.clock.Now()
	job.ResultSummary = string(summaryJSON)
	job.Status = models.JobStatusCompleted
	job.Progress = models.ProgressDone
	job.CompletedAt = &completedAt
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		err = Wrap(KindDBConflict, "save completed job", saveErr)
		return err
	}

	logFile.Status = models.LogFileStatusProcessed
	if saveErr := r.jobs.SaveLogFile(ctx, logFile); saveErr != nil {
		err = Wrap(KindDBConflict, "save processed log file", saveErr)
		return err
	}

	return nil
}

// errorLogSummary is the compact JSON persisted into Job.ResultSummary
// for JobTypeDetect runs.
type errorLogSummary struct {
	RecordCount    int `json:"record_count"`
	GroupCount     int `json:"group_count"`
	NewOccurrences int `json:"new_occurrences"`
}

// runErrorLog processes an application error log: extract ErrorRecords,
// fold them into per-fingerprint ErrorGroup deltas, insert each occurrence
// (deduplicated on group_fingerprint/timestamp/message), then apply the
// accumulated per-group increments once (spec §4.5, §3's ErrorGroup
// invariant). Reuses the same Locked/LogFileLoaded/Fetched milestones as
// the access-log path; Parsed/Aggregated/AnomalyChecked collapse into a
// single "error records processed" step since there is no aggregation or
// anomaly stage for this job type.
func (r *JobRunner) runErrorLog(ctx context.Context, job *models.Job, logFile *models.LogFile) error {
	format, ok := r.errorFormatByType[logFile.Site]
	if !ok {
		format = errorparser.FormatAuto
	}

	raw, getErr := r.objects.Get(ctx, logFile.StorageKey)
	if getErr != nil {
		return r.storageGetError(ctx, "fetch error log bytes from object store", logFile.StorageKey, getErr)
	}
	job.Progress = models.ProgressFetched
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		return Wrap(KindDBConflict, "save job after fetch", saveErr)
	}

	records := errorparser.Parse(string(raw), format, logFile.UploadedAt)

	deltas := make(map[string]*models.ErrorGroup)
	newOccurrences := 0
	for _, rec := range records {
		logFileID := logFile.ID
		occ := models.ErrorOccurrence{
			GroupFingerprint: rec.Fingerprint,
			Site:             logFile.Site,
			LogFileID:        &logFileID,
			Timestamp:        rec.Timestamp,
			ErrorType:        rec.ErrorType,
			Message:          rec.Message,
			Stack:            rec.Stack,
			File:             rec.File,
			Line:             rec.Line,
			Function:         rec.Function,
			RequestURL:       rec.RequestURL,
			RequestMethod:    rec.RequestMethod,
			IP:               rec.IP,
			User:             rec.User,
			Context:          rec.Context,
		}

		inserted, insertErr := r.jobs.InsertErrorOccurrence(ctx, occ)
		if insertErr != nil {
			return Wrap(KindDBConflict, "insert error occurrence", insertErr)
		}
		if !inserted {
			continue
		}
		newOccurrences++

		delta, ok := deltas[rec.Fingerprint]
		if !ok {
			delta = &models.ErrorGroup{
				Site:             logFile.Site,
				Fingerprint:      rec.Fingerprint,
				ErrorType:        rec.ErrorType,
				CanonicalMessage: rec.Message,
				Status:           models.ErrorStatusUnresolved,
			}
			deltas[rec.Fingerprint] = delta
		}
		delta.Touch(rec.Timestamp)
	}

	for _, delta := range deltas {
		if upsertErr := r.jobs.UpsertErrorGroup(ctx, delta); upsertErr != nil {
			return Wrap(KindDBConflict, "upsert error group", upsertErr)
		}
	}
	job.Progress = models.ProgressAnomalyChecked
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		return Wrap(KindDBConflict, "save job after error grouping", saveErr)
	}

	summary := errorLogSummary{RecordCount: len(records), GroupCount: len(deltas), NewOccurrences: newOccurrences}
	summaryJSON, marshalErr := json.Marshal(summary)
	if marshalErr != nil {
		return Wrap(KindSchemaViolation, "marshal error log result summary", marshalErr)
	}

	completedAt := r.clock.Now()
	job.ResultSummary = string(summaryJSON)
	job.Status = models.JobStatusCompleted
	job.Progress = models.ProgressDone
	job.CompletedAt = &completedAt
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		return Wrap(KindDBConflict, "save completed job", saveErr)
	}

	logFile.Status = models.LogFileStatusProcessed
	if saveErr := r.jobs.SaveLogFile(ctx, logFile); saveErr != nil {
		return Wrap(KindDBConflict, "save processed log file", saveErr)
	}

	return nil
}

// storageGetError tags a failed ObjectStore.Get as StorageMissing when the
// store reports that key does not exist, and as StorageTransient otherwise.
func (r *JobRunner) storageGetError(ctx context.Context, message, key string, cause error) *Error {
	if exists, existsErr := r.objects.Exists(ctx, key); existsErr == nil && !exists {
		return Wrap(KindStorageMissing, message, cause)
	}
	return Wrap(KindStorageTransient, message, cause)
}

func (r *JobRunner) failJob(ctx context.Context, job *models.Job, logFile *models.LogFile, cause error) {
	now := r.clock.Now()
	job.Status = models.JobStatusFailed
	job.ErrorMessage = cause.Error()
	job.CompletedAt = &now
	if saveErr := r.jobs.SaveJob(ctx, job); saveErr != nil {
		r.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("failed to persist failed job state")
	}

	if logFile != nil {
		logFile.Status = models.LogFileStatusFailed
		if saveErr := r.jobs.SaveLogFile(ctx, logFile); saveErr != nil {
			r.logger.Error().Err(saveErr).Str("log_file_id", logFile.ID).Msg("failed to persist failed log file state")
		}
	}

	r.logger.Error().Err(cause).Str("job_id", job.ID).Msg("job failed")
}
