package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/anomaly"
	"github.com/ternarybob/logsentinel/internal/models"
	"github.com/ternarybob/logsentinel/internal/parser"
)

type fakeJobStore struct {
	jobs      map[string]*models.Job
	logFiles  map[string]*models.LogFile
	savedAggs int
	findings  []models.FindingCandidate
	baseline  []models.AggregateSnapshot
	failSave  bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*models.Job{}, logFiles: map[string]*models.LogFile{}}
}

func (f *fakeJobStore) LockJob(ctx context.Context, jobID string) (*models.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, assert.AnError
	}
	return j, nil
}

func (f *fakeJobStore) SaveJob(ctx context.Context, job *models.Job) error {
	if f.failSave {
		return assert.AnError
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetLogFile(ctx context.Context, logFileID string) (*models.LogFile, error) {
	lf, ok := f.logFiles[logFileID]
	if !ok {
		return nil, nil
	}
	return lf, nil
}

func (f *fakeJobStore) SaveLogFile(ctx context.Context, file *models.LogFile) error {
	f.logFiles[file.ID] = file
	return nil
}

func (f *fakeJobStore) SaveAggregates(ctx context.Context, site, logFileID string, result *models.AggregationResult, topN int) error {
	f.savedAggs++
	return nil
}

func (f *fakeJobStore) SaveFindings(ctx context.Context, site, logFileID string, findings []models.FindingCandidate) error {
	f.findings = append(f.findings, findings...)
	return nil
}

func (f *fakeJobStore) UpsertErrorGroup(ctx context.Context, group *models.ErrorGroup) error { return nil }
func (f *fakeJobStore) InsertErrorOccurrence(ctx context.Context, occ models.ErrorOccurrence) (bool, error) {
	return true, nil
}

func (f *fakeJobStore) LoadBaselineSnapshots(ctx context.Context, site string, fromHour time.Time) ([]models.AggregateSnapshot, error) {
	return f.baseline, nil
}

type fakeObjectStore struct {
	data map[string][]byte
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, data []byte) error {
	f.data[key] = data
	return nil
}
func (f *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	d, ok := f.data[key]
	if !ok {
		return nil, assert.AnError
	}
	return d, nil
}
func (f *fakeObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.data[key]
	return ok, nil
}
func (f *fakeObjectStore) Size(ctx context.Context, key string) (int64, bool, error) {
	d, ok := f.data[key]
	return int64(len(d)), ok, nil
}
func (f *fakeObjectStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "", nil
}
func (f *fakeObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", nil
}
func (f *fakeObjectStore) EnsureBucket(ctx context.Context) error { return nil }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testLogger() arbor.ILogger { return arbor.NewLogger() }

func TestJobRunner_Run_HappyPath(t *testing.T) {
	jobs := newFakeJobStore()
	objects := &fakeObjectStore{data: map[string][]byte{}}

	logFile := &models.LogFile{ID: "lf1", Site: "site-a", StorageKey: "logs/site-a/access.log", Status: models.LogFileStatusUploaded}
	jobs.logFiles["lf1"] = logFile
	jobs.jobs["job1"] = &models.Job{ID: "job1", LogFileID: "lf1", Type: models.JobTypeParse, Status: models.JobStatusPending}

	objects.data[logFile.StorageKey] = []byte(`203.0.113.5 - - [21/Jan/2026:10:00:00 +0000] "GET /home HTTP/1.1" 200 512 "-" "curl/8.0"` + "\n")

	runner := NewJobRunner(jobs, objects, fixedClock{time.Date(2026, 1, 21, 11, 0, 0, 0, time.UTC)}, testLogger(), 10, anomaly.DefaultConfig(), map[string]string{
		"site-a": parser.FormatNginxCombined,
	})

	err := runner.Run(context.Background(), "job1")
	require.NoError(t, err)

	job := jobs.jobs["job1"]
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, models.ProgressDone, job.Progress)
	assert.NotEmpty(t, job.ResultSummary)
	assert.Equal(t, models.LogFileStatusProcessed, jobs.logFiles["lf1"].Status)
	assert.Equal(t, 1, jobs.savedAggs)
}

func TestJobRunner_Run_MissingLogFileFailsJob(t *testing.T) {
	jobs := newFakeJobStore()
	objects := &fakeObjectStore{data: map[string][]byte{}}
	jobs.jobs["job1"] = &models.Job{ID: "job1", LogFileID: "missing", Status: models.JobStatusPending}

	runner := NewJobRunner(jobs, objects, fixedClock{time.Now().UTC()}, testLogger(), 10, anomaly.DefaultConfig(), nil)
	err := runner.Run(context.Background(), "job1")

	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, jobs.jobs["job1"].Status)
}

func TestJobRunner_Run_StorageMissingFailsJobAndLogFile(t *testing.T) {
	jobs := newFakeJobStore()
	objects := &fakeObjectStore{data: map[string][]byte{}}

	logFile := &models.LogFile{ID: "lf1", Site: "site-a", StorageKey: "missing-key", Status: models.LogFileStatusUploaded}
	jobs.logFiles["lf1"] = logFile
	jobs.jobs["job1"] = &models.Job{ID: "job1", LogFileID: "lf1", Status: models.JobStatusPending}

	runner := NewJobRunner(jobs, objects, fixedClock{time.Now().UTC()}, testLogger(), 10, anomaly.DefaultConfig(), map[string]string{
		"site-a": parser.FormatNginxCombined,
	})
	err := runner.Run(context.Background(), "job1")

	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindStorageMissing, kind)
	assert.Equal(t, models.JobStatusFailed, jobs.jobs["job1"].Status)
	assert.Equal(t, models.LogFileStatusFailed, jobs.logFiles["lf1"].Status)
}

func TestJobRunner_Run_ErrorLogJobGroupsAndCountsOccurrences(t *testing.T) {
	jobs := newFakeJobStore()
	objects := &fakeObjectStore{data: map[string][]byte{}}

	logFile := &models.LogFile{ID: "lf1", Site: "site-a", StorageKey: "logs/site-a/error.log",
		Status: models.LogFileStatusUploaded, UploadedAt: time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC)}
	jobs.logFiles["lf1"] = logFile
	jobs.jobs["job1"] = &models.Job{ID: "job1", LogFileID: "lf1", Type: models.JobTypeDetect, Status: models.JobStatusPending}

	blob := `2026-01-21 10:00:00,123 ERROR: Something bad happened
Traceback (most recent call last):
  File "/app/handlers.py", line 42, in handle
    raise ValueError("bad id 123")
ValueError: bad id 123
`
	objects.data[logFile.StorageKey] = []byte(blob)

	runner := NewJobRunner(jobs, objects, fixedClock{time.Date(2026, 1, 21, 11, 0, 0, 0, time.UTC)}, testLogger(), 10, anomaly.DefaultConfig(), nil)

	err := runner.Run(context.Background(), "job1")
	require.NoError(t, err)

	job := jobs.jobs["job1"]
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, models.ProgressDone, job.Progress)
	assert.NotEmpty(t, job.ResultSummary)
	assert.Equal(t, models.LogFileStatusProcessed, jobs.logFiles["lf1"].Status)
}

func TestJobRunner_Run_UnknownSiteFormatFailsWithParseFormatKind(t *testing.T) {
	jobs := newFakeJobStore()
	objects := &fakeObjectStore{data: map[string][]byte{}}

	logFile := &models.LogFile{ID: "lf1", Site: "site-unknown", StorageKey: "k", Status: models.LogFileStatusUploaded}
	jobs.logFiles["lf1"] = logFile
	jobs.jobs["job1"] = &models.Job{ID: "job1", LogFileID: "lf1", Status: models.JobStatusPending}

	runner := NewJobRunner(jobs, objects, fixedClock{time.Now().UTC()}, testLogger(), 10, anomaly.DefaultConfig(), map[string]string{})
	err := runner.Run(context.Background(), "job1")

	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindParseFormat, kind)
}
