package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/anomaly"
	"github.com/ternarybob/logsentinel/internal/common"
	"github.com/ternarybob/logsentinel/internal/fetcher"
	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
	"github.com/ternarybob/logsentinel/internal/pipeline"
	"github.com/ternarybob/logsentinel/internal/sources"
)

type fakeSourceStore struct {
	byID map[string]*models.LogSource
	saved []models.LogSource
}

func (f *fakeSourceStore) ListActive(ctx context.Context) ([]models.LogSource, error) { return nil, nil }
func (f *fakeSourceStore) Get(ctx context.Context, id string) (*models.LogSource, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}
func (f *fakeSourceStore) Save(ctx context.Context, source *models.LogSource) error {
	f.saved = append(f.saved, *source)
	f.byID[source.ID] = source
	return nil
}

type fakeObjectStore struct {
	data map[string][]byte
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, data []byte) error {
	f.data[key] = data
	return nil
}
func (f *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, error) { return f.data[key], nil }
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

type fakeJobStore struct {
	logFiles map[string]*models.LogFile
	jobs     map[string]*models.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{logFiles: map[string]*models.LogFile{}, jobs: map[string]*models.Job{}}
}

func (f *fakeJobStore) LockJob(ctx context.Context, jobID string) (*models.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, assertErr{}
	}
	return j, nil
}
func (f *fakeJobStore) SaveJob(ctx context.Context, job *models.Job) error {
	f.jobs[job.ID] = job
	return nil
}
func (f *fakeJobStore) GetLogFile(ctx context.Context, logFileID string) (*models.LogFile, error) {
	return f.logFiles[logFileID], nil
}
func (f *fakeJobStore) SaveLogFile(ctx context.Context, file *models.LogFile) error {
	f.logFiles[file.ID] = file
	return nil
}
func (f *fakeJobStore) SaveAggregates(ctx context.Context, site, logFileID string, result *models.AggregationResult, topN int) error {
	return nil
}
func (f *fakeJobStore) SaveFindings(ctx context.Context, site, logFileID string, findings []models.FindingCandidate) error {
	return nil
}
func (f *fakeJobStore) UpsertErrorGroup(ctx context.Context, group *models.ErrorGroup) error { return nil }
func (f *fakeJobStore) InsertErrorOccurrence(ctx context.Context, occ models.ErrorOccurrence) (bool, error) {
	return true, nil
}
func (f *fakeJobStore) LoadBaselineSnapshots(ctx context.Context, site string, fromHour time.Time) ([]models.AggregateSnapshot, error) {
	return nil, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeQueue struct {
	enqueued []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, taskName string, args []byte) (string, error) {
	q.enqueued = append(q.enqueued, taskName)
	return "q-" + taskName, nil
}
func (q *fakeQueue) Receive(ctx context.Context) (*interfaces.Task, error) { return nil, nil }
func (q *fakeQueue) Extend(ctx context.Context, taskID string, by time.Duration) error { return nil }
func (q *fakeQueue) Complete(ctx context.Context, taskID string) error { return nil }

type fakeFetcher struct {
	files []fetcher.FetchedFile
	err   error
}

func (f *fakeFetcher) TestConnection(ctx context.Context) (bool, string) { return true, "ok" }
func (f *fakeFetcher) Fetch(ctx context.Context) ([]fetcher.FetchedFile, error) {
	return f.files, f.err
}
func (f *fakeFetcher) Cleanup() error { return nil }

func TestPool_HandleFetch_CreatesLogFileAndJobAndEnqueuesProcessJob(t *testing.T) {
	sourceStore := &fakeSourceStore{byID: map[string]*models.LogSource{
		"src1": {ID: "src1", Site: "site-a", Type: models.SourceTypeSFTP, Status: models.SourceStatusActive,
			Connection: map[string]any{"host": "example.com"}},
	}}
	objects := &fakeObjectStore{data: map[string][]byte{}}
	jobs := newFakeJobStore()
	q := &fakeQueue{}

	pool := &Pool{
		Queue:       q,
		Jobs:        jobs,
		SourceStore: sourceStore,
		Objects:     objects,
		SourcesSvc:  sources.NewService(sourceStore, arbor.NewLogger()),
		Clock:       fixedClock{time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)},
		Logger:      arbor.NewLogger(),
		LogFormats:  map[string]string{"site-a": "nginx_combined"},
		BuildFetcher: func(src models.LogSource, cfg common.FetcherConfig, logger arbor.ILogger) (fetcher.Fetcher, error) {
			return &fakeFetcher{files: []fetcher.FetchedFile{{Name: "access.log", Data: []byte("line\n"), Size: 5}}}, nil
		},
	}

	args, err := json.Marshal(fetchArgs{SourceID: "src1"})
	require.NoError(t, err)
	task := &interfaces.Task{ID: "t1", Name: taskFetchLogsFromSource, Args: args}

	require.NoError(t, pool.handleFetch(context.Background(), task))

	require.Len(t, jobs.logFiles, 1)
	require.Len(t, jobs.jobs, 1)
	for _, job := range jobs.jobs {
		assert.Equal(t, models.JobTypeParse, job.Type)
		assert.Equal(t, models.JobStatusPending, job.Status)
	}
	assert.Equal(t, "success", sourceStore.byID["src1"].LastFetchStatus)
	assert.Equal(t, []string{taskProcessJob}, q.enqueued)
}

func TestPool_JobTypeFor_RoutesErrorFilenameToDetect(t *testing.T) {
	pool := &Pool{LogFormats: map[string]string{"site-a": "nginx_combined"}}
	assert.Equal(t, models.JobTypeParse, pool.jobTypeFor("site-a", "access.log"))
	assert.Equal(t, models.JobTypeDetect, pool.jobTypeFor("site-a", "error.log"))
	assert.Equal(t, models.JobTypeDetect, pool.jobTypeFor("site-unconfigured", "anything.log"))
}

func TestPool_HandleProcessJob_DelegatesToJobRunner(t *testing.T) {
	jobs := newFakeJobStore()
	objects := &fakeObjectStore{data: map[string][]byte{}}
	logFile := &models.LogFile{ID: "lf1", Site: "site-a", StorageKey: "k", Status: models.LogFileStatusUploaded}
	jobs.logFiles["lf1"] = logFile
	jobs.jobs["job1"] = &models.Job{ID: "job1", LogFileID: "lf1", Type: models.JobTypeParse, Status: models.JobStatusPending}
	objects.data["k"] = []byte(`203.0.113.5 - - [21/Jan/2026:10:00:00 +0000] "GET /home HTTP/1.1" 200 512 "-" "curl/8.0"` + "\n")

	runner := pipeline.NewJobRunner(jobs, objects, fixedClock{time.Now().UTC()}, arbor.NewLogger(), 10, anomaly.DefaultConfig(),
		map[string]string{"site-a": "nginx_combined"})

	pool := &Pool{Runner: runner}

	args, err := json.Marshal(processJobArgs{JobID: "job1"})
	require.NoError(t, err)
	task := &interfaces.Task{ID: "t1", Name: taskProcessJob, Args: args}

	require.NoError(t, pool.handleProcessJob(context.Background(), task))
	assert.Equal(t, models.JobStatusCompleted, jobs.jobs["job1"].Status)
}
