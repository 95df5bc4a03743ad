package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
)

func nilLogger() arbor.ILogger {
	return arbor.NewLogger()
}

type fakeSourceStore struct {
	sources []models.LogSource
	saved   []models.LogSource
}

func (f *fakeSourceStore) ListActive(ctx context.Context) ([]models.LogSource, error) {
	return f.sources, nil
}

func (f *fakeSourceStore) Get(ctx context.Context, id string) (*models.LogSource, error) {
	for i := range f.sources {
		if f.sources[i].ID == id {
			return &f.sources[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSourceStore) Save(ctx context.Context, source *models.LogSource) error {
	f.saved = append(f.saved, *source)
	for i := range f.sources {
		if f.sources[i].ID == source.ID {
			f.sources[i] = *source
		}
	}
	return nil
}

type fakeQueue struct {
	enqueued []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, taskName string, args []byte) (string, error) {
	f.enqueued = append(f.enqueued, taskName)
	return "task-1", nil
}
func (f *fakeQueue) Receive(ctx context.Context) (*interfaces.Task, error) { return nil, nil }
func (f *fakeQueue) Extend(ctx context.Context, taskID string, by time.Duration) error {
	return nil
}
func (f *fakeQueue) Complete(ctx context.Context, taskID string) error { return nil }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestTick_NeverFetchedSourceIsDue(t *testing.T) {
	now := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	store := &fakeSourceStore{sources: []models.LogSource{
		{ID: "s1", ScheduleType: models.ScheduleTypeInterval, IntervalMinutes: 15},
	}}
	queue := &fakeQueue{}

	s := New(store, queue, fixedClock{now}, nilLogger())
	report, err := s.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Scheduled)
	assert.Len(t, queue.enqueued, 1)
	assert.NotNil(t, store.sources[0].LastFetchAt)
}

func TestTick_IntervalSourceNotYetDue(t *testing.T) {
	now := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	last := now.Add(-5 * time.Minute)
	store := &fakeSourceStore{sources: []models.LogSource{
		{ID: "s1", ScheduleType: models.ScheduleTypeInterval, IntervalMinutes: 15, LastFetchAt: &last},
	}}
	queue := &fakeQueue{}

	s := New(store, queue, fixedClock{now}, nilLogger())
	report, err := s.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Scheduled)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, queue.enqueued)
}

func TestTick_IntervalSourceDueAfterElapsed(t *testing.T) {
	now := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	last := now.Add(-20 * time.Minute)
	store := &fakeSourceStore{sources: []models.LogSource{
		{ID: "s1", ScheduleType: models.ScheduleTypeInterval, IntervalMinutes: 15, LastFetchAt: &last},
	}}
	queue := &fakeQueue{}

	s := New(store, queue, fixedClock{now}, nilLogger())
	report, err := s.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Scheduled)
}

func TestTick_IntervalClampedToMinimum(t *testing.T) {
	now := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	last := now.Add(-6 * time.Minute)
	store := &fakeSourceStore{sources: []models.LogSource{
		{ID: "s1", ScheduleType: models.ScheduleTypeInterval, IntervalMinutes: 1, LastFetchAt: &last},
	}}
	queue := &fakeQueue{}

	s := New(store, queue, fixedClock{now}, nilLogger())
	report, err := s.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Scheduled, "interval below 5 minutes clamps to the 5-minute minimum")
}

func TestTick_CronSourceUsesRealNextTime(t *testing.T) {
	last := time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC)
	store := &fakeSourceStore{sources: []models.LogSource{
		{ID: "s1", ScheduleType: models.ScheduleTypeCron, CronExpression: "0 * * * *", LastFetchAt: &last},
	}}
	queue := &fakeQueue{}

	before := fixedClock{last.Add(30 * time.Minute)}
	s := New(store, queue, before, nilLogger())
	report, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scheduled)

	after := fixedClock{last.Add(61 * time.Minute)}
	s2 := New(store, queue, after, nilLogger())
	report2, err := s2.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report2.Scheduled)
}

func TestTick_InvalidCronExpressionIsSkippedNotFatal(t *testing.T) {
	last := time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC)
	store := &fakeSourceStore{sources: []models.LogSource{
		{ID: "s1", ScheduleType: models.ScheduleTypeCron, CronExpression: "not a cron expr", LastFetchAt: &last},
	}}
	queue := &fakeQueue{}

	s := New(store, queue, fixedClock{last.Add(2 * time.Hour)}, nilLogger())
	report, err := s.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Scheduled)
}
