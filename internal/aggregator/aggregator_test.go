package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/logsentinel/internal/models"
)

func evt(ts time.Time, ip, path string, status int) models.LogEvent {
	return models.LogEvent{Timestamp: ts, IP: ip, Path: path, Status: status, Method: "GET"}
}

func TestAggregate_SingleNginxLineBucket(t *testing.T) {
	ts := time.Date(2026, 1, 21, 10, 30, 0, 0, time.UTC)
	result := Aggregate([]models.LogEvent{evt(ts, "192.168.1.1", "/api/users", 200)})

	require.Len(t, result.Buckets, 1)
	b := result.Buckets[0]
	assert.Equal(t, time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC), b.Hour)
	assert.Equal(t, 1, b.Requests)
	assert.Equal(t, 1, b.Status2xx)
	assert.Equal(t, 1, b.UniqueIPs())

	dict := b.ToDict(10)
	require.Len(t, dict.TopPaths, 1)
	assert.Equal(t, "/api/users", dict.TopPaths[0].Key)
	assert.Equal(t, 1, dict.TopPaths[0].Count)
}

func TestAggregate_BucketPartitionEqualsTotalEvents(t *testing.T) {
	base := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)
	var events []models.LogEvent
	for h := 0; h < 5; h++ {
		for i := 0; i < 3; i++ {
			events = append(events, evt(base.Add(time.Duration(h)*time.Hour+time.Duration(i)*time.Minute), "1.1.1.1", "/x", 200))
		}
	}

	result := Aggregate(events)

	sum := 0
	for _, b := range result.Buckets {
		sum += b.Requests
	}
	assert.Equal(t, len(events), sum)
	assert.Equal(t, len(events), result.TotalRequests)
}

func TestAggregate_StatusClassCoverage(t *testing.T) {
	ts := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)
	events := []models.LogEvent{
		evt(ts, "1.1.1.1", "/a", 200),
		evt(ts, "1.1.1.1", "/a", 301),
		evt(ts, "1.1.1.1", "/a", 404),
		evt(ts, "1.1.1.1", "/a", 503),
		evt(ts, "1.1.1.1", "/a", 700),
	}
	result := Aggregate(events)
	b := result.Buckets[0]
	assert.Equal(t, 1, b.Status2xx)
	assert.Equal(t, 1, b.Status3xx)
	assert.Equal(t, 1, b.Status4xx)
	assert.Equal(t, 1, b.Status5xx)
	assert.Equal(t, 1, b.StatusOther)
}

func TestAggregate_Idempotence(t *testing.T) {
	ts := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)
	events := []models.LogEvent{
		evt(ts, "1.1.1.1", "/a", 200),
		evt(ts, "2.2.2.2", "/b", 200),
	}

	once := Aggregate(events)
	twice := Aggregate(append(append([]models.LogEvent{}, events...), events...))

	assert.Equal(t, once.TotalRequests*2, twice.TotalRequests)
	assert.Equal(t, once.Buckets[0].UniqueIPs(), twice.Buckets[0].UniqueIPs())
	assert.Equal(t, once.Buckets[0].Requests*2, twice.Buckets[0].Requests)
}

func TestAggregate_TopKMonotonicity(t *testing.T) {
	ts := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)
	result := Aggregate([]models.LogEvent{evt(ts, "1.1.1.1", "/a", 200)})
	before := result.Buckets[0].ToDict(10).TopPaths[0].Count

	AggregateInto(result, map[time.Time]*models.HourlyBucket{result.Buckets[0].Hour: result.Buckets[0]},
		[]models.LogEvent{evt(ts, "2.2.2.2", "/a", 200)})
	after := result.Buckets[0].ToDict(10).TopPaths[0].Count

	assert.GreaterOrEqual(t, after, before)
}

func TestAggregate_PerIPTopKUsesTrueCounts(t *testing.T) {
	ts := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)
	var events []models.LogEvent
	for i := 0; i < 5; i++ {
		events = append(events, evt(ts.Add(time.Duration(i)*time.Second), "9.9.9.9", "/a", 200))
	}
	events = append(events, evt(ts, "1.1.1.1", "/a", 200))

	result := Aggregate(events)
	top := result.Buckets[0].ToDict(10).TopIPs
	require.NotEmpty(t, top)
	assert.Equal(t, "9.9.9.9", top[0].Key)
	assert.Equal(t, 5, top[0].Count)
}
