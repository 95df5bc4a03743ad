// Package aggregator maintains per-hour buckets with top-K summaries
// over an event stream (spec §4.2).
package aggregator

import (
	"time"

	"github.com/ternarybob/logsentinel/internal/models"
)

// Aggregate folds events into a complete AggregationResult. Aggregating
// the same events twice doubles every counter and union-preserves sets
// (testable property 4) because Counter.Add and the bucket index are
// pure accumulation with no dedup step.
func Aggregate(events []models.LogEvent) *models.AggregationResult {
	result := models.NewAggregationResult()
	index := make(map[time.Time]*models.HourlyBucket)

	for _, e := range events {
		addEvent(result, index, e)
	}

	return result
}

// AggregateInto folds events into an existing result, for callers that
// stream multiple files' events into one running total.
func AggregateInto(result *models.AggregationResult, index map[time.Time]*models.HourlyBucket, events []models.LogEvent) {
	for _, e := range events {
		addEvent(result, index, e)
	}
}

// NewIndex creates the hour->bucket index AggregateInto requires.
func NewIndex() map[time.Time]*models.HourlyBucket {
	return make(map[time.Time]*models.HourlyBucket)
}

func addEvent(result *models.AggregationResult, index map[time.Time]*models.HourlyBucket, e models.LogEvent) {
	bucket := result.BucketFor(e.Timestamp, index)
	bucket.Add(e)

	result.TotalRequests++
	switch models.StatusClass(e.Status) {
	case "2xx":
		result.Status2xx++
	case "3xx":
		result.Status3xx++
	case "4xx":
		result.Status4xx++
	case "5xx":
		result.Status5xx++
	default:
		result.StatusOther++
	}
	result.TotalBytes += e.Bytes

	if !result.HaveBounds {
		result.FirstSeen = e.Timestamp
		result.LastSeen = e.Timestamp
		result.HaveBounds = true
	} else {
		if e.Timestamp.Before(result.FirstSeen) {
			result.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(result.LastSeen) {
			result.LastSeen = e.Timestamp
		}
	}

	result.Methods.Add(e.Method)
	result.TopPaths.Add(e.Path)
	result.TopIPs.Add(e.IP)
	result.TopUAs.Add(e.UserAgent)
	result.TopReferers.Add(e.Referer)
}

// Snapshot renders one bucket as an models.AggregateSnapshot for
// AnomalyDetector/baseline persistence.
func Snapshot(b *models.HourlyBucket, topN int) models.AggregateSnapshot {
	dict := b.ToDict(topN)
	return models.AggregateSnapshot{
		Hour:      dict.Hour,
		Requests:  dict.Requests,
		Status5xx: dict.Status5xx,
		UniqueIPs: dict.UniqueIPs,
		TopPaths:  dict.TopPaths,
	}
}
