// Package anomaly implements the baseline-vs-target statistical
// AnomalyDetector (spec §4.4).
package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/logsentinel/internal/models"
)

// Config mirrors the detector's tunables.
type Config struct {
	BaselineDays     int
	MinBaselineHours int
	ZThreshold       float64
	NewPathMinCount  int
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		BaselineDays:     7,
		MinBaselineHours: 24,
		ZThreshold:       3.0,
		NewPathMinCount:  20,
	}
}

// Detect runs the detector over baseline and target snapshots and returns
// finding candidates for traffic spikes, error-rate spikes, and new
// endpoint bursts.
func Detect(baseline, target []models.AggregateSnapshot, cfg Config) []models.FindingCandidate {
	var findings []models.FindingCandidate

	for _, t := range target {
		windowStart := t.Hour.AddDate(0, 0, -cfg.BaselineDays)
		b := inWindow(baseline, windowStart, t.Hour)

		if len(b) < cfg.MinBaselineHours {
			continue
		}

		requestSeries := make([]float64, len(b))
		errorRateSeries := make([]float64, len(b))
		uniqueIPSeries := make([]float64, len(b))
		for i, s := range b {
			requestSeries[i] = float64(s.Requests)
			errorRateSeries[i] = errorRate(s)
			uniqueIPSeries[i] = float64(s.UniqueIPs)
		}

		if zReq, ok := zScore(requestSeries, float64(t.Requests)); ok && zReq >= cfg.ZThreshold {
			findings = append(findings, finding("traffic_spike", models.SeverityMedium, t, map[string]any{
				"hour":     t.Hour,
				"observed": t.Requests,
				"z_score":  zReq,
			}))
		}

		if zErr, ok := zScore(errorRateSeries, errorRate(t)); ok && zErr >= cfg.ZThreshold {
			findings = append(findings, finding("error_spike", models.SeverityHigh, t, map[string]any{
				"hour":     t.Hour,
				"observed": errorRate(t),
				"z_score":  zErr,
			}))
		}

		baselinePaths := make(map[string]bool)
		for _, s := range b {
			for _, p := range s.TopPaths {
				baselinePaths[p.Key] = true
			}
		}
		for _, p := range t.TopPaths {
			if baselinePaths[p.Key] {
				continue
			}
			if p.Count < cfg.NewPathMinCount {
				continue
			}
			findings = append(findings, finding("new_endpoint_burst", models.SeverityMedium, t, map[string]any{
				"hour":  t.Hour,
				"path":  p.Key,
				"count": p.Count,
			}))
		}
	}

	return findings
}

func inWindow(baseline []models.AggregateSnapshot, start, end time.Time) []models.AggregateSnapshot {
	var out []models.AggregateSnapshot
	for _, s := range baseline {
		if !s.Hour.Before(start) && s.Hour.Before(end) {
			out = append(out, s)
		}
	}
	return out
}

func errorRate(s models.AggregateSnapshot) float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Status5xx) / float64(s.Requests)
}

// zScore returns (value-mean)/stddev computed as a population statistic
// over series. ok is false when stddev==0 or len(series)<2, in which case
// z is undefined (testable property 9).
func zScore(series []float64, value float64) (z float64, ok bool) {
	if len(series) < 2 {
		return 0, false
	}
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	variance := 0.0
	for _, v := range series {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(series))
	stddev := math.Sqrt(variance)

	if stddev == 0 {
		return 0, false
	}
	return (value - mean) / stddev, true
}

func finding(findingType string, severity models.Severity, t models.AggregateSnapshot, metadata map[string]any) models.FindingCandidate {
	return models.FindingCandidate{
		FindingType: findingType,
		Severity:    severity,
		Title:       fmt.Sprintf("%s at %s", findingType, t.Hour.Format(time.RFC3339)),
		Description: fmt.Sprintf("%s detected for hour bucket %s", findingType, t.Hour.Format(time.RFC3339)),
		Metadata:    metadata,
	}
}
