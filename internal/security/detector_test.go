package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/logsentinel/internal/models"
)

func TestDetect_PathTraversalAndEnvFileGrouping(t *testing.T) {
	base := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	var events []models.LogEvent
	for i := 0; i < 8; i++ {
		events = append(events, models.LogEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			IP:        "10.0.0.5",
			Method:    "GET",
			Path:      "/../../etc/passwd",
			Status:    403,
			UserAgent: "curl/8.0",
			LineNo:    i + 1,
		})
	}
	for i := 0; i < 2; i++ {
		events = append(events, models.LogEvent{
			Timestamp: base.Add(time.Duration(9+i) * time.Second),
			IP:        "10.0.0.5",
			Method:    "GET",
			Path:      "/.env",
			Status:    403,
			UserAgent: "curl/8.0",
			LineNo:    9 + i,
		})
	}

	findings := Detect(events)

	var traversal, envAccess *models.FindingCandidate
	for i := range findings {
		switch findings[i].FindingType {
		case "path_traversal":
			traversal = &findings[i]
		case "env_file_access":
			envAccess = &findings[i]
		}
	}

	require.NotNil(t, traversal)
	require.NotNil(t, envAccess)
	assert.Equal(t, models.SeverityHigh, traversal.Severity)
	assert.Equal(t, models.SeverityCritical, envAccess.Severity)
	assert.Equal(t, "10.0.0.5", traversal.Metadata["source_ip"])
	assert.Equal(t, 8, traversal.Metadata["count"])
	assert.Equal(t, 2, envAccess.Metadata["count"])
	assert.LessOrEqual(t, len(traversal.Evidence), models.MaxEvidence)
}

func TestDetect_FindingGroupingAtMostOnePerRuleIP(t *testing.T) {
	base := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	var events []models.LogEvent
	for i := 0; i < 10; i++ {
		events = append(events, models.LogEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			IP:        "10.0.0.5",
			Path:      "/wp-admin",
			Method:    "GET",
			UserAgent: "x",
			LineNo:    i + 1,
		})
	}

	findings := Detect(events)
	count := 0
	for _, f := range findings {
		if f.FindingType == "wp_admin_probe" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDetect_Burst404(t *testing.T) {
	base := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	var events []models.LogEvent
	for i := 0; i < 12; i++ {
		events = append(events, models.LogEvent{
			Timestamp: base.Add(time.Duration(i*40) * time.Second), // spread across 8 minutes
			IP:        "1.2.3.4",
			Path:      "/missing",
			Method:    "GET",
			Status:    404,
			UserAgent: "x",
			LineNo:    i + 1,
		})
	}

	findings := Detect(events)
	var burst *models.FindingCandidate
	for i := range findings {
		if findings[i].FindingType == "burst_404" {
			burst = &findings[i]
		}
	}
	require.NotNil(t, burst)
	assert.Equal(t, models.SeverityMedium, burst.Severity)
	assert.LessOrEqual(t, len(burst.Evidence), 5)
	count, ok := burst.Metadata["count"].(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, count, 10)
}

func TestMaxWindow_Maximality(t *testing.T) {
	base := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	events := []models.LogEvent{
		{Timestamp: base},
		{Timestamp: base.Add(1 * time.Minute)},
		{Timestamp: base.Add(2 * time.Minute)},
		{Timestamp: base.Add(20 * time.Minute)},
		{Timestamp: base.Add(21 * time.Minute)},
	}
	count, l, r := maxWindow(events, 10*time.Minute)
	assert.Equal(t, 3, count)
	assert.Equal(t, 0, l)
	assert.Equal(t, 2, r)
}

func TestDetect_EmptyUserAgentRule(t *testing.T) {
	events := []models.LogEvent{
		{Timestamp: time.Now().UTC(), IP: "5.5.5.5", Path: "/", Method: "GET", UserAgent: ""},
	}
	findings := Detect(events)
	found := false
	for _, f := range findings {
		if f.FindingType == "empty_user_agent" {
			found = true
		}
	}
	assert.True(t, found)
}
