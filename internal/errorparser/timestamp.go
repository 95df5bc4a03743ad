package errorparser

import (
	"regexp"
	"strings"
	"time"
)

// isoCandidate matches ISO-8601 variants with/without fractional seconds
// and with/without a trailing zone, plus the Python-style comma-fraction
// form ("2026-01-21 10:00:00,123").
var isoCandidate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)

// accessLogCandidate matches the "%d/%b/%Y:%H:%M:%S" access-log timestamp
// form (zone is matched but discarded per spec).
var accessLogCandidate = regexp.MustCompile(`\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}:\d{2}(?:\s[+-]\d{4})?`)

// ctimeCandidate matches the Apache ctime form "%a %b %d %H:%M:%S %Y".
var ctimeCandidate = regexp.MustCompile(`[A-Za-z]{3} [A-Za-z]{3} [ \d]\d \d{2}:\d{2}:\d{2} \d{4}`)

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FindTimestamp scans text for the first recognizable timestamp and
// returns it in UTC, or ok=false if none was found.
func FindTimestamp(text string) (time.Time, bool) {
	if m := isoCandidate.FindString(text); m != "" {
		normalized := strings.Replace(m, ",", ".", 1)
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, normalized); err == nil {
				return t.UTC(), true
			}
		}
	}
	if m := accessLogCandidate.FindString(text); m != "" {
		// Zone is discarded per spec; parse the bare layout.
		base := m
		if idx := strings.Index(m, " "); idx != -1 {
			base = m[:idx]
		}
		if t, err := time.Parse("02/Jan/2006:15:04:05", base); err == nil {
			return t.UTC(), true
		}
	}
	if m := ctimeCandidate.FindString(text); m != "" {
		if t, err := time.Parse("Mon Jan 2 15:04:05 2006", m); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
