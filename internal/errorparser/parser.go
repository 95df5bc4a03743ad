// Package errorparser implements the ErrorLogParser: it extracts structured
// error records from free-form application log blobs (Python tracebacks,
// JavaScript/Java stack traces, HTTP 5xx access lines, Apache/ModSecurity
// error lines) and fingerprints them into stable groups (spec §4.5).
package errorparser

import (
	"strings"
	"time"

	"github.com/ternarybob/logsentinel/internal/models"
)

type extractorFunc func(lines []string, defaultTimestamp time.Time) []models.ErrorRecord

// Parse extracts error records from blob. formatHint selects a single
// extractor (python/javascript/java/http/apache); FormatAuto runs all of
// them and concatenates results. defaultTimestamp is used when a record's
// own preceding-line timestamp can't be found - the caller passes the log
// file's uploaded_at.
func Parse(blob string, formatHint string, defaultTimestamp time.Time) []models.ErrorRecord {
	lines := strings.Split(blob, "\n")

	extractors := map[string]extractorFunc{
		FormatPython:     extractPython,
		FormatJavaScript: extractJavaScript,
		FormatJava:       extractJava,
		FormatHTTP:       extractHTTP,
		FormatApache:     extractApache,
	}

	if fn, ok := extractors[formatHint]; ok {
		records := fn(lines, defaultTimestamp)
		return withFingerprints(records)
	}

	var all []models.ErrorRecord
	for _, name := range []string{FormatPython, FormatJavaScript, FormatJava, FormatHTTP, FormatApache} {
		all = append(all, extractors[name](lines, defaultTimestamp)...)
	}
	return withFingerprints(all)
}

func withFingerprints(records []models.ErrorRecord) []models.ErrorRecord {
	for i := range records {
		records[i].Fingerprint = Fingerprint(records[i])
	}
	return records
}
