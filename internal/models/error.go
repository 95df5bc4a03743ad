package models

import "time"

// ErrorStatus is the lifecycle state of an ErrorGroup.
type ErrorStatus string

const (
	ErrorStatusUnresolved ErrorStatus = "unresolved"
	ErrorStatusResolved   ErrorStatus = "resolved"
	ErrorStatusIgnored    ErrorStatus = "ignored"
)

// ErrorRecord is one exception/error extracted by ErrorLogParser.
type ErrorRecord struct {
	ErrorType   string
	Message     string
	Timestamp   time.Time
	Stack       string
	File        string
	Line        int
	Function    string
	RequestURL  string
	RequestMethod string
	IP          string
	User        string
	Context     map[string]any
	Fingerprint string
}

// ErrorGroup is the canonical, deduplicated identity of a recurring error
// within one site. (site, fingerprint) is unique.
type ErrorGroup struct {
	Site             string
	Fingerprint      string
	ErrorType        string
	CanonicalMessage string
	FirstSeen        time.Time
	LastSeen         time.Time
	OccurrenceCount  int
	Status           ErrorStatus
	ResolvedAt       *time.Time
	DeploymentID     *string
}

// Touch folds one new occurrence's timestamp into the group's bounds and
// bumps the occurrence count. Called once per newly-inserted occurrence,
// never on a duplicate that INSERT OR IGNORE rejected.
func (g *ErrorGroup) Touch(ts time.Time) {
	if g.OccurrenceCount == 0 {
		g.FirstSeen = ts
		g.LastSeen = ts
	} else {
		if ts.Before(g.FirstSeen) {
			g.FirstSeen = ts
		}
		if ts.After(g.LastSeen) {
			g.LastSeen = ts
		}
	}
	g.OccurrenceCount++
}

// ErrorOccurrence is one append-only instance of an ErrorGroup. LogFileID
// is nil when the error was not tied to a specific ingested log file.
type ErrorOccurrence struct {
	GroupFingerprint string
	Site             string
	LogFileID        *string
	Timestamp        time.Time
	ErrorType        string
	Message          string
	Stack            string
	File             string
	Line             int
	Function         string
	RequestURL       string
	RequestMethod    string
	IP               string
	User             string
	Context          map[string]any
}

// DedupKey is the composite key ErrorOccurrence upserts are keyed on, per
// the decided duplicate-occurrence policy: a redelivered ingest task is a
// no-op insert against (group_fingerprint, timestamp, message).
func (o ErrorOccurrence) DedupKey() (fingerprint string, timestamp time.Time, message string) {
	return o.GroupFingerprint, o.Timestamp, o.Message
}
