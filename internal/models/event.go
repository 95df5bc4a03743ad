package models

import "time"

// LogEvent is a single normalized access-log line.
type LogEvent struct {
	Timestamp time.Time
	IP        string
	Method    string
	Path      string
	Protocol  string
	Status    int
	Bytes     int64
	Referer   string
	UserAgent string
	User      string
	Raw       string
	LineNo    int
}

// StatusClass buckets an HTTP status into the spec's five classes.
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

// ParseErrorSample is one of up to ten retained unparseable lines.
type ParseErrorSample struct {
	LineNo int
	Raw    string
	Err    string
}

// ParseResult accumulates the statistics and samples from one parse run.
type ParseResult struct {
	Format       string
	TotalLines   int
	ParsedLines  int
	FailedLines  int
	EmptyLines   int
	FirstSeen    time.Time
	LastSeenAt   time.Time
	haveBounds   bool
	Events       []LogEvent
	ErrorSamples []ParseErrorSample
}

// AddError records a parse error sample, keeping at most ten.
func (r *ParseResult) AddError(lineNo int, raw, errMsg string) {
	r.FailedLines++
	if len(r.ErrorSamples) < 10 {
		r.ErrorSamples = append(r.ErrorSamples, ParseErrorSample{LineNo: lineNo, Raw: raw, Err: errMsg})
	}
}

// AddEvent records a successfully parsed event and updates first/last bounds.
func (r *ParseResult) AddEvent(e LogEvent) {
	r.ParsedLines++
	r.Events = append(r.Events, e)
	if !r.haveBounds {
		r.FirstSeen = e.Timestamp
		r.LastSeenAt = e.Timestamp
		r.haveBounds = true
		return
	}
	if e.Timestamp.Before(r.FirstSeen) {
		r.FirstSeen = e.Timestamp
	}
	if e.Timestamp.After(r.LastSeenAt) {
		r.LastSeenAt = e.Timestamp
	}
}

// HasEvents reports whether at least one event was recorded.
func (r *ParseResult) HasEvents() bool { return r.haveBounds }
