package models

import (
	"sort"
	"strconv"
	"time"
)

// countEntry is a (key, count, insertion order) triple used for top-K.
type countEntry struct {
	key    string
	count  int
	seenAt int // first-seen insertion order, used as a stable tie-breaker
}

// Counter is a hash map plus lazy sort at read time. Per the design notes,
// top-K here is never built with a heap: N is always small (<=10) so
// sorting the entries at read time beats maintaining ordering on every
// insert.
type Counter struct {
	entries map[string]*countEntry
	order   int
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{entries: make(map[string]*countEntry)}
}

// Add increments key's count, recording first-seen order on first insert.
func (c *Counter) Add(key string) {
	e, ok := c.entries[key]
	if !ok {
		c.entries[key] = &countEntry{key: key, count: 1, seenAt: c.order}
		c.order++
		return
	}
	e.count++
}

// Merge folds another Counter's counts into this one, preserving this
// Counter's insertion order for keys it already holds and appending new
// keys from other in other's insertion order.
func (c *Counter) Merge(other *Counter) {
	if other == nil {
		return
	}
	for _, e := range other.sortedByInsertion() {
		if existing, ok := c.entries[e.key]; ok {
			existing.count += e.count
			continue
		}
		c.entries[e.key] = &countEntry{key: e.key, count: e.count, seenAt: c.order}
		c.order++
	}
}

func (c *Counter) sortedByInsertion() []countEntry {
	items := make([]countEntry, 0, len(c.entries))
	for _, e := range c.entries {
		items = append(items, *e)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seenAt < items[j].seenAt })
	return items
}

// Len returns the number of distinct keys.
func (c *Counter) Len() int { return len(c.entries) }

// CountOf returns the current count for key (0 if unseen).
func (c *Counter) CountOf(key string) int {
	if e, ok := c.entries[key]; ok {
		return e.count
	}
	return 0
}

// Keys returns all distinct keys in insertion order.
func (c *Counter) Keys() []string {
	items := c.sortedByInsertion()
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.key
	}
	return out
}

// TopN returns the top-n entries ordered by count descending, ties broken
// by insertion order (stable, ascending - first seen wins a tie).
func (c *Counter) TopN(n int) []CountItem {
	items := c.sortedByInsertion()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].count > items[j].count
	})
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	out := make([]CountItem, len(items))
	for i, e := range items {
		out[i] = CountItem{Key: e.key, Count: e.count}
	}
	return out
}

// CountItem is one entry of a top-K result.
type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// HourlyBucket accumulates one UTC hour of traffic during a single parse.
type HourlyBucket struct {
	Hour        time.Time
	Requests    int
	Status2xx   int
	Status3xx   int
	Status4xx   int
	Status5xx   int
	StatusOther int
	Bytes       int64

	ips        map[string]struct{}
	ipCounts   *Counter
	paths      *Counter
	userAgents *Counter
	statuses   *Counter
}

// NewHourlyBucket creates an empty bucket truncated to the top of hour.
func NewHourlyBucket(hour time.Time) *HourlyBucket {
	return &HourlyBucket{
		Hour:       hour.Truncate(time.Hour).UTC(),
		ips:        make(map[string]struct{}),
		ipCounts:   NewCounter(),
		paths:      NewCounter(),
		userAgents: NewCounter(),
		statuses:   NewCounter(),
	}
}

// Add folds one event into the bucket. Caller guarantees e.Timestamp
// truncates to Hour.
func (b *HourlyBucket) Add(e LogEvent) {
	b.Requests++
	switch StatusClass(e.Status) {
	case "2xx":
		b.Status2xx++
	case "3xx":
		b.Status3xx++
	case "4xx":
		b.Status4xx++
	case "5xx":
		b.Status5xx++
	default:
		b.StatusOther++
	}
	b.Bytes += e.Bytes
	b.ips[e.IP] = struct{}{}
	b.ipCounts.Add(e.IP)
	b.paths.Add(e.Path)
	b.userAgents.Add(e.UserAgent)
	b.statuses.Add(strconv.Itoa(e.Status))
}

// UniqueIPs returns the cardinality of the bucket's IP set.
func (b *HourlyBucket) UniqueIPs() int { return len(b.ips) }

// UniquePaths returns the cardinality of the bucket's path counter.
func (b *HourlyBucket) UniquePaths() int { return b.paths.Len() }

// BucketDict is the JSON-ready rendering of a bucket with top-K summaries.
type BucketDict struct {
	Hour           time.Time    `json:"hour"`
	Requests       int          `json:"requests"`
	Status2xx      int          `json:"status_2xx"`
	Status3xx      int          `json:"status_3xx"`
	Status4xx      int          `json:"status_4xx"`
	Status5xx      int          `json:"status_5xx"`
	StatusOther    int          `json:"other"`
	Bytes          int64        `json:"bytes"`
	UniqueIPs      int          `json:"unique_ips"`
	UniquePaths    int          `json:"unique_paths"`
	TopPaths       []CountItem  `json:"top_paths"`
	TopIPs         []CountItem  `json:"top_ips"`
	TopUserAgents  []CountItem  `json:"top_user_agents"`
	TopStatusCodes []CountItem  `json:"top_status_codes"`
}

// ToDict renders the bucket with each top-K list capped at topN entries.
//
// top_ips uses the per-IP request count (ipCounts), not set membership -
// see spec.md design notes open question #5.
func (b *HourlyBucket) ToDict(topN int) BucketDict {
	return BucketDict{
		Hour:           b.Hour,
		Requests:       b.Requests,
		Status2xx:      b.Status2xx,
		Status3xx:      b.Status3xx,
		Status4xx:      b.Status4xx,
		Status5xx:      b.Status5xx,
		StatusOther:    b.StatusOther,
		Bytes:          b.Bytes,
		UniqueIPs:      b.UniqueIPs(),
		UniquePaths:    b.UniquePaths(),
		TopPaths:       b.paths.TopN(topN),
		TopIPs:         b.ipCounts.TopN(topN),
		TopUserAgents:  b.userAgents.TopN(topN),
		TopStatusCodes: b.statuses.TopN(topN),
	}
}

// AggregationResult is the complete output of one file's aggregation pass.
type AggregationResult struct {
	Buckets       []*HourlyBucket
	TotalRequests int
	Status2xx     int
	Status3xx     int
	Status4xx     int
	Status5xx     int
	StatusOther   int
	TotalBytes    int64
	FirstSeen     time.Time
	LastSeen      time.Time
	HaveBounds    bool

	Methods     *Counter
	TopPaths    *Counter
	TopIPs      *Counter
	TopUAs      *Counter
	TopReferers *Counter
}

// NewAggregationResult creates an empty result with initialized rollups.
func NewAggregationResult() *AggregationResult {
	return &AggregationResult{
		Methods:     NewCounter(),
		TopPaths:    NewCounter(),
		TopIPs:      NewCounter(),
		TopUAs:      NewCounter(),
		TopReferers: NewCounter(),
	}
}

// BucketFor returns the bucket for hour, creating and appending it if absent.
// index is an auxiliary map the aggregator maintains from hour to Buckets slot.
func (r *AggregationResult) BucketFor(hour time.Time, index map[time.Time]*HourlyBucket) *HourlyBucket {
	truncated := hour.Truncate(time.Hour).UTC()
	if b, ok := index[truncated]; ok {
		return b
	}
	b := NewHourlyBucket(truncated)
	index[truncated] = b
	r.Buckets = append(r.Buckets, b)
	return b
}
