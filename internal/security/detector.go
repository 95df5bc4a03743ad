// Package security implements the two-tier SecurityDetector: per-event
// rules grouped by (rule_name, source_ip), and sliding-window burst
// rules (spec §4.3).
package security

import (
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/logsentinel/internal/models"
)

// Detect runs all built-in event and burst rules over events and returns
// the resulting FindingCandidates.
func Detect(events []models.LogEvent) []models.FindingCandidate {
	var findings []models.FindingCandidate
	findings = append(findings, detectEventRules(events)...)
	findings = append(findings, detectBurstRules(events)...)
	return findings
}

// detectEventRules groups matches by (rule_name, source_ip); at most one
// finding is emitted per group (testable property 7).
func detectEventRules(events []models.LogEvent) []models.FindingCandidate {
	type groupKey struct {
		rule string
		ip   string
	}
	groups := make(map[groupKey][]models.LogEvent)

	for _, rule := range EventRules {
		for _, e := range events {
			if rule.Match(e) {
				k := groupKey{rule: rule.Name, ip: e.IP}
				groups[k] = append(groups[k], e)
			}
		}
	}

	// Deterministic emission order: iterate rules then group by first
	// appearance of each IP, rather than ranging the map directly.
	var findings []models.FindingCandidate
	for _, rule := range EventRules {
		seenIPs := make(map[string]bool)
		for _, e := range events {
			if !rule.Match(e) || seenIPs[e.IP] {
				continue
			}
			seenIPs[e.IP] = true

			matched := groups[groupKey{rule: rule.Name, ip: e.IP}]
			findings = append(findings, buildEventFinding(rule, e.IP, matched))
		}
	}
	return findings
}

func buildEventFinding(rule EventRule, ip string, matched []models.LogEvent) models.FindingCandidate {
	sorted := append([]models.LogEvent(nil), matched...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	f := models.FindingCandidate{
		FindingType:     rule.Name,
		Severity:        rule.Severity,
		Title:           fmt.Sprintf(rule.Description, ip),
		Description:     fmt.Sprintf(rule.Description, ip),
		SuggestedAction: rule.Suggestion,
		Metadata: map[string]any{
			"source_ip":  ip,
			"count":      len(sorted),
			"first_seen": sorted[0].Timestamp,
			"last_seen":  sorted[len(sorted)-1].Timestamp,
		},
	}
	for _, e := range sorted {
		f.AddEvidence(e.LineNo, e.Raw)
	}
	return f
}

// detectBurstRules sweeps a two-pointer sliding window per IP per burst
// rule and emits one finding per IP for the maximal window of width W
// that meets the threshold (testable property 8).
func detectBurstRules(events []models.LogEvent) []models.FindingCandidate {
	var findings []models.FindingCandidate

	for _, rule := range BurstRules {
		byIP := make(map[string][]models.LogEvent)
		order := []string{}
		for _, e := range events {
			if !rule.Match(e.Status) {
				continue
			}
			if _, ok := byIP[e.IP]; !ok {
				order = append(order, e.IP)
			}
			byIP[e.IP] = append(byIP[e.IP], e)
		}

		for _, ip := range order {
			matched := byIP[ip]
			sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })

			bestCount, bestL, bestR := maxWindow(matched, time.Duration(rule.WindowMins)*time.Minute)
			if bestCount < rule.Threshold {
				continue
			}

			window := matched[bestL : bestR+1]
			f := models.FindingCandidate{
				FindingType:     rule.Name,
				Severity:        rule.Severity,
				Title:           fmt.Sprintf(rule.Description, ip),
				Description:     fmt.Sprintf(rule.Description, ip),
				SuggestedAction: rule.Suggestion,
				Metadata: map[string]any{
					"source_ip":  ip,
					"count":      bestCount,
					"first_seen": window[0].Timestamp,
					"last_seen":  window[len(window)-1].Timestamp,
				},
			}
			for _, e := range window {
				f.AddEvidence(e.LineNo, e.Raw)
			}
			findings = append(findings, f)
		}
	}

	return findings
}

// maxWindow returns the size and [l,r] bounds (inclusive) of the largest
// window of width <= w over events, which must already be sorted
// ascending by timestamp.
func maxWindow(events []models.LogEvent, w time.Duration) (count, bestL, bestR int) {
	l := 0
	for r := range events {
		for events[r].Timestamp.Sub(events[l].Timestamp) > w {
			l++
		}
		cur := r - l + 1
		if cur > count {
			count = cur
			bestL = l
			bestR = r
		}
	}
	return count, bestL, bestR
}
