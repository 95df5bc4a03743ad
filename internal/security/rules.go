package security

import (
	"regexp"
	"strings"

	"github.com/ternarybob/logsentinel/internal/models"
)

// EventRule is a per-event predicate rule (spec §4.3). Precompiled at
// package load, per the design note against compiling regexes per call.
type EventRule struct {
	Name        string
	Severity    models.Severity
	Description string
	Suggestion  string
	Match       func(e models.LogEvent) bool
}

var pathTraversalPattern = regexp.MustCompile(`\.\./|%2e%2e`)
var envFilePattern = regexp.MustCompile(`(?i)/\.env`)
var wpAdminPattern = regexp.MustCompile(`(?i)/wp-admin|/wp-login`)
var phpMyAdminPattern = regexp.MustCompile(`(?i)/phpmyadmin|/pma`)
var cgiBinPattern = regexp.MustCompile(`(?i)/cgi-bin/`)

var suspiciousMethods = map[string]bool{"TRACE": true, "CONNECT": true}

// EventRules is the built-in per-event rule set (spec §4.3 table).
var EventRules = []EventRule{
	{
		Name:        "path_traversal",
		Severity:    models.SeverityHigh,
		Description: "Path traversal attempt from %s",
		Suggestion:  "Block or rate-limit the source IP; review server path normalization",
		Match:       func(e models.LogEvent) bool { return pathTraversalPattern.MatchString(strings.ToLower(e.Path)) },
	},
	{
		Name:        "env_file_access",
		Severity:    models.SeverityCritical,
		Description: "Attempted access to .env file from %s",
		Suggestion:  "Ensure .env files are not served; rotate any exposed secrets",
		Match:       func(e models.LogEvent) bool { return envFilePattern.MatchString(e.Path) },
	},
	{
		Name:        "wp_admin_probe",
		Severity:    models.SeverityMedium,
		Description: "WordPress admin probe from %s",
		Suggestion:  "Monitor for brute-force login attempts",
		Match:       func(e models.LogEvent) bool { return wpAdminPattern.MatchString(e.Path) },
	},
	{
		Name:        "phpmyadmin_probe",
		Severity:    models.SeverityMedium,
		Description: "phpMyAdmin probe from %s",
		Suggestion:  "Confirm phpMyAdmin is not exposed publicly",
		Match:       func(e models.LogEvent) bool { return phpMyAdminPattern.MatchString(e.Path) },
	},
	{
		Name:        "cgi_bin_probe",
		Severity:    models.SeverityMedium,
		Description: "cgi-bin probe from %s",
		Suggestion:  "Confirm no legacy CGI scripts are exposed",
		Match:       func(e models.LogEvent) bool { return cgiBinPattern.MatchString(e.Path) },
	},
	{
		Name:        "empty_user_agent",
		Severity:    models.SeverityLow,
		Description: "Requests with empty user-agent from %s",
		Suggestion:  "Investigate automated/scripted traffic from this source",
		Match:       func(e models.LogEvent) bool { return e.UserAgent == "" },
	},
	{
		Name:        "suspicious_method",
		Severity:    models.SeverityMedium,
		Description: "Suspicious HTTP method from %s",
		Suggestion:  "Disable TRACE/CONNECT methods at the server or proxy",
		Match:       func(e models.LogEvent) bool { return suspiciousMethods[e.Method] },
	},
}

// BurstRule is a sliding-window rule over a status predicate (spec §4.3).
type BurstRule struct {
	Name        string
	Severity    models.Severity
	Description string
	Suggestion  string
	Threshold   int
	WindowMins  int
	Match       func(status int) bool
}

// BurstRules is the built-in burst-rule set.
var BurstRules = []BurstRule{
	{
		Name:        "burst_404",
		Severity:    models.SeverityMedium,
		Description: "Burst of 404 responses from %s",
		Suggestion:  "Likely scanning/enumeration; consider rate-limiting",
		Threshold:   10,
		WindowMins:  10,
		Match:       func(status int) bool { return status == 404 },
	},
	{
		Name:        "burst_500",
		Severity:    models.SeverityHigh,
		Description: "Burst of 5xx responses from %s",
		Suggestion:  "Investigate backend errors correlated with this source",
		Threshold:   5,
		WindowMins:  10,
		Match:       func(status int) bool { return status >= 500 && status < 600 },
	},
}
