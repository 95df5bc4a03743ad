package errorparser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/logsentinel/internal/models"
)

const (
	FormatAuto       = "auto"
	FormatPython     = "python"
	FormatJavaScript = "javascript"
	FormatJava       = "java"
	FormatHTTP       = "http"
	FormatApache     = "apache"
)

var pythonTracebackHeader = regexp.MustCompile(`^Traceback \(most recent call last\):\s*$`)
var pythonFrameLine = regexp.MustCompile(`^\s*File "([^"]+)", line (\d+), in (\S+)`)
var pythonSummaryLine = regexp.MustCompile(`^([\w.]+(?:Error|Exception|Warning))(?::\s*(.*))?$`)

// extractPython scans for a Python traceback block: a "Traceback (most
// recent call last):" header, indented "File ..., line N, in func" frames,
// and a trailing "ErrorType: message" summary line that is not indented.
func extractPython(lines []string, defaultTimestamp time.Time) []models.ErrorRecord {
	var out []models.ErrorRecord

	for i, line := range lines {
		if !pythonTracebackHeader.MatchString(line) {
			continue
		}

		var lastFile, lastFunc string
		var lastLine int
		var stackLines []string
		j := i + 1
		for ; j < len(lines); j++ {
			if m := pythonFrameLine.FindStringSubmatch(lines[j]); m != nil {
				lastFile = m[1]
				lastLine, _ = strconv.Atoi(m[2])
				lastFunc = m[3]
				stackLines = append(stackLines, lines[j])
				continue
			}
			trimmed := strings.TrimRight(lines[j], " \t")
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(lines[j], " ") || strings.HasPrefix(lines[j], "\t") {
				stackLines = append(stackLines, lines[j])
				continue
			}
			break
		}
		if j >= len(lines) {
			continue
		}

		summary := pythonSummaryLine.FindStringSubmatch(strings.TrimSpace(lines[j]))
		if summary == nil {
			continue
		}

		ts := defaultTimestamp
		if i > 0 {
			if t, ok := FindTimestamp(lines[i-1]); ok {
				ts = t
			}
		}

		out = append(out, models.ErrorRecord{
			ErrorType: summary[1],
			Message:   summary[2],
			Timestamp: ts,
			Stack:     strings.Join(stackLines, "\n"),
			File:      lastFile,
			Line:      lastLine,
			Function:  lastFunc,
		})
	}

	return out
}

var jsErrorLine = regexp.MustCompile(`^(\S+(?:Error|Exception)):\s*(.*)$`)
var jsFrameLine = regexp.MustCompile(`^\s*at\s+(?:(\S+)\s+\()?([^():]+):(\d+):(\d+)\)?`)

// extractJavaScript scans for a "TypeError: message" line followed by one
// or more indented "at func (file:line:col)" stack frames.
func extractJavaScript(lines []string, defaultTimestamp time.Time) []models.ErrorRecord {
	var out []models.ErrorRecord

	for i, line := range lines {
		m := jsErrorLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		var stackLines []string
		var topFile, topFunc string
		var topLine int
		j := i + 1
		for ; j < len(lines) && jsFrameLine.MatchString(lines[j]); j++ {
			stackLines = append(stackLines, lines[j])
			if topFile == "" {
				fm := jsFrameLine.FindStringSubmatch(lines[j])
				topFunc = fm[1]
				topFile = fm[2]
				topLine, _ = strconv.Atoi(fm[3])
			}
		}
		if len(stackLines) == 0 {
			continue
		}

		ts := defaultTimestamp
		if i > 0 {
			if t, ok := FindTimestamp(lines[i-1]); ok {
				ts = t
			}
		}

		out = append(out, models.ErrorRecord{
			ErrorType: m[1],
			Message:   m[2],
			Timestamp: ts,
			Stack:     strings.Join(stackLines, "\n"),
			File:      topFile,
			Line:      topLine,
			Function:  topFunc,
		})
	}

	return out
}

var javaErrorLine = regexp.MustCompile(`^(?:Caused by:\s*)?((?:[\w.]+\.)?\w*(?:Exception|Error))(?::\s*(.*))?$`)
var javaFrameLine = regexp.MustCompile(`^\s*at ([\w.$]+)\(([^:)]+)(?::(\d+))?\)`)

// extractJava scans for a "java.lang.XException: message" or "Caused by:"
// line followed by indented "at pkg.Class.method(File.java:N)" frames.
func extractJava(lines []string, defaultTimestamp time.Time) []models.ErrorRecord {
	var out []models.ErrorRecord

	for i, line := range lines {
		m := javaErrorLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || !strings.Contains(m[1], ".") {
			continue
		}

		var stackLines []string
		var topFile, topFunc string
		var topLine int
		j := i + 1
		for ; j < len(lines) && javaFrameLine.MatchString(lines[j]); j++ {
			stackLines = append(stackLines, lines[j])
			if topFile == "" {
				fm := javaFrameLine.FindStringSubmatch(lines[j])
				topFunc = fm[1]
				topFile = fm[2]
				if fm[3] != "" {
					topLine, _ = strconv.Atoi(fm[3])
				}
			}
		}
		if len(stackLines) == 0 {
			continue
		}

		ts := defaultTimestamp
		if i > 0 {
			if t, ok := FindTimestamp(lines[i-1]); ok {
				ts = t
			}
		}

		out = append(out, models.ErrorRecord{
			ErrorType: m[1],
			Message:   m[2],
			Timestamp: ts,
			Stack:     strings.Join(stackLines, "\n"),
			File:      topFile,
			Line:      topLine,
			Function:  topFunc,
		})
	}

	return out
}

var http5xxLine = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "(\S+) (\S+)[^"]*" (5\d{2})`)

// extractHTTP scans raw access-log style lines for 5xx responses.
func extractHTTP(lines []string, defaultTimestamp time.Time) []models.ErrorRecord {
	var out []models.ErrorRecord

	for _, line := range lines {
		m := http5xxLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts := defaultTimestamp
		if t, ok := FindTimestamp(m[2]); ok {
			ts = t
		}
		status := m[5]
		out = append(out, models.ErrorRecord{
			ErrorType:     "HTTP" + status + "Error",
			Message:       "server error response",
			Timestamp:     ts,
			RequestURL:    m[4],
			RequestMethod: m[3],
			IP:            m[1],
		})
	}

	return out
}

var apacheFieldPair = regexp.MustCompile(`\[(\w+) "([^"]*)"\]`)
var apacheErrorLine = regexp.MustCompile(`^\[([^\]]+)\]\s*\[([^\]]+)\]\s*(.*)$`)

// extractApache scans Apache/ModSecurity style error-log lines:
// "[Wed Jan 21 10:00:00 2026] [error] message [key \"value\"] ..."
func extractApache(lines []string, defaultTimestamp time.Time) []models.ErrorRecord {
	var out []models.ErrorRecord

	for _, line := range lines {
		m := apacheErrorLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts := defaultTimestamp
		if t, ok := FindTimestamp(m[1]); ok {
			ts = t
		}

		ctx := make(map[string]any)
		for _, pair := range apacheFieldPair.FindAllStringSubmatch(line, -1) {
			ctx[pair[1]] = pair[2]
		}

		out = append(out, models.ErrorRecord{
			ErrorType: strings.ToUpper(m[2]),
			Message:   strings.TrimSpace(apacheFieldPair.ReplaceAllString(m[3], "")),
			Timestamp: ts,
			Context:   ctx,
		})
	}

	return out
}
