// Package parser turns a declared log format and a byte stream into a
// models.ParseResult, per spec §4.1.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/logsentinel/internal/models"
)

// timeLayout is strptime "%d/%b/%Y:%H:%M:%S %z" in Go's reference-time form.
const timeLayout = "02/Jan/2006:15:04:05 -0700"

// Parse reads raw, a declared format, and returns a complete ParseResult.
// Empty lines and lines beginning with "#" are counted as empty and never
// emit events or errors. Unparseable non-empty lines increment
// FailedLines; the first ten are kept as error samples. Line numbers are
// 1-indexed over the raw stream.
func Parse(format string, raw []byte) (*models.ParseResult, error) {
	pattern, ok := patternFor(format)
	if !ok {
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	result := &models.ParseResult{Format: format}

	// UTF-8 decoding with replacement on invalid bytes, applied once up
	// front so every downstream string op sees valid UTF-8.
	decoded := toValidUTF8(raw)

	scanner := bufio.NewScanner(bytes.NewReader(decoded))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		result.TotalLines++

		line := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			result.EmptyLines++
			continue
		}

		event, err := parseLine(pattern, trimmed, lineNo)
		if err != nil {
			result.AddError(lineNo, trimmed, err.Error())
			continue
		}
		result.AddEvent(*event)
	}

	return result, nil
}

func toValidUTF8(raw []byte) []byte {
	if utf8.Valid(raw) {
		return raw
	}
	return []byte(strings.ToValidUTF8(string(raw), string(utf8.RuneError)))
}

func parseLine(pattern *regexp.Regexp, line string, lineNo int) (*models.LogEvent, error) {
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("line does not match combined log format")
	}

	remoteAddr := m[1]
	user := normalizeDash(m[3])
	timeToken := m[4]
	requestLine := m[5]
	statusToken := m[6]
	bytesToken := m[7]
	referer := normalizeDash(m[8])
	userAgent := normalizeDash(m[9])

	ts, err := time.Parse(timeLayout, timeToken)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", timeToken, err)
	}

	status, err := strconv.Atoi(statusToken)
	if err != nil {
		return nil, fmt.Errorf("invalid status %q", statusToken)
	}

	var size int64
	if bytesToken == "-" {
		size = 0
	} else {
		size, err = strconv.ParseInt(bytesToken, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes %q", bytesToken)
		}
	}

	method, path, protocol := splitRequestLine(requestLine)

	return &models.LogEvent{
		Timestamp: ts.UTC(),
		IP:        remoteAddr,
		Method:    method,
		Path:      path,
		Protocol:  protocol,
		Status:    status,
		Bytes:     size,
		Referer:   referer,
		UserAgent: userAgent,
		User:      user,
		Raw:       line,
		LineNo:    lineNo,
	}, nil
}

// splitRequestLine parses "METHOD SP PATH [SP PROTOCOL]". If it doesn't
// match that shape, the whole request string becomes the path and method
// is "-" (spec §4.1).
func splitRequestLine(requestLine string) (method, path, protocol string) {
	if requestLine == "" {
		return "-", "", ""
	}
	m := requestLinePattern.FindStringSubmatch(requestLine)
	if m == nil {
		return "-", requestLine, ""
	}
	return m[1], m[2], m[3]
}

// normalizeDash maps the combined-log "-" placeholder to the empty
// string, representing null for user/referer/user-agent fields.
func normalizeDash(v string) string {
	if v == "-" {
		return ""
	}
	return v
}
