package errorparser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/ternarybob/logsentinel/internal/models"
)

var (
	hexPattern       = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	doubleQuoted     = regexp.MustCompile(`"[^"]*"`)
	singleQuoted     = regexp.MustCompile(`'[^']*'`)
	absolutePath     = regexp.MustCompile(`(?:^|[\s(])(/[\w./-]+)`)
	integerPattern   = regexp.MustCompile(`\b\d+\b`)
)

// normalizeMessage replaces variable substrings so records differing only
// in numeric/hex/quoted/path/URL content normalize identically (spec
// §4.5, testable property 6). Order matters: URLs and hex must be
// replaced before the generic integer pass would otherwise mangle them.
func normalizeMessage(msg string) string {
	msg = urlPattern.ReplaceAllString(msg, "URL")
	msg = hexPattern.ReplaceAllString(msg, "0xHEX")
	msg = doubleQuoted.ReplaceAllString(msg, `"STR"`)
	msg = singleQuoted.ReplaceAllString(msg, `'STR'`)
	msg = absolutePath.ReplaceAllStringFunc(msg, func(m string) string {
		loc := absolutePath.FindStringSubmatchIndex(m)
		if loc == nil {
			return m
		}
		prefix := m[:loc[2]]
		return prefix + "/PATH"
	})
	msg = integerPattern.ReplaceAllString(msg, "N")
	return msg
}

// Fingerprint computes the stable SHA-256 hex digest identifying a class
// of errors regardless of variable payload (spec §4.5).
func Fingerprint(r models.ErrorRecord) string {
	normalized := normalizeMessage(r.Message)
	base := fmt.Sprintf("%s | %s", r.ErrorType, normalized)

	switch {
	case r.File != "" && r.Line > 0:
		base += fmt.Sprintf(" %s:%d", r.File, r.Line)
	case r.Stack != "":
		if frame := firstStackFrame(r.Stack); frame != "" {
			base += " " + frame
		}
	}

	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

var stackFrameLine = regexp.MustCompile(`^\s*(?:File "([^"]+)", line (\d+)|at [\w.$]+\(([^:]+):(\d+)\))`)

func firstStackFrame(stack string) string {
	m := stackFrameLine.FindStringSubmatch(stack)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return fmt.Sprintf("%s:%s", m[1], m[2])
	}
	if m[3] != "" {
		return fmt.Sprintf("%s:%s", m[3], m[4])
	}
	return ""
}
