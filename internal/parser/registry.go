package parser

import "regexp"

// Format names accepted by Parse (spec §4.1).
const (
	FormatNginxCombined  = "nginx_combined"
	FormatApacheCombined = "apache_combined"
)

// combinedLogPattern matches the nine space/quote-delimited tokens of the
// nginx/apache combined log format:
//
//	remote_addr ident user [time] "request" status bytes "referer" "user-agent"
//
// Precompiled once at package load and kept in a registry keyed by format,
// per the design note against compiling regexes per-call.
var combinedLogPattern = regexp.MustCompile(
	`^(\S+) (\S+) (\S+) \[([^\]]+)\] "([^"]*)" (\S+) (\S+) "([^"]*)" "([^"]*)"`,
)

// requestLinePattern splits a request line into METHOD, PATH, PROTOCOL.
var requestLinePattern = regexp.MustCompile(`^(\S+)\s+(\S+)(?:\s+(\S+))?$`)

// registry maps a declared format to its line pattern. Both combined
// formats share the same wire shape; kept as a registry (rather than one
// global regexp) so a future format can be added without touching the
// parse loop.
var registry = map[string]*regexp.Regexp{
	FormatNginxCombined:  combinedLogPattern,
	FormatApacheCombined: combinedLogPattern,
}

func patternFor(format string) (*regexp.Regexp, bool) {
	p, ok := registry[format]
	return p, ok
}
