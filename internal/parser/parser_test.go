package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/logsentinel/internal/models"
)

func TestParse_NginxSingleLine(t *testing.T) {
	line := `192.168.1.1 - - [21/Jan/2026:10:30:00 +0000] "GET /api/users HTTP/1.1" 200 1234 "https://example.com" "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"`

	result, err := Parse(FormatNginxCombined, []byte(line))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	e := result.Events[0]
	assert.Equal(t, time.Date(2026, 1, 21, 10, 30, 0, 0, time.UTC), e.Timestamp)
	assert.Equal(t, "192.168.1.1", e.IP)
	assert.Equal(t, "GET", e.Method)
	assert.Equal(t, "/api/users", e.Path)
	assert.Equal(t, 200, e.Status)
	assert.EqualValues(t, 1234, e.Bytes)
	assert.Equal(t, "2xx", models.StatusClass(e.Status))
	assert.Equal(t, 1, e.LineNo)
	assert.Equal(t, line, e.Raw)
}

func TestParse_DashNormalization(t *testing.T) {
	line := `10.0.0.1 - - [21/Jan/2026:10:30:00 +0000] "GET / HTTP/1.1" 200 - "-" "-"`

	result, err := Parse(FormatNginxCombined, []byte(line))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	e := result.Events[0]
	assert.Equal(t, "", e.User)
	assert.Equal(t, "", e.Referer)
	assert.Equal(t, "", e.UserAgent)
	assert.EqualValues(t, 0, e.Bytes)
}

func TestParse_MalformedRequestLineBecomesPath(t *testing.T) {
	line := `10.0.0.1 - - [21/Jan/2026:10:30:00 +0000] "not a normal request at all here" 200 0 "-" "-"`

	result, err := Parse(FormatNginxCombined, []byte(line))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	e := result.Events[0]
	assert.Equal(t, "-", e.Method)
	assert.Equal(t, "not a normal request at all here", e.Path)
}

func TestParse_EmptyAndCommentLinesSkipped(t *testing.T) {
	blob := "\n# a comment\n   \n"
	result, err := Parse(FormatNginxCombined, []byte(blob))
	require.NoError(t, err)
	assert.Equal(t, 3, result.EmptyLines)
	assert.Equal(t, 0, result.ParsedLines)
	assert.Equal(t, 0, result.FailedLines)
}

func TestParse_UnparseableLinesAreSampledUpToTen(t *testing.T) {
	var blob string
	for i := 0; i < 15; i++ {
		blob += "this is not a valid log line\n"
	}
	result, err := Parse(FormatNginxCombined, []byte(blob))
	require.NoError(t, err)
	assert.Equal(t, 15, result.FailedLines)
	assert.Len(t, result.ErrorSamples, 10)
	assert.Equal(t, 1, result.ErrorSamples[0].LineNo)
}

func TestParse_InvalidStatusIsParseError(t *testing.T) {
	line := `10.0.0.1 - - [21/Jan/2026:10:30:00 +0000] "GET / HTTP/1.1" abc 10 "-" "-"`
	result, err := Parse(FormatNginxCombined, []byte(line))
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedLines)
	assert.Equal(t, 0, result.ParsedLines)
}

func TestParse_LineNumbersAre1IndexedAndRawMatchesTrimmed(t *testing.T) {
	blob := "bad line one\n" +
		`192.168.1.1 - - [21/Jan/2026:10:30:00 +0000] "GET /x HTTP/1.1" 200 1 "-" "-"` + "\n"

	result, err := Parse(FormatNginxCombined, []byte(blob))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, 2, result.Events[0].LineNo)
	require.Len(t, result.ErrorSamples, 1)
	assert.Equal(t, 1, result.ErrorSamples[0].LineNo)
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse("made_up_format", []byte("x"))
	assert.Error(t, err)
}
