package fetcher

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
)

func TestMaybeDecompress_ValidGzip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write([]byte("line one\nline two\n"))
	_ = w.Close()

	name, data := maybeDecompress("access.log.gz", buf.Bytes())
	assert.Equal(t, "access.log", name)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestMaybeDecompress_CorruptGzipKeepsOriginal(t *testing.T) {
	original := []byte("not actually gzip")
	name, data := maybeDecompress("access.log.gz", original)
	assert.Equal(t, "access.log.gz", name)
	assert.Equal(t, original, data)
}

func TestMaybeDecompress_NonGzNameUntouched(t *testing.T) {
	original := []byte("plain text")
	name, data := maybeDecompress("access.log", original)
	assert.Equal(t, "access.log", name)
	assert.Equal(t, original, data)
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, matchesPattern("access.log", "access.log"))
	assert.True(t, matchesPattern("access.log", "*.log"))
	assert.False(t, matchesPattern("access.log.1", "*.log"))
}

func TestKeyBase(t *testing.T) {
	assert.Equal(t, "access.log", keyBase("logs/2026/01/access.log"))
	assert.Equal(t, "access.log", keyBase("access.log"))
}
