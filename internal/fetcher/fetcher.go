// Package fetcher implements the Fetcher component (spec §4.6): scheduled
// SFTP / object-store pullers that discover files, handle gzip and log
// rotation, and stream results into the ObjectStore.
package fetcher

import (
	"bytes"
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
)

// FetchedFile is one file pulled from a remote source.
type FetchedFile struct {
	Name string
	Data []byte
	Size int64
}

// Fetcher is the shared contract both the SFTP and object-store variants
// satisfy.
type Fetcher interface {
	TestConnection(ctx context.Context) (bool, string)
	Fetch(ctx context.Context) ([]FetchedFile, error)
	Cleanup() error
}

// maybeDecompress gzip-decodes data when name ends in ".gz". Decompression
// is best-effort: on failure the original bytes and name are kept, per
// spec §4.6.
func maybeDecompress(name string, data []byte) (string, []byte) {
	if len(data) < 2 || !hasGzSuffix(name) {
		return name, data
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return name, data
	}
	defer r.Close()

	decompressed, err := io.ReadAll(r)
	if err != nil {
		return name, data
	}

	return trimGzSuffix(name), decompressed
}

func hasGzSuffix(name string) bool {
	return len(name) > 3 && name[len(name)-3:] == ".gz"
}

func trimGzSuffix(name string) string {
	return name[:len(name)-3]
}
