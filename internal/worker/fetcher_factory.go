package worker

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/common"
	"github.com/ternarybob/logsentinel/internal/fetcher"
	"github.com/ternarybob/logsentinel/internal/models"
)

// buildFetcher translates a LogSource's loosely-typed Connection dict
// into the concrete Fetcher variant for its Type, applying FetcherConfig
// defaults for timeouts/retries/host-key policy.
func buildFetcher(src models.LogSource, cfg common.FetcherConfig, logger arbor.ILogger) (fetcher.Fetcher, error) {
	conn := src.Connection

	switch src.Type {
	case models.SourceTypeSSH, models.SourceTypeSFTP:
		return fetcher.NewSFTPFetcher(fetcher.SFTPConfig{
			Host:                  connString(conn, "host"),
			Port:                  connInt(conn, "port", 22),
			Username:              connString(conn, "username"),
			Password:              connString(conn, "password"),
			PrivateKey:            connString(conn, "private_key"),
			RemotePath:            connString(conn, "remote_path"),
			Pattern:               connString(conn, "pattern"),
			IncludeRotated:        connBool(conn, "include_rotated"),
			KnownHostsFile:        cfg.KnownHostsFile,
			InsecureIgnoreHostKey: cfg.InsecureIgnoreHostKey,
			ConnectTimeout:        common.ParseDuration(cfg.ConnectTimeout, 10*time.Second),
			Retries:               cfg.Retries,
			RetryDelay:            common.ParseDuration(cfg.RetryDelay, 2*time.Second),
		}, logger), nil

	case models.SourceTypeS3, models.SourceTypeGCS:
		return fetcher.NewObjectStoreFetcher(fetcher.ObjectStoreSourceConfig{
			Provider:        string(src.Type),
			Bucket:          connString(conn, "bucket"),
			Region:          connString(conn, "region"),
			Endpoint:        connString(conn, "endpoint"),
			AccessKeyID:     connString(conn, "access_key_id"),
			SecretAccessKey: connString(conn, "secret_access_key"),
			Prefix:          connString(conn, "prefix"),
			HoursAgo:        connInt(conn, "hours_ago", 0),
		}, logger), nil

	default:
		return nil, fmt.Errorf("unsupported source type %q", src.Type)
	}
}

func connString(conn map[string]any, key string) string {
	v, ok := conn[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func connBool(conn map[string]any, key string) bool {
	v, ok := conn[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func connInt(conn map[string]any, key string, fallback int) int {
	v, ok := conn[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
