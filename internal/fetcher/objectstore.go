package fetcher

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ternarybob/arbor"
	"google.golang.org/api/iterator"
)

// ObjectStoreSourceConfig mirrors a LogSource's connection dict for
// type=s3/gcs. This is the remote bucket a log source is pulled FROM, not
// the internal ObjectStore the pipeline writes ingested artifacts to.
type ObjectStoreSourceConfig struct {
	Provider        string // "s3" | "gcs"
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	Prefix  string
	HoursAgo int // 0 disables the LastModified filter
}

// ObjectStoreFetcher pulls files from an S3 or GCS bucket acting as a log
// source.
type ObjectStoreFetcher struct {
	cfg    ObjectStoreSourceConfig
	logger arbor.ILogger

	s3Client  *s3.Client
	gcsClient *storage.Client
}

// NewObjectStoreFetcher builds a fetcher for the given bucket config.
func NewObjectStoreFetcher(cfg ObjectStoreSourceConfig, logger arbor.ILogger) *ObjectStoreFetcher {
	return &ObjectStoreFetcher{cfg: cfg, logger: logger}
}

func (f *ObjectStoreFetcher) connect(ctx context.Context) error {
	switch f.cfg.Provider {
	case "s3":
		if f.s3Client != nil {
			return nil
		}
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(f.cfg.Region),
		}
		if f.cfg.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(f.cfg.AccessKeyID, f.cfg.SecretAccessKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		f.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if f.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(f.cfg.Endpoint)
			}
		})
		return nil
	case "gcs":
		if f.gcsClient != nil {
			return nil
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		f.gcsClient = client
		return nil
	default:
		return fmt.Errorf("unknown object store provider %q", f.cfg.Provider)
	}
}

// TestConnection verifies bucket access without downloading objects.
func (f *ObjectStoreFetcher) TestConnection(ctx context.Context) (bool, string) {
	if err := f.connect(ctx); err != nil {
		return false, err.Error()
	}

	switch f.cfg.Provider {
	case "s3":
		_, err := f.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(f.cfg.Bucket)})
		if err != nil {
			return false, fmt.Sprintf("head bucket failed: %v", err)
		}
	case "gcs":
		_, err := f.gcsClient.Bucket(f.cfg.Bucket).Attrs(ctx)
		if err != nil {
			return false, fmt.Sprintf("bucket attrs failed: %v", err)
		}
	}
	return true, "ok"
}

// Fetch lists objects under Prefix, filters by LastModified when HoursAgo
// is set, skips directory-marker keys, and downloads each with gzip
// auto-decompression (spec §4.6).
func (f *ObjectStoreFetcher) Fetch(ctx context.Context) ([]FetchedFile, error) {
	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	var cutoff time.Time
	hasCutoff := f.cfg.HoursAgo > 0
	if hasCutoff {
		cutoff = time.Now().UTC().Add(-time.Duration(f.cfg.HoursAgo) * time.Hour)
	}

	switch f.cfg.Provider {
	case "s3":
		return f.fetchS3(ctx, hasCutoff, cutoff)
	case "gcs":
		return f.fetchGCS(ctx, hasCutoff, cutoff)
	default:
		return nil, fmt.Errorf("unknown object store provider %q", f.cfg.Provider)
	}
}

func (f *ObjectStoreFetcher) fetchS3(ctx context.Context, hasCutoff bool, cutoff time.Time) ([]FetchedFile, error) {
	var out []FetchedFile
	paginator := s3.NewListObjectsV2Paginator(f.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.cfg.Bucket),
		Prefix: aws.String(f.cfg.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			if hasCutoff && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				continue
			}

			resp, err := f.s3Client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(f.cfg.Bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return nil, fmt.Errorf("get object %s: %w", key, err)
			}
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read object %s: %w", key, err)
			}

			name, decompressed := maybeDecompress(keyBase(key), data)
			out = append(out, FetchedFile{Name: name, Data: decompressed, Size: int64(len(data))})
		}
	}

	return out, nil
}

func (f *ObjectStoreFetcher) fetchGCS(ctx context.Context, hasCutoff bool, cutoff time.Time) ([]FetchedFile, error) {
	var out []FetchedFile
	bucket := f.gcsClient.Bucket(f.cfg.Bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: f.cfg.Prefix})

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		if hasCutoff && attrs.Updated.Before(cutoff) {
			continue
		}

		r, err := bucket.Object(attrs.Name).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("open object %s: %w", attrs.Name, err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", attrs.Name, err)
		}

		name, decompressed := maybeDecompress(keyBase(attrs.Name), data)
		out = append(out, FetchedFile{Name: name, Data: decompressed, Size: int64(len(data))})
	}

	return out, nil
}

func keyBase(key string) string {
	if idx := strings.LastIndex(key, "/"); idx != -1 {
		return key[idx+1:]
	}
	return key
}

// Cleanup releases client handles.
func (f *ObjectStoreFetcher) Cleanup() error {
	if f.gcsClient != nil {
		err := f.gcsClient.Close()
		f.gcsClient = nil
		return err
	}
	return nil
}

var _ Fetcher = (*ObjectStoreFetcher)(nil)
