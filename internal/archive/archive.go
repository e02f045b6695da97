// Package archive uploads catalog snapshots to S3 compatible object storage
// after each successful save.
package archive

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

const (
	defaultRegion = "us-east-1"
	contentType   = "application/json"
	// LatestObject is overwritten on every upload.
	LatestObject = "latest.json"
)

// Config locates the bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Archiver stores catalog snapshots.
type Archiver interface {
	Upload(ctx context.Context, buildID string, snapshot []byte) (string, error)
}

// objectClient is the part of *minio.Client the store uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Store uploads snapshots with minio-go.
type S3Store struct {
	client objectClient
	bucket string
	prefix string
	region string
	now    func() time.Time

	initOnce sync.Once
	initErr  error
}

// NewS3Store builds a store for cfg. No request is made until the first
// upload.
func NewS3Store(cfg Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ferrors.ConfigError("archive endpoint is required").Build()
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ferrors.ConfigError("archive bucket is required").Build()
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, ferrors.ConfigError("invalid archive endpoint").
			WithCause(err).
			WithContext("endpoint", endpoint).
			Build()
	}
	return newS3Store(client, bucket, cfg.Prefix, region), nil
}

func newS3Store(client objectClient, bucket, prefix, region string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
		now:    time.Now,
	}
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Upload stores snapshot under a dated key for buildID and refreshes the
// latest object. It returns the dated key.
func (s *S3Store) Upload(ctx context.Context, buildID string, snapshot []byte) (string, error) {
	if strings.TrimSpace(buildID) == "" {
		return "", ferrors.ValidationError("build id is required").Build()
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", archiveError("failed to prepare archive bucket", s.bucket, "", err)
	}

	key := ObjectKey(s.prefix, buildID, s.now())
	for _, name := range []string{key, path.Join(s.prefix, LatestObject)} {
		_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(snapshot), int64(len(snapshot)),
			minio.PutObjectOptions{
				ContentType:  contentType,
				UserMetadata: map[string]string{"build-id": buildID},
			})
		if err != nil {
			return "", archiveError("failed to upload catalog snapshot", s.bucket, name, err)
		}
	}
	return key, nil
}

// ObjectKey returns the dated object name of a snapshot.
func ObjectKey(prefix, buildID string, at time.Time) string {
	at = at.UTC()
	return path.Join(strings.Trim(prefix, "/"), at.Format("2006/01/02"), buildID+".json")
}

func archiveError(msg, bucket, key string, err error) error {
	b := ferrors.ArchiveError(msg).
		WithCause(err).
		WithContext("bucket", bucket)
	if key != "" {
		b = b.WithContext("key", key)
	}
	if code := minio.ToErrorResponse(err).Code; code != "" {
		b = b.WithContext("code", code)
	}
	return b.Build()
}
