package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

type fakeClient struct {
	exists     bool
	existsErr  error
	made       []string
	objects    map[string][]byte
	metadata   map[string]map[string]string
	putErr     error
	existCalls int
}

func (c *fakeClient) BucketExists(context.Context, string) (bool, error) {
	c.existCalls++
	return c.exists, c.existsErr
}

func (c *fakeClient) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	c.made = append(c.made, bucket)
	c.exists = true
	return nil
}

func (c *fakeClient) PutObject(_ context.Context, _, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if c.putErr != nil {
		return minio.UploadInfo{}, c.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	if c.objects == nil {
		c.objects = map[string][]byte{}
		c.metadata = map[string]map[string]string{}
	}
	c.objects[object] = data
	c.metadata[object] = opts.UserMetadata
	return minio.UploadInfo{Key: object, Size: size}, nil
}

func fixedStore(c *fakeClient, prefix string) *S3Store {
	s := newS3Store(c, "catalogs", prefix, defaultRegion)
	s.now = func() time.Time { return time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC) }
	return s
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2026/01/02/b-1.json", ObjectKey("", "b-1", at))
	assert.Equal(t, "snapshots/2026/01/02/b-1.json", ObjectKey("/snapshots/", "b-1", at))
}

func TestUpload_CreatesBucketOnceAndWritesDatedAndLatest(t *testing.T) {
	c := &fakeClient{}
	s := fixedStore(c, "snapshots")
	snapshot := []byte("[]\n")

	key, err := s.Upload(t.Context(), "b-1", snapshot)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/2026/05/04/b-1.json", key)
	assert.Equal(t, []string{"catalogs"}, c.made)
	assert.Equal(t, snapshot, c.objects[key])
	assert.Equal(t, snapshot, c.objects["snapshots/"+LatestObject])
	assert.Equal(t, "b-1", c.metadata[key]["build-id"])

	_, err = s.Upload(t.Context(), "b-2", []byte("[1]"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.existCalls)
	assert.Equal(t, []byte("[1]"), c.objects["snapshots/"+LatestObject])
}

func TestUpload_Errors(t *testing.T) {
	boom := errors.New("boom")

	s := fixedStore(&fakeClient{existsErr: boom}, "")
	_, err := s.Upload(t.Context(), "b-1", nil)
	require.ErrorIs(t, err, boom)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryArchive))

	s = fixedStore(&fakeClient{exists: true, putErr: boom}, "")
	_, err = s.Upload(t.Context(), "b-1", nil)
	require.ErrorIs(t, err, boom)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryArchive))

	_, err = s.Upload(t.Context(), " ", nil)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(Config{Bucket: "b"})
	require.Error(t, err)
	_, err = NewS3Store(Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	s, err := NewS3Store(Config{Endpoint: "localhost:9000", Bucket: "b", Prefix: "/x/"})
	require.NoError(t, err)
	assert.Equal(t, "x", s.prefix)
	assert.Equal(t, defaultRegion, s.region)
}
