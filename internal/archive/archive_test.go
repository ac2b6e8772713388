package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "aldi_sued/20250304T040607Z/sitemap.xml", Key("aldi_sued", at, "sitemap.xml"))
}

func TestDir_Put(t *testing.T) {
	root := filepath.Join(t.TempDir(), "raw")
	d, err := NewDir(root)
	require.NoError(t, err)

	require.NoError(t, d.Put(context.Background(), "lidl/run/overview.html", []byte("<html/>"), "text/html"))
	data, err := os.ReadFile(filepath.Join(root, "lidl", "run", "overview.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))
}

func TestDir_PutStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root)
	require.NoError(t, err)

	require.NoError(t, d.Put(context.Background(), "../../escape.txt", []byte("x"), ""))
	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err)

	assert.Error(t, d.Put(context.Background(), "/", []byte("x"), ""))
}

func TestOpen(t *testing.T) {
	a, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = Open(context.Background(), Config{Kind: "dir", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Dir{}, a)

	_, err = Open(context.Background(), Config{Kind: "dir"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Kind: "s3"})
	assert.ErrorContains(t, err, "endpoint and bucket")

	_, err = Open(context.Background(), Config{Kind: "ftp"})
	assert.ErrorContains(t, err, "unknown kind")
}

type fakeObjects struct {
	exists  bool
	made    string
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func (f *fakeObjects) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = bucket
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, _, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[key] = data
	f.types[key] = opts.ContentType
	return minio.UploadInfo{Key: key, Size: size}, nil
}

func TestS3_CreatesBucketAndPuts(t *testing.T) {
	fake := &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
	s, err := newS3(context.Background(), fake, "storemap-raw", "eu-central-1")
	require.NoError(t, err)
	assert.Equal(t, "storemap-raw", fake.made)

	require.NoError(t, s.Put(context.Background(), "aldi_nord/x/dump.json", []byte(`{}`), "application/json"))
	assert.Equal(t, []byte(`{}`), fake.objects["aldi_nord/x/dump.json"])
	assert.Equal(t, "application/json", fake.types["aldi_nord/x/dump.json"])
}

func TestS3_PutError(t *testing.T) {
	fake := &fakeObjects{exists: true, putErr: errors.New("denied")}
	s, err := newS3(context.Background(), fake, "b", "")
	require.NoError(t, err)
	assert.Empty(t, fake.made)

	err = s.Put(context.Background(), "k", []byte("x"), "")
	assert.ErrorContains(t, err, "s3://b/k")
}
