package archive

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// objectStore is the part of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 archives into an S3-compatible bucket (MinIO, AWS).
type S3 struct {
	client objectStore
	bucket string
}

// NewS3 connects to the endpoint and creates the bucket when missing.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, eris.New("archive: s3 needs endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "archive: create minio client")
	}
	return newS3(ctx, client, cfg.Bucket, cfg.Region)
}

func newS3(ctx context.Context, client objectStore, bucket, region string) (*S3, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: check bucket %s", bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, eris.Wrapf(err, "archive: create bucket %s", bucket)
		}
		zap.L().Info("archive: created bucket", zap.String("bucket", bucket))
	}
	return &S3{client: client, bucket: bucket}, nil
}

// Put uploads body as one object.
func (s *S3) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	return eris.Wrapf(err, "archive: put s3://%s/%s", s.bucket, key)
}
