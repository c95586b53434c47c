package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"qubeless/internal/bootstrap/config"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

// MinioStorage implements ports.ObjectStorage on any S3-compatible
// object store (MinIO, AWS S3).
type MinioStorage struct {
	client *minio.Client
	bucket string
}

func NewMinioStorage(ctx context.Context, cfg config.StorageConfig) (*MinioStorage, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errs.Wrap(err, "create object storage client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errs.Wrapf(err, "check bucket %q", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errs.Wrapf(err, "create bucket %q", cfg.Bucket)
		}
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStorage) Bucket() string {
	return s.bucket
}

func (s *MinioStorage) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrapf(err, "get object %q", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errs.Wrapf(err, "read object %q", key)
	}
	return data, nil
}

func (s *MinioStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) (ports.ObjectRef, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return ports.ObjectRef{}, errs.Wrapf(err, "put object %q", key)
	}
	return ports.ObjectRef{Bucket: s.bucket, Key: key}, nil
}
