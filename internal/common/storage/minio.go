package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Bucket    string `yaml:"bucket"`
}

// MinIOStorage implements ObjectStorage using MinIO S3-compatible APIs.
type MinIOStorage struct {
	core *minio.Core
}

func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("minio accessKey is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio secretKey is required")
	}
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio core failed: %w", err)
	}
	return &MinIOStorage{core: core}, nil
}

func (s *MinIOStorage) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	obj, _, _, err := s.core.GetObject(ctx, bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object failed: %w", notFound(err))
	}
	return obj, nil
}

func (s *MinIOStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if reader == nil {
		return fmt.Errorf("reader is required")
	}
	if objectKey == "" {
		return fmt.Errorf("objectKey is required")
	}
	opts := minio.PutObjectOptions{}
	if contentType != "" {
		opts.ContentType = contentType
	}
	if _, err := s.core.PutObject(ctx, bucket, objectKey, reader, sizeBytes, "", "", opts); err != nil {
		return fmt.Errorf("minio put object failed: %w", err)
	}
	return nil
}

func (s *MinIOStorage) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	info, err := s.core.StatObject(ctx, bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return ObjectStat{}, fmt.Errorf("minio stat object failed: %w", notFound(err))
	}
	return ObjectStat{SizeBytes: info.Size, ETag: info.ETag, ContentType: info.ContentType}, nil
}

// EnsureBucket creates bucket when it does not exist yet.
func (s *MinIOStorage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.core.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("minio bucket exists failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.core.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio make bucket failed: %w", err)
	}
	return nil
}

func notFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.Join(ErrObjectNotFound, err)
	}
	return err
}
