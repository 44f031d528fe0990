package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is wrapped by implementations when an object or its bucket is missing.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the object operations used for report archiving.
// It is small so MinIO can be swapped for any S3-compatible implementation.
type ObjectStorage interface {
	// PutObject uploads an object of known size.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// StatObject returns size and content type for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
