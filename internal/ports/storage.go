package ports

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by every ObjectStore implementation when the
// requested key does not exist. Callers rely on errors.Is against it.
var ErrObjectNotFound = errors.New("object not found")

// IsNotFound reports whether err means the object key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

type PutObjectInput struct {
	Key         string
	ContentType string
	Reader      io.Reader
	Size        int64
	// Metadata is stored alongside the object and returned by Stat/Get.
	// The result cache keeps its cached-at timestamp here.
	Metadata map[string]string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectStore abstracts durable object storage (minio/s3, localfs, gdrive).
type ObjectStore interface {
	Provider() string

	Put(ctx context.Context, in PutObjectInput) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat returns object metadata without fetching the body.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Copy performs a server-side copy from srcKey to dstKey.
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
}
