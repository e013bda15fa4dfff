// Package minio adapts a MinIO/S3 bucket to the ports.ObjectStore interface.
package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docforge/internal/ports"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
}

func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *Store) Provider() string { return "minio" }

func (s *Store) Put(ctx context.Context, in ports.PutObjectInput) (ports.ObjectInfo, error) {
	if in.Key == "" {
		return ports.ObjectInfo{}, fmt.Errorf("object key is required")
	}

	res, err := s.client.PutObject(ctx, s.bucket, in.Key, in.Reader, in.Size, minio.PutObjectOptions{
		ContentType:  in.ContentType,
		UserMetadata: in.Metadata,
	})
	if err != nil {
		return ports.ObjectInfo{}, fmt.Errorf("failed to upload object: %w", err)
	}

	return ports.ObjectInfo{Key: in.Key, Size: res.Size, ContentType: in.ContentType, Metadata: in.Metadata}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, ports.ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ports.ObjectInfo{}, mapErr(err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ports.ObjectInfo{}, mapErr(err)
	}

	return obj, infoFrom(key, st), nil
}

func (s *Store) Stat(ctx context.Context, key string) (ports.ObjectInfo, error) {
	st, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ports.ObjectInfo{}, mapErr(err)
	}
	return infoFrom(key, st), nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapErr(err)
	}
	return nil
}

// infoFrom normalizes user metadata keys to lowercase; minio canonicalizes
// them as HTTP header names on the way back.
func infoFrom(key string, st minio.ObjectInfo) ports.ObjectInfo {
	info := ports.ObjectInfo{
		Key:         key,
		Size:        st.Size,
		ContentType: st.ContentType,
	}
	if len(st.UserMetadata) > 0 {
		info.Metadata = make(map[string]string, len(st.UserMetadata))
		for k, v := range st.UserMetadata {
			info.Metadata[strings.ToLower(k)] = v
		}
	}
	return info
}

func mapErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return ports.ErrObjectNotFound
	}
	return err
}
