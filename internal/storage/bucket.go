// Package storage adapts the object storage bucket that holds article
// images.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket is the narrow surface the attachment lifecycle needs from object
// storage. Remove is best-effort for callers: they surface failures but
// never retry or abort on them.
type Bucket interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	PublicURL(path string) string
	// ObjectPath derives the storage path back from a public URL issued by
	// this bucket. Returns false for URLs that do not belong to it.
	ObjectPath(url string) (string, bool)
	Remove(ctx context.Context, paths ...string) error
}

type MinioBucket struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the URL base derived from the endpoint, for
	// deployments that front the bucket with a CDN or proxy.
	PublicURL string
}

func NewMinioBucket(ctx context.Context, cfg MinioConfig) (*MinioBucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	baseURL := strings.TrimRight(cfg.PublicURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + cfg.Endpoint
	}

	return &MinioBucket{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

func (b *MinioBucket) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (b *MinioBucket) PublicURL(path string) string {
	return b.baseURL + "/" + b.bucket + "/" + path
}

func (b *MinioBucket) ObjectPath(url string) (string, bool) {
	prefix := b.baseURL + "/" + b.bucket + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	path := strings.TrimPrefix(url, prefix)
	if path == "" {
		return "", false
	}
	return path, true
}

func (b *MinioBucket) Remove(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := b.client.RemoveObject(ctx, b.bucket, path, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}
