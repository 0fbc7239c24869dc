package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig carries connection settings for the S3-compatible backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Minio is the minio-go implementation of ObjectStore.
type Minio struct {
	cfg    MinioConfig
	client *minio.Client
}

// NewMinio connects to the S3-compatible object storage backend.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	cfg.Endpoint = endpoint
	return &Minio{cfg: cfg, client: client}, nil
}

// EnsureBucket creates the bucket when missing.
func (m *Minio) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Upload stores the object under bucket/path.
func (m *Minio) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, path,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// PublicURL resolves the retrievable URL for an uploaded object.
func (m *Minio) PublicURL(bucket, path string) string {
	scheme := "http"
	if m.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.cfg.Endpoint, bucket, path)
}
