package bucket

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pixmint/genapi/internal/storage"
)

// Storage is the bucket-style object store backend, backed by any
// S3-compatible endpoint (MinIO).
type Storage struct {
	client        *minio.Client
	defaultBucket string
	publicBaseURL string
	httpClient    *http.Client
}

// New connects to the object store and ensures the default bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool, publicBaseURL string) (*Storage, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("bucket: %w", storage.ErrNotConfigured)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("bucket: failed to create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("bucket: failed to check bucket %s: %w", bucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("bucket: failed to create bucket %s: %w", bucketName, err)
		}
	}

	return &Storage{
		client:        client,
		defaultBucket: bucketName,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *Storage) bucketOrDefault(bucket string) string {
	if bucket == "" {
		return s.defaultBucket
	}
	return bucket
}

// Upload stores data under bucket/path and returns the stored path and
// its public URL. With upsert disabled, an existing object at the same
// path is an error.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) (storage.UploadResult, error) {
	if bucket == storage.ExternalURLBucket {
		return storage.UploadResult{}, fmt.Errorf("bucket: cannot upload to %s", storage.ExternalURLBucket)
	}
	b := s.bucketOrDefault(bucket)

	if !upsert {
		if _, err := s.client.StatObject(ctx, b, path, minio.StatObjectOptions{}); err == nil {
			return storage.UploadResult{}, fmt.Errorf("bucket: object %s/%s already exists", b, path)
		}
	}

	_, err := s.client.PutObject(ctx, b, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("bucket: failed to upload %s/%s: %w", b, path, err)
	}

	return storage.UploadResult{
		Path:      path,
		PublicURL: fmt.Sprintf("%s/%s/%s", s.publicBaseURL, b, path),
	}, nil
}

// ResolveURL returns a presigned, time-limited access URL for the
// object, or the path verbatim for external-url entries.
func (s *Storage) ResolveURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	if bucket == storage.ExternalURLBucket {
		return path, nil
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucketOrDefault(bucket), path, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("bucket: failed to presign %s/%s: %w", bucket, path, err)
	}

	return u.String(), nil
}

// FetchBase64 reads the object and returns its content base64 encoded.
func (s *Storage) FetchBase64(ctx context.Context, bucket, path string) (string, error) {
	if bucket == storage.ExternalURLBucket {
		return storage.FetchURLBase64(ctx, s.httpClient, path)
	}

	obj, err := s.client.GetObject(ctx, s.bucketOrDefault(bucket), path, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("bucket: failed to get %s/%s: %w", bucket, path, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("bucket: failed to read %s/%s: %w", bucket, path, err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}
