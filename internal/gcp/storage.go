package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// BucketStore puts report files into a single GCS bucket.
type BucketStore struct {
	client *storage.Client
	bucket string
}

// NewBucketStore creates a store for bucket using an existing client.
func NewBucketStore(client *storage.Client, bucket string) (*BucketStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name must be provided to create a bucket store")
	}
	return &BucketStore{client: client, bucket: bucket}, nil
}

// Put writes data to key in one upload and returns the object's public URL.
func (s *BucketStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(writeCtx)
	w.ContentType = contentType
	// Send small files in a single request.
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		slog.Error("Failed to write GCS object.", "bucket", s.bucket, "object", key, "error", err)
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		slog.Error("Failed to finalize GCS object.", "bucket", s.bucket, "object", key, "error", err, "code", googleCode(err))
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return PublicURL(s.bucket, key), nil
}

// PublicURL returns the https URL a GCS object is served from.
func PublicURL(bucket, key string) string {
	u := url.URL{
		Scheme: "https",
		Host:   "storage.googleapis.com",
		Path:   "/" + bucket + "/" + strings.TrimPrefix(key, "/"),
	}
	return u.String()
}

// ReadObject downloads an object together with its attributes. Reports are
// capped at maxBytes; larger objects are rejected without reading them fully.
func ReadObject(ctx context.Context, client *storage.Client, bucket, object string, maxBytes int64) ([]byte, *storage.ObjectAttrs, error) {
	obj := client.Bucket(bucket).Object(object)
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil, models.NewError(models.ErrValidation,
			fmt.Sprintf("gs://%s/%s no longer exists", bucket, object), err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get attributes for gs://%s/%s: %w", bucket, object, err)
	}
	if maxBytes > 0 && attrs.Size > maxBytes {
		return nil, attrs, models.NewError(models.ErrValidation,
			fmt.Sprintf("file is %d bytes, larger than the %d byte limit", attrs.Size, maxBytes), nil)
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read GCS object gs://%s/%s: %w", bucket, object, err)
	}
	return data, attrs, nil
}

func googleCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
