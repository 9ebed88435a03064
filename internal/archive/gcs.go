package archive

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSStore keeps artifacts as objects in a Google Cloud Storage bucket,
// satisfying the same cache contract as the filesystem store.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS client using Application Default Credentials
// and fails fast if the bucket is not reachable.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bucket %s attrs: %w", bucket, err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Exists reports whether an object is present at path.
func (s *GCSStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(path).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("object %s attrs: %w", path, err)
}

// Write uploads the artifact in one object write; the object only becomes
// visible once the writer is closed.
func (s *GCSStore) Write(ctx context.Context, path string, data []byte) error {
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	wc.ContentType = "application/pdf"
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write object %s: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", path, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
