// Package objectstorage wraps Google Cloud Storage for syncing run
// artifacts, task state, and rule-store config files, mirroring the
// source system's GCS helper but behind a narrow Store contract so the
// rest of the engine never imports the GCS SDK directly.
package objectstorage

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"dentslot/internal/platform/logger"
)

// Store is the narrow object-storage contract the rest of the engine
// depends on. A nil *GCSStore (or one constructed with an empty bucket)
// is treated as "not configured": callers should check Enabled() before
// using it, matching the source's is_gcs_enabled() gate
type Store interface {
	Enabled() bool
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// GCSStore implements Store against a single GCS bucket
type GCSStore struct {
	bucket string
	client *storage.Client
}

// New constructs a GCSStore. If bucket is empty the returned store is
// disabled and every operation is a no-op/error, matching the original's
// "GCS_BUCKET unset" contract
func New(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return &GCSStore{}, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstorage: new client: %w", err)
	}
	return &GCSStore{bucket: bucket, client: client}, nil
}

// Enabled reports whether a bucket was configured
func (s *GCSStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// Upload writes data to the given object key, overwriting any existing
// object
func (s *GCSStore) Upload(ctx context.Context, key string, data []byte) error {
	if !s.Enabled() {
		return fmt.Errorf("objectstorage: not configured")
	}
	log := logger.Named("objectstorage")

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("objectstorage: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("objectstorage: close %s: %w", key, err)
	}
	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("uploaded object")
	return nil
}

// Download reads the full contents of an object key
func (s *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("objectstorage: not configured")
	}
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstorage: open %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// List returns object names under the given prefix
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("objectstorage: not configured")
	}
	var names []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("objectstorage: list %s: %w", prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
