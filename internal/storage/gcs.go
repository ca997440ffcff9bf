// Package storage provides access to the blob store holding user uploads. The
// GCS implementation is the production backend; the local implementation
// serves development and the one-shot CLI.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

// GCSStore reads objects from, and signs URLs for, a Google Cloud Storage
// bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCSStore for the given bucket. The bucket's location
// must match region, so a deployment pointed at the wrong bucket fails before
// serving any request. opts are passed through to the underlying GCS client,
// allowing credential injection.
func NewGCSStore(ctx context.Context, bucket, region string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}

	attrs, err := client.Bucket(bucket).Attrs(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: storage: failed to read attributes of bucket %q: %w", errdefs.ErrConfiguration, bucket, err)
	}
	if !strings.EqualFold(attrs.Location, region) {
		_ = client.Close()
		return nil, fmt.Errorf("%w: storage: bucket %q is in %s, not %s", errdefs.ErrConfiguration, bucket, attrs.Location, region)
	}

	return &GCSStore{client: client, bucket: bucket}, nil
}

// Fetch reads the whole object at key.
func (s *GCSStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: storage: %w: gs://%s/%s", errdefs.ErrFetch, ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("%w: storage: open failed for %q: %w", errdefs.ErrFetch, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: storage: read failed for %q: %w", errdefs.ErrFetch, key, err)
	}
	return data, nil
}

// SignURL returns a V4 signed URL for the requested object and method.
func (s *GCSStore) SignURL(_ context.Context, req *SignRequest) (*SignedURL, error) {
	expiresAt := time.Now().Add(req.TTL)
	signedURL, err := s.client.Bucket(s.bucket).SignedURL(req.ObjectName, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      req.Method,
		ContentType: req.ContentType,
		Headers:     signedHeaders(req),
		Expires:     expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to sign URL for %q: %w", req.ObjectName, err)
	}

	return &SignedURL{
		ObjectName: req.ObjectName,
		URL:        signedURL,
		ExpiresAt:  expiresAt,
	}, nil
}

// signedHeaders returns the extra headers a client must send with the signed
// request. GCS rejects uploads whose size falls outside the signed range.
func signedHeaders(req *SignRequest) []string {
	if req.MaxBytes <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("x-goog-content-length-range:0,%d", req.MaxBytes)}
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
