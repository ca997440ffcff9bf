package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped into fetch errors when the requested object does not
// exist in the backing store.
var ErrNotFound = errors.New("object not found")

// ErrSigningUnsupported is returned by backends that cannot issue signed URLs.
var ErrSigningUnsupported = errors.New("signed URLs are not supported by this backend")

// Fetcher retrieves whole objects from a blob store.
type Fetcher interface {
	// Fetch drains the object stored under key into a single buffer. A
	// partially read object is never returned.
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Signer issues time-limited URLs that let clients read or write an object
// directly against the blob store.
type Signer interface {
	SignURL(ctx context.Context, req *SignRequest) (*SignedURL, error)
}

type SignRequest struct {
	// ObjectName is the object path within the configured bucket.
	ObjectName string

	// Method is the HTTP method the URL is valid for, e.g. "PUT".
	Method string

	// ContentType restricts uploads to the given MIME type. Empty means
	// unrestricted.
	ContentType string

	// TTL is how long the URL stays valid.
	TTL time.Duration

	// MaxBytes caps the size of an upload made with the URL. Zero means
	// uncapped.
	MaxBytes int64
}

// SignedURL is the outcome of a successful signing request.
type SignedURL struct {
	// ObjectName is the object path within the configured bucket.
	ObjectName string

	// URL provides time-limited access to the object.
	URL string

	// ExpiresAt is when the URL becomes invalid.
	ExpiresAt time.Time
}
