package port

import (
	"context"
	"io"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
)

// BlobStore holds artifact bytes. Keys are relative paths such as
// "audits/<job>/report.md".
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (location string, size int64, err error)
	// Delete removes the object. A missing object is not an error.
	Delete(ctx context.Context, location string) error
	// SignedURL returns a short-lived retrieval URL for the artifact.
	SignedURL(ctx context.Context, a *domain.Artifact, ttl time.Duration) (string, error)
}
