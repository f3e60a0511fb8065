package storage

import (
	"context"
	"errors"
	"io"
)

// ErrStoreUnconfigured is returned by the noop store used when no bucket
// credentials are supplied.
var ErrStoreUnconfigured = errors.New("object store is not configured")

type PutResult struct {
	Key      string
	Location string
	ETag     string
}

// ObjectStore is where exported audit archives land. The only implementation
// talks to an S3-compatible bucket (Cloudflare R2).
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, reader io.Reader) (*PutResult, error)

	Delete(ctx context.Context, key string) error

	PublicURL(key string) string
}

type noopStore struct{}

// Unconfigured returns a store that rejects every operation. It lets the
// service run without bucket credentials while keeping the archive endpoint
// honest about why exports fail.
func Unconfigured() ObjectStore { return noopStore{} }

func (noopStore) Put(context.Context, string, string, io.Reader) (*PutResult, error) {
	return nil, ErrStoreUnconfigured
}

func (noopStore) Delete(context.Context, string) error { return ErrStoreUnconfigured }

func (noopStore) PublicURL(string) string { return "" }
