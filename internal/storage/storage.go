package storage

import (
	"context"
	"time"
)

// ObjectInfo describes a stored blob for listing operations.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// BlobStore stores opaque binary files addressable by key under a
// public-readable namespace. Implementations derive a durable public URL
// per key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	URL(key string) string
}
