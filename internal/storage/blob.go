// Package storage provides blob-based persistence with pluggable backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockflow/engine/internal/common"
)

// Common errors for blob storage operations.
var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrBlobExists   = errors.New("blob already exists")
)

// BlobAttrs carries optional object attributes applied on write. Backends
// that cannot persist attributes ignore them.
type BlobAttrs struct {
	ContentType  string
	CacheControl string
}

// JSONAttrs is the attribute set applied to every JSON artifact the engines
// write. Readers may serve a slightly stale object while the next refresh
// lands.
var JSONAttrs = &BlobAttrs{
	ContentType:  "application/json",
	CacheControl: "public, max-age=600, stale-while-revalidate=86400",
}

// TextAttrs is the attribute set for plain-text artifacts (AI-context files).
var TextAttrs = &BlobAttrs{
	ContentType:  "text/plain; charset=utf-8",
	CacheControl: "public, max-age=600, stale-while-revalidate=86400",
}

// BlobMetadata contains metadata about a stored blob.
type BlobMetadata struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// ListOptions configures blob listing behavior.
type ListOptions struct {
	Prefix  string // Only return keys with this prefix
	MaxKeys int    // Maximum number of keys to return (0 = no limit)
}

// ListResult contains the results of a list operation.
type ListResult struct {
	Blobs     []BlobMetadata `json:"blobs"`
	Truncated bool           `json:"truncated"` // True if more results available
}

// BlobStore defines a provider-agnostic interface for blob storage.
// FileBlobStore is the local implementation; a bucket-backed one plugs in
// through NewBlobStore.
type BlobStore interface {
	// Get retrieves a blob by key. Returns ErrBlobNotFound if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a blob, overwriting any existing object. attrs may be nil.
	Put(ctx context.Context, key string, data []byte, attrs *BlobAttrs) error

	// PutIfAbsent stores a blob only when the key does not exist yet.
	// Returns ErrBlobExists when another writer won the race.
	PutIfAbsent(ctx context.Context, key string, data []byte, attrs *BlobAttrs) error

	// Delete removes a blob. No error if not found.
	Delete(ctx context.Context, key string) error

	// Exists checks if a blob exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Metadata returns metadata for a blob. Returns ErrBlobNotFound if not found.
	Metadata(ctx context.Context, key string) (*BlobMetadata, error)

	// List returns blobs matching the given options.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Close releases any resources held by the store.
	Close() error
}

// NewBlobStore creates a blob store from configuration.
func NewBlobStore(logger *common.Logger, config *common.StorageConfig) (BlobStore, error) {
	switch config.Backend {
	case "", "local", "file":
		return NewFileBlobStore(logger, config.LocalRoot)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.Backend)
	}
}
