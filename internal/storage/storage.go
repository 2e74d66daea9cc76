// Package storage defines the Storage interface shared by every object store
// backend, and the two logical buckets the vault keeps files in: master
// manuscripts and cover images.
//
// New backends are added by implementing Storage and registering with the
// factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config, bucket string) (storage.Storage, error) {
//	        return NewMyBackend(cfg, bucket)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned by every backend when an object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Storage is one logical bucket on some backend. Keys are slash separated.
type Storage interface {
	// Upload stores an object and returns its size and SHA-256 checksum
	Upload(ctx context.Context, key string, reader io.Reader, size int64) (*UploadResult, error)

	// Download opens an object for reading; ErrNotFound when it is missing
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// GetURL returns a time limited URL for direct access to the object
	GetURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns object metadata without downloading the body
	GetMetadata(ctx context.Context, key string) (*FileMetadata, error)
}

// UploadResult contains information about an uploaded object
type UploadResult struct {
	Key      string
	Size     int64
	Checksum string
}

// FileMetadata contains metadata about a stored object
type FileMetadata struct {
	Key          string
	Size         int64
	Checksum     string
	LastModified time.Time
}

// ReadAll downloads key fully into memory.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}
