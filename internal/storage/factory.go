// factory.go maps backend names (local, s3, azure, gcs) to constructors and opens
// the logical buckets configured under storage.buckets.
package storage

import (
	"fmt"

	"github.com/grendelpress/manuscript-vault/internal/config"
)

// FactoryFunc opens bucket on a backend
type FactoryFunc func(cfg *config.Config, bucket string) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage opens bucket on the configured default backend
func NewStorage(cfg *config.Config, bucket string) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 'azure', 's3', or 'gcs')", cfg.Storage.DefaultBackend)
	}
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket name is required")
	}
	return factory(cfg, bucket)
}

// Buckets holds the vault's two logical buckets.
type Buckets struct {
	Masters Storage
	Covers  Storage
}

// OpenBuckets opens the masters and covers buckets on the default backend.
func OpenBuckets(cfg *config.Config) (*Buckets, error) {
	masters, err := NewStorage(cfg, cfg.Storage.Buckets.Masters)
	if err != nil {
		return nil, fmt.Errorf("failed to open masters bucket: %w", err)
	}
	covers, err := NewStorage(cfg, cfg.Storage.Buckets.Covers)
	if err != nil {
		return nil, fmt.Errorf("failed to open covers bucket: %w", err)
	}
	return &Buckets{Masters: masters, Covers: covers}, nil
}
