package storage

import (
	"context"
	"fmt"

	"github.com/andresuchdata/datapipe/internal/config"
)

// Stores bundles the three buckets the pipeline operates on.
type Stores struct {
	Raw       ObjectStore
	Processed ObjectStore
	Archive   ObjectStore
}

// NewStores builds the raw, processed and archive stores for the configured
// backend.
func NewStores(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	switch cfg.Backend {
	case "memory":
		return &Stores{
			Raw:       NewMemoryStore(cfg.RawBucket),
			Processed: NewMemoryStore(cfg.ProcessedBucket),
			Archive:   NewMemoryStore(cfg.ArchiveBucket),
		}, nil
	case "s3":
		client, err := NewMinioClient(MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}

		raw, err := NewMinioStore(ctx, client, cfg.RawBucket, cfg.Region)
		if err != nil {
			return nil, err
		}
		processed, err := NewMinioStore(ctx, client, cfg.ProcessedBucket, cfg.Region)
		if err != nil {
			return nil, err
		}
		archive, err := NewMinioStore(ctx, client, cfg.ArchiveBucket, cfg.Region)
		if err != nil {
			return nil, err
		}

		return &Stores{Raw: raw, Processed: processed, Archive: archive}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}
