package storage

import (
	"context"
	"errors"
	"time"
)

// StorageClass is the tier an object is stored under. ClassReduced maps to
// the provider's infrequent-access tier and is applied to archive copies.
type StorageClass string

const (
	ClassStandard StorageClass = "STANDARD"
	ClassReduced  StorageClass = "STANDARD_IA"
)

// ObjectInfo represents metadata for a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	StorageClass StorageClass
}

// PutOptions carries optional attributes for a Put.
type PutOptions struct {
	ContentType  string
	StorageClass StorageClass
	Metadata     map[string]string
}

// CopyOptions carries optional attributes for a Copy. When Metadata is set
// it replaces the source object's metadata on the destination copy.
type CopyOptions struct {
	StorageClass StorageClass
	Metadata     map[string]string
}

// ObjectStore captures the operations the pipeline needs against one bucket.
// Copy targets a destination store so relocation and archival can cross
// buckets; implementations fall back to Get+Put when no server-side copy is
// available between the two stores.
type ObjectStore interface {
	// Name identifies the backing bucket, for logging and copy metadata.
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	Copy(ctx context.Context, srcKey string, dst ObjectStore, dstKey string, opts CopyOptions) error
	Delete(ctx context.Context, key string) error
	// List walks every object under prefix, across listing pages, invoking fn
	// once per object. Returning an error from fn stops the walk.
	List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error
}

// ErrObjectNotFound is returned by Get for keys that do not exist.
var ErrObjectNotFound = errors.New("object not found in storage")
