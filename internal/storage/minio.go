package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/andresuchdata/datapipe/pkg/logger"
)

// MinioConfig encapsulates the connection info for a MinIO / S3-compatible
// endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioStore implements ObjectStore for one bucket on a MinIO client.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioClient builds a shared client for the configured endpoint.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage client: %w", err)
	}

	return client, nil
}

// NewMinioStore binds a client to one bucket, creating the bucket if it does
// not exist yet.
func NewMinioStore(ctx context.Context, client *minio.Client, bucket, region string) (*MinioStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", bucket, err)
		}
		logger.Log.Info().Str("bucket", bucket).Msg("created bucket")
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Name() string {
	return s.bucket
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", s.bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		StorageClass: string(opts.StorageClass),
		UserMetadata: opts.Metadata,
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), putOpts); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Copy streams the source object into the destination store. A streamed copy
// is used even between two MinIO buckets because the S3 CopyObject call
// cannot set the destination storage class, which archive copies require.
func (s *MinioStore) Copy(ctx context.Context, srcKey string, dst ObjectStore, dstKey string, opts CopyOptions) error {
	if md, ok := dst.(*MinioStore); ok {
		obj, err := s.client.GetObject(ctx, s.bucket, srcKey, minio.GetObjectOptions{})
		if err != nil {
			return fmt.Errorf("failed to get %s/%s: %w", s.bucket, srcKey, err)
		}
		defer obj.Close()

		stat, err := obj.Stat()
		if err != nil {
			if minio.ToErrorResponse(err).Code == "NoSuchKey" {
				return ErrObjectNotFound
			}
			return fmt.Errorf("failed to stat %s/%s: %w", s.bucket, srcKey, err)
		}

		putOpts := minio.PutObjectOptions{
			ContentType:  stat.ContentType,
			StorageClass: string(opts.StorageClass),
			UserMetadata: opts.Metadata,
		}
		if _, err := md.client.PutObject(ctx, md.bucket, dstKey, obj, stat.Size, putOpts); err != nil {
			return fmt.Errorf("failed to copy %s/%s to %s/%s: %w", s.bucket, srcKey, md.bucket, dstKey, err)
		}
		return nil
	}

	data, err := s.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	return dst.Put(ctx, dstKey, data, PutOptions{
		StorageClass: opts.StorageClass,
		Metadata:     opts.Metadata,
	})
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *MinioStore) List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("failed to list %s/%s: %w", s.bucket, prefix, obj.Err)
		}
		info := ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			StorageClass: StorageClass(obj.StorageClass),
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

var _ ObjectStore = (*MinioStore)(nil)
