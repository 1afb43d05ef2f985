package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qadrim/vodsync/internal/config"
)

// OSSStore is the Alibaba OSS object store backend.
type OSSStore struct {
	bucket *oss.Bucket
}

// NewOSSStore creates an OSS-backed object store
func NewOSSStore(cfg *config.Config) (*OSSStore, error) {
	if cfg.OSSEndpoint == "" || cfg.OSSBucket == "" {
		return nil, fmt.Errorf("OSS endpoint and bucket are required")
	}
	if cfg.OSSAccessKeyID == "" || cfg.OSSAccessSecret == "" {
		return nil, fmt.Errorf("OSS credentials are required")
	}

	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKeyID, cfg.OSSAccessSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open OSS bucket %s: %w", cfg.OSSBucket, err)
	}

	return &OSSStore{bucket: bucket}, nil
}

// Exists reports whether the object is already stored.
// The OSS SDK carries no context; ctx is accepted for interface parity.
func (s *OSSStore) Exists(_ context.Context, key string) (bool, error) {
	exists, err := s.bucket.IsObjectExist(key)
	if err != nil {
		return false, fmt.Errorf("failed to check OSS object %s: %w", key, err)
	}
	return exists, nil
}

// PutBlob stores a byte payload under the given key
func (s *OSSStore) PutBlob(_ context.Context, key string, data []byte, contentType string) error {
	err := s.bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType))
	if err != nil {
		return fmt.Errorf("failed to put OSS object %s: %w", key, err)
	}
	return nil
}
