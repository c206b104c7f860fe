package archive

import (
	"context"
	"fmt"
)

// Backend names a storage backend.
type Backend string

const (
	BackendNone Backend = ""
	BackendFS   Backend = "fs"
	BackendS3   Backend = "s3"
	BackendGCS  Backend = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend  Backend
	Dir      string // fs
	Bucket   string // s3, gcs
	Region   string // s3
	Endpoint string // s3
	Prefix   string // s3, gcs
}

// Open returns the store for cfg.Backend, or (nil, nil) when archiving is off.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendFS:
		dir := cfg.Dir
		if dir == "" {
			dir = "data/reports"
		}
		fs, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendS3:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		s3, err := NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	case BackendGCS:
		return openGCS(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %q", cfg.Backend)
	}
}
