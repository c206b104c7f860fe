//go:build gcp

package archive

import "context"

func openGCS(ctx context.Context, cfg Config) (Store, error) {
	gcs, err := NewGCSStore(ctx, GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	if err != nil {
		return nil, err
	}
	return gcs, nil
}
