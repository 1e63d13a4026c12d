package blob

import (
	"arboria/internal/config"
	"arboria/internal/infra/blob/fs"
	"arboria/internal/infra/blob/memory"
	"arboria/internal/infra/blob/s3"
	"context"
	"fmt"
	"net/http"
)

// Open builds the store selected by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PathStyle:       cfg.S3PathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at root (./data/blobs when empty).
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns a process-local store.
func NewMemory() Store {
	return memory.New()
}

// NewS3WithTransport returns an S3 store whose requests go through rt.
// Tests use it with an in-process fake endpoint.
func NewS3WithTransport(ctx context.Context, bucket string, rt http.RoundTripper) (Store, error) {
	return s3.New(ctx, s3.Config{
		Bucket:          bucket,
		Endpoint:        "https://s3.test.local",
		PathStyle:       true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "test-secret",
		HTTPClient:      &http.Client{Transport: rt},
	})
}

// NewMockS3 returns an S3 store backed by an in-process fake bucket.
func NewMockS3(ctx context.Context) (Store, error) {
	store, _, err := s3.NewMock(ctx)
	return store, err
}
