package media

import (
	"context"
	"fmt"
	"io"

	"github.com/streamhub/apiserver/config"
)

// Store defines the object operations the media layer needs from a
// storage backend. Uploaded avatars and cover images are addressed by
// key; URL turns a key into the public reference persisted on the user.
type Store interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
	Bucket() string
}

// NewStore constructs the backend named by config.
func NewStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinioStore(cfg.Minio)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
