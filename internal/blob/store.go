// Package blob stores rendered invoice documents. Objects are write-once:
// putting a key that already exists fails with ErrExists.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/config"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrExists   = errors.New("blob already exists")
)

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is a write-once object sink with retrievable paths.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
}

// New builds the store selected by BLOB_BACKEND.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		return NewS3(ctx, S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, logger)
	case "local", "":
		return NewLocal(cfg.BlobLocalDir, logger)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
