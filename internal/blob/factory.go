package blob

import (
	"context"
	"errors"
	"fmt"

	"alienrisk/internal/config"
	"alienrisk/internal/infra/blob/fs"
	"alienrisk/internal/infra/blob/memory"
	"alienrisk/internal/infra/blob/s3"
)

// ErrDisabled is returned by Open when no blob driver is configured.
var ErrDisabled = errors.New("blob storage is not configured")

// Open selects a Store from cfg.Driver: fs, s3 or memory.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Driver) {
	case "":
		return nil, ErrDisabled
	case DriverFilesystem:
		st, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverS3:
		st, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
