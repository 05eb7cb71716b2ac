package archive

import (
	"context"
	"fmt"

	"moltd/internal/config"
	"moltd/internal/daemon"
)

// NewArchiveFromConfig creates an Archive implementation based on the
// archive config type. Type "none" returns nil: the daemon skips archiving.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig, enc daemon.Encryptor) (daemon.Archive, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("dir required for filesystem archive")
		}
		return NewFilesystemArchive(cfg.Dir, enc)
	case "s3":
		return NewS3Archive(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, enc)
	case "memory":
		return NewMemoryArchive(enc), nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
