// internal/storage/archive/interface.go
package archive

import (
	"context"
	"fmt"

	"github.com/newthinker/edgelab/internal/core"
)

// Storage is a flat object store holding datasets and archived results.
// Paths are slash-separated and relative to the store root.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path. A missing object returns an
	// error matching core.ErrNoData.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Type string // "localfs" or "s3"
	Path string
	S3   S3Config
}

// New opens the configured backend.
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", cfg.Type))
	}
}

func notFound(path string) error {
	return core.Errorf(core.ErrNoData, "object %s not found", path)
}

func storageErr(op, path string, err error) error {
	return core.Errorf(core.ErrStorage, "%s %s: %w", op, path, err)
}
