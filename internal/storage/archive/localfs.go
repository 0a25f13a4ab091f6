// internal/storage/archive/localfs.go
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/newthinker/edgelab/internal/core"
)

// LocalFS implements Storage for local filesystem
type LocalFS struct {
	basePath string
}

// NewLocalFS creates a new LocalFS storage
func NewLocalFS(basePath string) (*LocalFS, error) {
	if basePath == "" {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("localfs base path is empty"))
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, storageErr("create", basePath, err)
	}
	return &LocalFS{basePath: basePath}, nil
}

// fullPath resolves p inside the base path and rejects ".." segments.
func (l *LocalFS) fullPath(p string) (string, error) {
	slash := filepath.ToSlash(p)
	for _, seg := range strings.Split(slash, "/") {
		if seg == ".." {
			return "", core.Errorf(core.ErrStorage, "path %q escapes the store", p)
		}
	}
	return filepath.Join(l.basePath, filepath.FromSlash(slash)), nil
}

func (l *LocalFS) Write(ctx context.Context, p string, data []byte) error {
	full, err := l.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return storageErr("mkdir", p, err)
	}
	// write then rename so readers never observe a partial object
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return storageErr("write", p, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return storageErr("write", p, err)
	}
	return nil
}

func (l *LocalFS) Read(ctx context.Context, p string) ([]byte, error) {
	full, err := l.fullPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, storageErr("read", p, err)
	}
	return data, nil
}

func (l *LocalFS) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath, err := l.fullPath(prefix)
	if err != nil {
		return nil, err
	}

	paths := []string{}
	err = filepath.WalkDir(searchPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, storageErr("list", prefix, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (l *LocalFS) Delete(ctx context.Context, p string) error {
	full, err := l.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("delete", p, err)
	}
	return nil
}

func (l *LocalFS) Exists(ctx context.Context, p string) (bool, error) {
	full, err := l.fullPath(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat", p, err)
	}
	return true, nil
}

func (l *LocalFS) String() string {
	return fmt.Sprintf("localfs:%s", l.basePath)
}
