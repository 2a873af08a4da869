// Package fs reads assets from a file system, e.g. a bundle embedded with go:embed.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"strings"

	"github.com/unkn0wn-root/texpool/source"
)

// ErrInvalidKey is returned for keys that do not name a file inside the root.
var ErrInvalidKey = errors.New("source/fs: invalid key")

type FS struct {
	fsys iofs.FS
}

var _ source.Source = (*FS)(nil)

func New(fsys iofs.FS) *FS { return &FS{fsys: fsys} }

// Dir serves assets from the directory tree rooted at root.
func Dir(root string) *FS { return New(os.DirFS(root)) }

func (s *FS) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := clean(key)
	if err != nil {
		return nil, err
	}
	b, err := iofs.ReadFile(s.fsys, name)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("source/fs: read %s: %w", name, err)
	}
	return b, nil
}

// clean maps a key to an io/fs path. Leading slashes are tolerated; anything that
// climbs out of the root is not.
func clean(key string) (string, error) {
	k := strings.TrimLeft(key, "/")
	if k == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(k, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes root", ErrInvalidKey, key)
		}
	}
	name := path.Clean(k)
	if !iofs.ValidPath(name) || name == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return name, nil
}
