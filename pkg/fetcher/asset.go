package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// AssetFetcher reads a file bundled with the application. Bundled files are
// exposed as an fs.FS (usually an embed.FS, possibly layered over a data
// directory) and addressed by a path relative to its root.
// Immutable
type AssetFetcher struct {
	assets fs.FS
	path   string
}

// NewAssetFetcher creates an AssetFetcher for path inside assets. The asset is
// not looked up until Fetch is called.
func NewAssetFetcher(assets fs.FS, path string) (*AssetFetcher, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: asset path must not be empty", ErrInvalidArgument)
	}
	return &AssetFetcher{assets: assets, path: path}, nil
}

// Path returns the asset path as given at construction.
func (a *AssetFetcher) Path() string {
	return a.path
}

func (a *AssetFetcher) Fetch(ctx context.Context, r StreamReader) error {
	if a.assets == nil {
		return fmt.Errorf("failed to open asset %s: %w", a.path, fs.ErrNotExist)
	}

	// fs.FS paths are unrooted
	name := strings.TrimPrefix(a.path, "/")
	in, err := a.assets.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open asset: %w", err)
	}
	defer closeQuietly(in, a.path)

	return r.ReadStream(in)
}

// layeredFS resolves names against each layer in turn.
type layeredFS []fs.FS

// Layered returns an fs.FS serving every name from the first layer that has
// it. Nil layers are skipped. It lets files in a data directory override the
// assets bundled with the binary.
func Layered(layers ...fs.FS) fs.FS {
	var l layeredFS
	for _, layer := range layers {
		if layer != nil {
			l = append(l, layer)
		}
	}
	return l
}

func (l layeredFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	for _, layer := range l {
		f, err := layer.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
