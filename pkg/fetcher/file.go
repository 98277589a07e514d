package fetcher

import (
	"context"
	"fmt"
	"os"
)

// FileFetcher reads a file from the local filesystem.
// It holds no state after Fetch and may be executed any number of times.
// Immutable
type FileFetcher struct {
	path string
}

// NewFileFetcher creates a FileFetcher for path. An empty path is rejected.
func NewFileFetcher(path string) (*FileFetcher, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file path must not be empty", ErrInvalidArgument)
	}
	return &FileFetcher{path: path}, nil
}

// NewFileFetcherFromFile creates a FileFetcher for the file f refers to.
// Only the name of f is kept; every Fetch opens its own handle.
func NewFileFetcherFromFile(f *os.File) (*FileFetcher, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: file must not be nil", ErrInvalidArgument)
	}
	return NewFileFetcher(f.Name())
}

// File returns the path this fetcher reads from.
func (f *FileFetcher) File() string {
	return f.path
}

func (f *FileFetcher) Fetch(ctx context.Context, r StreamReader) error {
	in, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer closeQuietly(in, f.path)

	return r.ReadStream(in)
}
