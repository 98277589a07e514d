package reader

import (
	"fmt"
	"io"

	"fetchutils/pkg/archive"
	"fetchutils/pkg/fetcher"
)

// Archive unpacks the stream into a directory.
// Mutable
type Archive struct {
	dest    string
	entries []string
}

// NewArchive creates an Archive reader extracting into dest. An empty dest is
// rejected.
func NewArchive(dest string) (*Archive, error) {
	if dest == "" {
		return nil, fmt.Errorf("%w: destination must not be empty", fetcher.ErrInvalidArgument)
	}
	return &Archive{dest: dest}, nil
}

func (a *Archive) ReadStream(r io.Reader) error {
	entries, err := archive.ExtractStream(r, a.dest)
	a.entries = entries
	return err
}

// Dest returns the destination directory.
func (a *Archive) Dest() string {
	return a.dest
}

// Entries returns the files extracted by the last read, slash separated and
// relative to Dest.
func (a *Archive) Entries() []string {
	return a.entries
}
