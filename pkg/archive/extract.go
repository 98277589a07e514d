// Package archive unpacks tar, tar.gz, tar.zst and zip streams into a
// directory. The format is recognised from the leading bytes of the stream.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Format identifies an archive container.
type Format string

const (
	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
	FormatZip     Format = "zip"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicZip  = []byte("PK\x03\x04")
)

// ErrIllegalPath is returned for entries that would land outside the
// destination directory.
var ErrIllegalPath = errors.New("illegal file path in archive")

// Detect peeks at the start of r and reports the archive format. The returned
// reader replays the peeked bytes.
func Detect(r io.Reader) (Format, io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return "", br, fmt.Errorf("failed to read archive header: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGzip, br, nil
	case bytes.HasPrefix(head, magicZstd):
		return FormatTarZstd, br, nil
	case bytes.HasPrefix(head, magicZip):
		return FormatZip, br, nil
	default:
		return FormatTar, br, nil
	}
}

// ExtractStream unpacks the archive read from r into dest and returns the
// slash separated names of the extracted files.
func ExtractStream(r io.Reader, dest string) ([]string, error) {
	format, r, err := Detect(r)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatZip:
		return extractZipStream(r, dest)
	case FormatTarGzip:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		return extractTar(gzr, dest)
	case FormatTarZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		return extractTar(zr, dest)
	default:
		return extractTar(r, dest)
	}
}

// Extract unpacks the archive file at src into dest.
func Extract(src string, dest string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	return ExtractStream(f, dest)
}

// zip needs random access, so the stream is spooled to a temporary file.
func extractZipStream(r io.Reader, dest string) ([]string, error) {
	tmp, err := os.CreateTemp("", "fetchutils-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to spool zip archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("failed to spool zip archive: %w", err)
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	var names []string
	for _, f := range zr.File {
		err := extractEntry(f.Name, f.FileInfo(), dest, f.Open)
		if err != nil {
			return names, err
		}
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

func extractTar(r io.Reader, dest string) ([]string, error) {
	var names []string
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return names, fmt.Errorf("failed to read tar header: %w", err)
		}

		info := header.FileInfo()
		if !info.IsDir() && !info.Mode().IsRegular() {
			continue
		}
		err = extractEntry(header.Name, info, dest, func() (io.ReadCloser, error) {
			return io.NopCloser(tr), nil
		})
		if err != nil {
			return names, err
		}
		if !info.IsDir() {
			names = append(names, header.Name)
		}
	}
}

func extractEntry(name string, info os.FileInfo, dest string, open func() (io.ReadCloser, error)) error {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}

	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", target, err)
	}

	mode := info.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer f.Close()

	rc, err := open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return nil
}
