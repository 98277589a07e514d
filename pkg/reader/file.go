package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"fetchutils/pkg/cache"
	"fetchutils/pkg/fetcher"
)

// FileWriter copies the stream into a file, either replacing or appending to
// its content.
// Immutable
type FileWriter struct {
	path   string
	append bool
	lock   bool
}

// FileWriterOption tunes a FileWriter.
type FileWriterOption func(*FileWriter)

// WithLock holds cache.Lock on the destination for the duration of the copy
// so cooperating writers do not interleave. It needs a writable parent
// directory for the lock file.
func WithLock() FileWriterOption {
	return func(w *FileWriter) { w.lock = true }
}

// NewFileWriter creates a FileWriter for path. An empty path is rejected.
func NewFileWriter(path string, append bool, opts ...FileWriterOption) (*FileWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file path must not be empty", fetcher.ErrInvalidArgument)
	}
	w := &FileWriter{path: path, append: append}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewFileWriterFromFile creates a FileWriter for the file f refers to. Only
// its name is kept.
func NewFileWriterFromFile(f *os.File, append bool, opts ...FileWriterOption) (*FileWriter, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: file must not be nil", fetcher.ErrInvalidArgument)
	}
	return NewFileWriter(f.Name(), append, opts...)
}

// File returns the destination path.
func (w *FileWriter) File() string {
	return w.path
}

// Append reports whether the destination is appended to rather than replaced.
func (w *FileWriter) Append() bool {
	return w.append
}

// Locked reports whether the destination is locked while writing.
func (w *FileWriter) Locked() bool {
	return w.lock
}

func (w *FileWriter) ReadStream(r io.Reader) (err error) {
	if w.lock {
		unlock, lerr := cache.Lock(w.path)
		if lerr != nil {
			return lerr
		}
		defer unlock()
	}

	flag := os.O_WRONLY | os.O_CREATE
	if w.append {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}

	f, err := os.OpenFile(w.path, flag, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", w.path, cerr)
		}
	}()

	in := bufio.NewReaderSize(r, chunkSize)
	out := bufio.NewWriterSize(f, chunkSize)
	buf := make([]byte, chunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write %s: %w", w.path, err)
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("failed to write %s: %w", w.path, err)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
