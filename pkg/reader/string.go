// Package reader contains StreamReader implementations which turn a fetched
// byte stream into text, JSON, HTML, images, files or extracted archives.
package reader

import (
	"bufio"
	"errors"
	"io"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/html/charset"
)

// ErrParse is returned when the fetched text is missing or does not parse as
// the requested shape.
var ErrParse = errors.New("parse error")

const chunkSize = 1024

var bufferPool bytebufferpool.Pool

// String reads the whole stream into a string.
// Mutable
type String struct {
	contentType string
	data        string
	ok          bool
}

// NewString creates a String reader which expects UTF-8 input.
func NewString() *String {
	return &String{}
}

// NewStringCharset creates a String reader decoding the input according to
// contentType (for example "text/plain; charset=ISO-8859-1"). When the
// content type names no charset the encoding is sniffed from the content.
func NewStringCharset(contentType string) *String {
	return &String{contentType: contentType}
}

func (s *String) ReadStream(r io.Reader) error {
	if s.contentType != "" {
		cr, err := charset.NewReader(r, s.contentType)
		if err != nil {
			return err
		}
		r = cr
	}

	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	br := bufio.NewReaderSize(r, chunkSize)
	chunk := make([]byte, chunkSize)
	for {
		n, err := br.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	s.data = buf.String()
	s.ok = true
	return nil
}

// Data returns the text read, ok is false until a stream was read
// successfully.
func (s *String) Data() (string, bool) {
	return s.data, s.ok
}

func (s *String) String() string {
	return s.data
}
