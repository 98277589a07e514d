// Package fetcher provides a uniform way of pulling a byte stream out of a source
// (HTTP server, local file, bundled asset, existing response body) and handing it
// to a StreamReader which turns the bytes into something useful.
package fetcher

import (
	"context"
	"errors"
	"io"
)

// StreamReader consumes a byte stream and materializes a value out of it.
type StreamReader interface {
	// ReadStream reads r to completion. It must not close r; closing is the
	// responsibility of the Fetcher that opened it.
	ReadStream(r io.Reader) error
}

// Fetcher opens a byte stream from one specific kind of origin.
type Fetcher interface {
	// Fetch opens the underlying stream, passes it to r and closes the stream
	// before returning, whatever the outcome. Errors returned by r are
	// returned unchanged.
	Fetch(ctx context.Context, r StreamReader) error
}

var (
	// ErrInvalidArgument is returned at construction time when a required
	// value (URL, path) is missing.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIllegalState is returned when a HTTPFetcher is executed twice or its
	// response is inspected before a completed execution.
	ErrIllegalState = errors.New("illegal state")
	// ErrConnectivityUnavailable is returned before dialing when the network
	// is known to be down.
	ErrConnectivityUnavailable = errors.New("connectivity unavailable")
	// ErrURLMismatch is returned when the response came from another host than
	// the one requested and cross-host redirects are not allowed. This usually
	// means a captive portal intercepted the request.
	ErrURLMismatch = errors.New("url mismatch")
)
