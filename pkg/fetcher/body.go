package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/valyala/fasthttp"
)

// BodyFetcher hands an already obtained response body to a StreamReader.
// Redirects, connectivity and status handling are left to whichever client
// produced the body. The body is closed by Fetch, so the fetcher is single use.
type BodyFetcher struct {
	body io.ReadCloser
}

// NewBodyFetcher wraps a response body.
func NewBodyFetcher(body io.ReadCloser) (*BodyFetcher, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: body must not be nil", ErrInvalidArgument)
	}
	return &BodyFetcher{body: body}, nil
}

// NewResponseFetcher wraps the body of a net/http response.
func NewResponseFetcher(resp *http.Response) (*BodyFetcher, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: response must not be nil", ErrInvalidArgument)
	}
	return NewBodyFetcher(resp.Body)
}

func (b *BodyFetcher) Fetch(ctx context.Context, r StreamReader) error {
	defer closeQuietly(b.body, "response body")
	return r.ReadStream(b.body)
}

// fasthttpBody exposes a fasthttp response as an io.ReadCloser. Streamed
// bodies are read as they arrive, otherwise the buffered body is used.
type fasthttpBody struct {
	resp *fasthttp.Response
	r    io.Reader
}

func (f *fasthttpBody) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *fasthttpBody) Close() error {
	return f.resp.CloseBodyStream()
}

// NewFastHTTPFetcher wraps the body of a fasthttp response. The response
// itself stays owned by the caller, who remains responsible for releasing it.
func NewFastHTTPFetcher(resp *fasthttp.Response) (*BodyFetcher, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: response must not be nil", ErrInvalidArgument)
	}

	var r io.Reader
	if stream := resp.BodyStream(); stream != nil {
		r = stream
	} else {
		r = bytes.NewReader(resp.Body())
	}
	return NewBodyFetcher(&fasthttpBody{resp: resp, r: r})
}
