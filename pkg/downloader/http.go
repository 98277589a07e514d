package downloader

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"fetchutils/pkg/display"
	"fetchutils/pkg/fetcher"

	"github.com/dustin/go-humanize"
)

// Configure adjusts a HTTP fetcher before it is built.
type Configure func(b *fetcher.HTTPBuilder) error

// Immutable
type httpHandler struct {
	env       *fetcher.Environment
	configure Configure
}

// NewHTTPHandler builds HTTP fetchers using the transport and connectivity
// of env, then applies configure.
func NewHTTPHandler(env *fetcher.Environment, configure Configure) SchemeHandler {
	if env == nil {
		env = &fetcher.Environment{}
	}
	return &httpHandler{env: env, configure: configure}
}

func (h *httpHandler) Schemes() []string {
	return []string{fetcher.SchemeHTTP, fetcher.SchemeHTTPS}
}

func (h *httpHandler) Fetcher(u *url.URL) (fetcher.Fetcher, error) {
	b := fetcher.NewHTTPBuilder().
		SetURL(u.String()).
		SetTransport(h.env.Transport).
		SetConnectivity(h.env.Connectivity)
	if h.configure != nil {
		if err := h.configure(b); err != nil {
			return nil, err
		}
	}
	f, err := b.Build()
	if err != nil {
		return nil, err
	}
	return f, nil
}

// progressReader passes the stream through to the wrapped reader while
// reporting the amount read.
// Immutable
type progressReader struct {
	next  fetcher.StreamReader
	task  display.Task
	total int64
}

func (p *progressReader) ReadStream(r io.Reader) error {
	pw := &progressWriter{
		task:  p.task,
		total: p.total,
		start: time.Now(),
	}
	return p.next.ReadStream(io.TeeReader(r, pw))
}

// Mutable
type progressWriter struct {
	task    display.Task
	total   int64
	written int64
	start   time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.written += int64(n)

	if pw.total > 0 {
		percent := int((float64(pw.written) / float64(pw.total)) * 100)
		elapsed := time.Since(pw.start).Seconds()
		speed := float64(pw.written)
		if elapsed > 0 {
			speed /= elapsed
		}
		msg := fmt.Sprintf("%s / %s (%s/s)",
			humanize.Bytes(uint64(pw.written)),
			humanize.Bytes(uint64(pw.total)),
			humanize.Bytes(uint64(speed)))
		pw.task.Progress(percent, msg)
	} else {
		pw.task.Progress(0, fmt.Sprintf("%s read", humanize.Bytes(uint64(pw.written))))
	}

	return n, nil
}
