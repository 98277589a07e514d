package fetcher

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPBuilder collects the configuration of a HTTPFetcher.
// Mutable
type HTTPBuilder struct {
	url                string
	proxy              *url.URL
	allowHostRedirects bool
	followRedirects    bool
	requestMethod      string
	connectTimeout     time.Duration
	readTimeout        time.Duration
	modifiedSince      time.Time
	useCaches          bool
	customHeaders      map[string]string
	transport          http.RoundTripper
	connectivity       Connectivity
}

// NewHTTPBuilder returns a builder with the default configuration: GET,
// redirects followed (also across hosts), caches allowed, no timeouts.
func NewHTTPBuilder() *HTTPBuilder {
	return &HTTPBuilder{
		allowHostRedirects: true,
		followRedirects:    true,
		requestMethod:      http.MethodGet,
		useCaches:          true,
	}
}

// SetURL sets the URL to fetch. It is the only required value.
func (b *HTTPBuilder) SetURL(u string) *HTTPBuilder {
	b.url = u
	return b
}

// SetProxy routes the request through proxy. A nil proxy means default
// routing, which honours the usual proxy environment variables.
func (b *HTTPBuilder) SetProxy(proxy *url.URL) *HTTPBuilder {
	b.proxy = proxy
	return b
}

// SetAllowHostRedirects controls whether the response may come from another
// host than the requested one. When false, Fetch fails with ErrURLMismatch
// if a redirect led to a different host.
func (b *HTTPBuilder) SetAllowHostRedirects(allow bool) *HTTPBuilder {
	b.allowHostRedirects = allow
	return b
}

// SetFollowRedirects controls whether redirects are followed at all.
func (b *HTTPBuilder) SetFollowRedirects(follow bool) *HTTPBuilder {
	b.followRedirects = follow
	return b
}

func (b *HTTPBuilder) SetRequestMethod(method string) *HTTPBuilder {
	b.requestMethod = method
	return b
}

// SetConnectTimeout bounds dialing and the TLS handshake. Zero means no
// timeout.
func (b *HTTPBuilder) SetConnectTimeout(d time.Duration) *HTTPBuilder {
	b.connectTimeout = d
	return b
}

// SetReadTimeout bounds the wait for the response headers and for every read
// of the body. Zero means no timeout.
func (b *HTTPBuilder) SetReadTimeout(d time.Duration) *HTTPBuilder {
	b.readTimeout = d
	return b
}

// SetIfModifiedSince sends a conditional request. The zero time means unset.
func (b *HTTPBuilder) SetIfModifiedSince(t time.Time) *HTTPBuilder {
	b.modifiedSince = t
	return b
}

// SetUseCaches set to false asks every cache on the way to revalidate.
func (b *HTTPBuilder) SetUseCaches(use bool) *HTTPBuilder {
	b.useCaches = use
	return b
}

// SetCustomHeader adds a request header. Setting the same header twice keeps
// the last value.
func (b *HTTPBuilder) SetCustomHeader(name, value string) *HTTPBuilder {
	if b.customHeaders == nil {
		b.customHeaders = make(map[string]string)
	}
	b.customHeaders[name] = value
	return b
}

// SetTransport sets the round tripper requests go through. A *http.Transport
// is cloned and has the proxy and timeouts applied; any other round tripper
// is used as is.
func (b *HTTPBuilder) SetTransport(t http.RoundTripper) *HTTPBuilder {
	b.transport = t
	return b
}

// SetConnectivity sets the source of the network state checked before
// connecting. Without one the network is assumed to be up.
func (b *HTTPBuilder) SetConnectivity(c Connectivity) *HTTPBuilder {
	b.connectivity = c
	return b
}

// Build snapshots the builder into a HTTPFetcher. Later changes to the builder
// do not affect the returned fetcher.
func (b *HTTPBuilder) Build() (*HTTPFetcher, error) {
	if b.url == "" {
		return nil, fmt.Errorf("%w: the url must not be empty, has SetURL been called?", ErrInvalidArgument)
	}
	target, err := url.Parse(b.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	var proxy *url.URL
	if b.proxy != nil {
		p := *b.proxy
		proxy = &p
	}

	return &HTTPFetcher{
		target:             target,
		url:                b.url,
		proxy:              proxy,
		allowHostRedirects: b.allowHostRedirects,
		followRedirects:    b.followRedirects,
		requestMethod:      b.requestMethod,
		connectTimeout:     b.connectTimeout,
		readTimeout:        b.readTimeout,
		modifiedSince:      b.modifiedSince,
		useCaches:          b.useCaches,
		customHeaders:      maps.Clone(b.customHeaders),
		transport:          b.transport,
		connectivity:       b.connectivity,
	}, nil
}

type runState int

const (
	stateNotRun runState = iota
	stateRun
)

// HTTPFetcher fetches a URL over HTTP or HTTPS. An instance can be executed
// only once; the response metadata stays available afterwards.
type HTTPFetcher struct {
	target             *url.URL
	url                string
	proxy              *url.URL
	allowHostRedirects bool
	followRedirects    bool
	requestMethod      string
	connectTimeout     time.Duration
	readTimeout        time.Duration
	modifiedSince      time.Time
	useCaches          bool
	customHeaders      map[string]string
	transport          http.RoundTripper
	connectivity       Connectivity

	// runMu serializes Fetch; mu guards state and resp so the accessors stay
	// usable while a fetch is in progress.
	runMu sync.Mutex
	mu    sync.RWMutex
	state runState
	resp  *responseInfo
}

func (h *HTTPFetcher) URL() string { return h.url }

// Proxy returns a copy of the configured proxy, or nil.
func (h *HTTPFetcher) Proxy() *url.URL {
	if h.proxy == nil {
		return nil
	}
	p := *h.proxy
	return &p
}

func (h *HTTPFetcher) AllowHostRedirects() bool      { return h.allowHostRedirects }
func (h *HTTPFetcher) FollowRedirects() bool         { return h.followRedirects }
func (h *HTTPFetcher) RequestMethod() string         { return h.requestMethod }
func (h *HTTPFetcher) ConnectTimeout() time.Duration { return h.connectTimeout }
func (h *HTTPFetcher) ReadTimeout() time.Duration    { return h.readTimeout }
func (h *HTTPFetcher) IfModifiedSince() time.Time    { return h.modifiedSince }
func (h *HTTPFetcher) UseCaches() bool               { return h.useCaches }

// CustomHeaders returns a copy of the custom headers, or nil when none were
// set.
func (h *HTTPFetcher) CustomHeaders() map[string]string {
	return maps.Clone(h.customHeaders)
}

// CustomHeader returns the value set for name, or def when it was never set.
func (h *HTTPFetcher) CustomHeader(name, def string) string {
	if v, ok := h.customHeaders[name]; ok {
		return v
	}
	return def
}

func (h *HTTPFetcher) Fetch(ctx context.Context, r StreamReader) error {
	h.runMu.Lock()
	defer h.runMu.Unlock()

	h.mu.Lock()
	if h.state != stateNotRun {
		h.mu.Unlock()
		return fmt.Errorf("%w: this instance can only be used once, create a new one", ErrIllegalState)
	}
	h.state = stateRun
	h.mu.Unlock()

	if !isConnected(h.connectivity) {
		return ErrConnectivityUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := h.newRequest(ctx)
	if err != nil {
		return err
	}

	client := h.newClient()
	defer client.CloseIdleConnections()

	resp, err := client.Do(req)
	if err != nil {
		// Nothing came back from the server (DNS, refused, reset...).
		return err
	}
	defer closeQuietly(resp.Body, h.url)

	if resp.StatusCode >= http.StatusBadRequest {
		log.WithField("url", h.url).Debugf("reading error body of %s", resp.Status)
	}

	final := req.URL
	if resp.Request != nil {
		final = resp.Request.URL
	}
	if !h.allowHostRedirects && !strings.EqualFold(h.target.Hostname(), final.Hostname()) {
		return fmt.Errorf("%w: requested %s, response from %s", ErrURLMismatch,
			h.target.Hostname(), final.Hostname())
	}

	var body io.Reader = resp.Body
	if h.readTimeout > 0 {
		tr := newTimeoutReader(resp.Body, h.readTimeout, cancel)
		defer tr.stop()
		body = tr
	}

	if err := r.ReadStream(body); err != nil {
		return err
	}

	h.mu.Lock()
	h.resp = newResponseInfo(resp)
	h.mu.Unlock()
	return nil
}

func (h *HTTPFetcher) newRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, h.requestMethod, h.url, nil)
	if err != nil {
		return nil, err
	}

	if !h.modifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", h.modifiedSince.UTC().Format(http.TimeFormat))
	}
	if !h.useCaches {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	for name, value := range h.customHeaders {
		req.Header.Set(name, value)
	}
	return req, nil
}

func (h *HTTPFetcher) newClient() *http.Client {
	client := &http.Client{Transport: h.roundTripper()}
	if !h.followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func (h *HTTPFetcher) roundTripper() http.RoundTripper {
	base, ok := h.transport.(*http.Transport)
	if h.transport != nil && !ok {
		return h.transport
	}
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}

	t := base.Clone()
	if h.proxy != nil {
		t.Proxy = http.ProxyURL(h.proxy)
	} else {
		t.Proxy = http.ProxyFromEnvironment
	}
	if h.connectTimeout > 0 {
		dialer := &net.Dialer{Timeout: h.connectTimeout, KeepAlive: 30 * time.Second}
		t.DialContext = dialer.DialContext
		t.TLSHandshakeTimeout = h.connectTimeout
	}
	if h.readTimeout > 0 {
		t.ResponseHeaderTimeout = h.readTimeout
	}
	return t
}

// timeoutReader cancels the request when a single Read blocks longer than
// d. Time spent by the caller between reads is not counted.
type timeoutReader struct {
	r       io.Reader
	d       time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newTimeoutReader(r io.Reader, d time.Duration, cancel context.CancelFunc) *timeoutReader {
	tr := &timeoutReader{r: r, d: d}
	tr.timer = time.AfterFunc(d, func() {
		tr.expired.Store(true)
		cancel()
	})
	tr.timer.Stop()
	return tr
}

func (t *timeoutReader) Read(p []byte) (int, error) {
	if t.expired.Load() {
		return 0, t.err()
	}
	t.timer.Reset(t.d)
	n, err := t.r.Read(p)
	t.timer.Stop()
	if t.expired.Load() {
		return n, t.err()
	}
	return n, err
}

func (t *timeoutReader) err() error {
	return fmt.Errorf("read timeout after %s: %w", t.d, os.ErrDeadlineExceeded)
}

func (t *timeoutReader) stop() {
	t.timer.Stop()
}

// responseInfo is what remains of the response once the body is consumed.
// Immutable
type responseInfo struct {
	code          int
	contentLength int64
	header        http.Header
	keys          []string
}

func newResponseInfo(resp *http.Response) *responseInfo {
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &responseInfo{
		code:          resp.StatusCode,
		contentLength: resp.ContentLength,
		header:        resp.Header.Clone(),
		keys:          keys,
	}
}

// HasRun reports whether Fetch completed and the response can be inspected.
func (h *HTTPFetcher) HasRun() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.resp != nil
}

func (h *HTTPFetcher) response() (*responseInfo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.resp == nil {
		return nil, fmt.Errorf("%w: Fetch must complete before the response can be inspected", ErrIllegalState)
	}
	return h.resp, nil
}

func (h *HTTPFetcher) ResponseCode() (int, error) {
	resp, err := h.response()
	if err != nil {
		return 0, err
	}
	return resp.code, nil
}

// ContentLength returns the response length, -1 when unknown.
func (h *HTTPFetcher) ContentLength() (int64, error) {
	resp, err := h.response()
	if err != nil {
		return 0, err
	}
	return resp.contentLength, nil
}

func (h *HTTPFetcher) ContentType() (string, error) {
	return h.HeaderField("Content-Type")
}

func (h *HTTPFetcher) ContentEncoding() (string, error) {
	return h.HeaderField("Content-Encoding")
}

func (h *HTTPFetcher) Date() (time.Time, error) {
	return h.HeaderFieldDate("Date", time.Time{})
}

func (h *HTTPFetcher) Expiration() (time.Time, error) {
	return h.HeaderFieldDate("Expires", time.Time{})
}

func (h *HTTPFetcher) LastModified() (time.Time, error) {
	return h.HeaderFieldDate("Last-Modified", time.Time{})
}

// HeaderField returns the first value of the named header, "" when absent.
func (h *HTTPFetcher) HeaderField(name string) (string, error) {
	resp, err := h.response()
	if err != nil {
		return "", err
	}
	return resp.header.Get(name), nil
}

// HeaderFieldKey returns the i-th header name, in sorted canonical order.
// Out of range indexes yield "".
func (h *HTTPFetcher) HeaderFieldKey(i int) (string, error) {
	resp, err := h.response()
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(resp.keys) {
		return "", nil
	}
	return resp.keys[i], nil
}

// HeaderFieldAt returns the last value of the i-th header, see HeaderFieldKey.
func (h *HTTPFetcher) HeaderFieldAt(i int) (string, error) {
	resp, err := h.response()
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(resp.keys) {
		return "", nil
	}
	values := resp.header[resp.keys[i]]
	if len(values) == 0 {
		return "", nil
	}
	return values[len(values)-1], nil
}

// HeaderFieldDate parses the named header as a HTTP date, returning def
// when it is absent or malformed.
func (h *HTTPFetcher) HeaderFieldDate(name string, def time.Time) (time.Time, error) {
	v, err := h.HeaderField(name)
	if err != nil {
		return def, err
	}
	if v == "" {
		return def, nil
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return def, nil
	}
	return t, nil
}

// HeaderFieldInt parses the named header as an integer, returning def when
// it is absent or malformed.
func (h *HTTPFetcher) HeaderFieldInt(name string, def int) (int, error) {
	v, err := h.HeaderField(name)
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, nil
	}
	return n, nil
}

// HeaderFields returns a copy of all response headers.
func (h *HTTPFetcher) HeaderFields() (http.Header, error) {
	resp, err := h.response()
	if err != nil {
		return nil, err
	}
	return resp.header.Clone(), nil
}
