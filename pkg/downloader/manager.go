package downloader

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"fetchutils/pkg/display"
	"fetchutils/pkg/fetcher"
)

// Mutable
type manager struct {
	env      *fetcher.Environment
	handlers map[string]SchemeHandler
}

// NewDefaultDownloader returns a Downloader building HTTP fetchers with
// configure and every other supported scheme through fetcher.Select.
func NewDefaultDownloader(env *fetcher.Environment, configure Configure) Downloader {
	m := &manager{
		env:      env,
		handlers: make(map[string]SchemeHandler),
	}
	m.Register(NewHTTPHandler(env, configure))
	return m
}

func (m *manager) Register(h SchemeHandler) {
	for _, scheme := range h.Schemes() {
		m.handlers[scheme] = h
	}
}

func (m *manager) Download(ctx context.Context, uri string, r fetcher.StreamReader, task display.Task) (fetcher.Fetcher, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid uri: %w", err)
	}

	f, err := m.resolve(u)
	if err != nil {
		return nil, err
	}

	task.SetStage("Fetch", uri)
	pr := &progressReader{next: r, task: task, total: sizeOf(f)}
	return f, f.Fetch(ctx, pr)
}

func (m *manager) resolve(u *url.URL) (fetcher.Fetcher, error) {
	scheme := strings.ToLower(u.Scheme)
	if handler, ok := m.handlers[scheme]; ok {
		return handler.Fetcher(u)
	}

	f := fetcher.Select(m.env, u)
	if f == nil {
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}
	return f, nil
}

// sizeOf returns the size of the stream f will produce, 0 when unknown
// up front.
func sizeOf(f fetcher.Fetcher) int64 {
	ff, ok := f.(*fetcher.FileFetcher)
	if !ok {
		return 0
	}
	info, err := os.Stat(ff.File())
	if err != nil {
		return 0
	}
	return info.Size()
}
