// Package downloader resolves URIs to configured fetchers and runs them,
// reporting progress through the display package.
package downloader

import (
	"context"
	"net/url"

	"fetchutils/pkg/display"
	"fetchutils/pkg/fetcher"
)

// Downloader manages the retrieval of resources from various URIs.
type Downloader interface {
	// Download fetches the resource at uri into r and returns the fetcher
	// used, so the caller can inspect response metadata afterwards.
	// It uses the provided display Task to report progress and logs.
	Download(ctx context.Context, uri string, r fetcher.StreamReader, task display.Task) (fetcher.Fetcher, error)
}

// SchemeHandler builds fetchers for specific URI schemes (e.g. "http").
type SchemeHandler interface {
	// Fetcher returns a fetcher for u, whose scheme is one of Schemes.
	Fetcher(u *url.URL) (fetcher.Fetcher, error)
	// Schemes returns the list of URI schemes this handler can process.
	Schemes() []string
}
