package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
)

func TestSelect(t *testing.T) {
	env := &Environment{
		Assets: fstest.MapFS{"bucket/path": {Data: []byte("asset")}},
	}

	tests := []struct {
		uri  string
		want string // type of the selected fetcher, "" for nil
		loc  string
	}{
		{uri: "http://example.com/data", want: "http", loc: "http://example.com/data"},
		{uri: "https://example.com/data", want: "http", loc: "https://example.com/data"},
		{uri: "HTTPS://example.com/", want: "http", loc: "https://example.com/"},
		{uri: "android.asset://bucket/path", want: "asset", loc: "path"},
		{uri: "ANDROID.ASSET://host/dir/file.txt", want: "asset", loc: "dir/file.txt"},
		{uri: "file:///tmp/x", want: "file", loc: "/tmp/x"},
		{uri: "FILE:///tmp/y", want: "file", loc: "/tmp/y"},
		{uri: "android.asset://", want: ""},
		{uri: "file://", want: ""},
		{uri: "invalid://", want: ""},
		{uri: "ftp://example.com/file", want: ""},
		{uri: "mailto:x@y.com", want: ""},
		{uri: "relative/path", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			uri, err := url.Parse(tt.uri)
			if err != nil {
				t.Fatal(err)
			}

			f := Select(env, uri)
			switch v := f.(type) {
			case nil:
				if tt.want != "" {
					t.Errorf("got nil, want %s fetcher", tt.want)
				}
			case *HTTPFetcher:
				if tt.want != "http" || v.URL() != tt.loc {
					t.Errorf("got http fetcher for %q", v.URL())
				}
			case *AssetFetcher:
				if tt.want != "asset" || v.Path() != tt.loc {
					t.Errorf("got asset fetcher for %q", v.Path())
				}
			case *FileFetcher:
				if tt.want != "file" || v.File() != tt.loc {
					t.Errorf("got file fetcher for %q", v.File())
				}
			default:
				t.Errorf("unexpected fetcher %T", f)
			}
		})
	}
}

func TestSelectNil(t *testing.T) {
	if f := Select(&Environment{}, nil); f != nil {
		t.Errorf("Select(nil) = %T", f)
	}
	if f := SelectString(nil, ""); f != nil {
		t.Errorf("SelectString(\"\") = %T", f)
	}
	if f := SelectString(nil, "http://[::1"); f != nil {
		t.Errorf("unparsable uri gave %T", f)
	}
}

func TestSelectedFetchersUseEnvironment(t *testing.T) {
	var requested string
	env := &Environment{
		Assets: fstest.MapFS{"docs/readme.txt": {Data: []byte("bundled")}},
		Transport: stubTransport(func(req *http.Request) (*http.Response, error) {
			requested = req.URL.String()
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{},
				Body:       &trackingBody{Reader: strings.NewReader("remote")},
				Request:    req,
			}, nil
		}),
	}

	r := &bufferReader{}
	if err := SelectString(env, "android.asset://any/docs/readme.txt").Fetch(context.Background(), r); err != nil {
		t.Fatalf("asset Fetch failed: %v", err)
	}
	if string(r.data) != "bundled" {
		t.Errorf("asset content = %q", r.data)
	}

	if err := SelectString(env, "https://example.com/remote").Fetch(context.Background(), r); err != nil {
		t.Fatalf("http Fetch failed: %v", err)
	}
	if string(r.data) != "remote" || requested != "https://example.com/remote" {
		t.Errorf("http content = %q from %q", r.data, requested)
	}
}

func TestIsConnected(t *testing.T) {
	tests := []struct {
		name string
		c    Connectivity
		want bool
	}{
		{name: "none", c: nil, want: true},
		{name: "up", c: ConnectivityFunc(func() (bool, bool) { return true, true }), want: true},
		{name: "down", c: ConnectivityFunc(func() (bool, bool) { return false, true }), want: false},
		{name: "unknown", c: ConnectivityFunc(func() (bool, bool) { return false, false }), want: true},
	}
	for _, tt := range tests {
		if got := isConnected(tt.c); got != tt.want {
			t.Errorf("%s: isConnected() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
