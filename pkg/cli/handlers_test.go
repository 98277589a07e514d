package cli

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"fetchutils/pkg/config"
	"fetchutils/pkg/display"
	"fetchutils/pkg/fetcher"
	"fetchutils/pkg/history"
)

type testCLI struct {
	engine  *Engine
	history *history.Store
	out     bytes.Buffer
	disp    bytes.Buffer
}

func newTestCLI(t *testing.T, cfg *config.Config, assets fs.FS) *testCLI {
	t.Helper()
	e, err := NewEngine(DefaultDSL)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.SetOutput(io.Discard)

	if cfg == nil {
		cfg = &config.Config{}
	}
	c := &testCLI{engine: e, history: history.Open(filepath.Join(t.TempDir(), "history.json"))}
	Register(e, &Managers{
		Disp:    display.NewWriterDisplay(&c.disp),
		SysCfg:  cfg,
		Env:     &fetcher.Environment{Assets: assets},
		History: c.history,
		Out:     &c.out,
	})
	return c
}

func (c *testCLI) run(args ...string) error {
	_, err := c.engine.Run(context.Background(), args)
	return err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTextCommandHTTP(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Write([]byte("hello over http"))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Checkout().SetHTTP(config.HTTPDefaults{Headers: map[string]string{"X-From-Config": "yes"}})

	c := newTestCLI(t, cfg, nil)
	if err := c.run("-H", "X-Token: abc", "text", srv.URL); err != nil {
		t.Fatalf("text failed: %v", err)
	}
	if got := c.out.String(); got != "hello over http" {
		t.Errorf("output = %q", got)
	}

	h := <-headers
	if got := h.Get("User-Agent"); got != config.UserAgent() {
		t.Errorf("User-Agent = %q, want %q", got, config.UserAgent())
	}
	if h.Get("X-Token") != "abc" || h.Get("X-From-Config") != "yes" {
		t.Errorf("headers = %v", h)
	}
}

func TestTextCommandLocal(t *testing.T) {
	path := writeFile(t, "latin1.txt", []byte("caf\xe9"))
	assets := fstest.MapFS{"hello.txt": {Data: []byte("hello asset")}}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"plain path", []string{"text", "--charset", "ISO-8859-1", path}, "café"},
		{"file uri", []string{"text", "-c", "ISO-8859-1", "file://" + filepath.ToSlash(path)}, "café"},
		{"asset", []string{"text", "android.asset:///hello.txt"}, "hello asset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCLI(t, nil, assets)
			if err := c.run(tt.args...); err != nil {
				t.Fatalf("text failed: %v", err)
			}
			if got := c.out.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJSONCommand(t *testing.T) {
	assets := fstest.MapFS{
		"sample.json": {Data: []byte(`{"items":[{"name":"a"},{"name":"b"}],"count":2}`)},
	}

	tests := []struct {
		query string
		want  string
	}{
		{".items[].name", "a\nb\n"},
		{".count", "2\n"},
		{".items[0]", "{\n  \"name\": \"a\"\n}\n"},
	}
	for _, tt := range tests {
		c := newTestCLI(t, nil, assets)
		if err := c.run("json", "android.asset:///sample.json", "-q", tt.query); err != nil {
			t.Fatalf("json %s failed: %v", tt.query, err)
		}
		if got := c.out.String(); got != tt.want {
			t.Errorf("json %s = %q, want %q", tt.query, got, tt.want)
		}
	}

	c := newTestCLI(t, nil, assets)
	if err := c.run("json", "android.asset:///sample.json", "-q", ".[[["); err == nil {
		t.Error("expected an error for an invalid query")
	}
}

func TestHTMLCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Hello</title></head><body><h1>One</h1><h1>Two</h1></body></html>`))
	}))
	defer srv.Close()

	c := newTestCLI(t, nil, nil)
	if err := c.run("html", srv.URL); err != nil {
		t.Fatalf("html failed: %v", err)
	}
	if got := c.out.String(); got != "Hello\n" {
		t.Errorf("title = %q", got)
	}

	c = newTestCLI(t, nil, nil)
	if err := c.run("html", srv.URL, "-s", "h1"); err != nil {
		t.Fatalf("html failed: %v", err)
	}
	if got := c.out.String(); got != "One\nTwo\n" {
		t.Errorf("h1 = %q", got)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestCLI(t, nil, nil)
	err := c.run("text", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected a 404 error, got %v", err)
	}
	if c.out.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", c.out.String())
	}
}

func TestImageCommand(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		img.Set(x, 1, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	assets := fstest.MapFS{
		"pixel.png": {Data: buf.Bytes()},
		"bad.png":   {Data: []byte("not an image")},
	}

	c := newTestCLI(t, nil, assets)
	if err := c.run("image", "android.asset:///pixel.png"); err != nil {
		t.Fatalf("image failed: %v", err)
	}
	out := c.disp.String()
	for _, want := range []string{"png", "4x3", "dhash:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	c = newTestCLI(t, nil, assets)
	if err := c.run("image", "android.asset:///bad.png"); err == nil {
		t.Error("expected an error for undecodable data")
	}
}

func TestHeadCommand(t *testing.T) {
	methods := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods <- r.Method
		w.Header().Set("X-Test", "present")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestCLI(t, nil, nil)
	if err := c.run("-X", "head", "head", srv.URL); err != nil {
		t.Fatalf("head failed: %v", err)
	}
	if m := <-methods; m != http.MethodHead {
		t.Errorf("method = %s, want HEAD", m)
	}
	out := c.disp.String()
	for _, want := range []string{"202 Accepted", "text/plain", "X-Test", "present"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	path := writeFile(t, "local.txt", []byte("x"))
	c = newTestCLI(t, nil, nil)
	if err := c.run("head", path); err == nil {
		t.Error("expected an error for a file uri")
	}
}

func TestSaveCommand(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "sub", "out.txt")

	c := newTestCLI(t, nil, nil)
	if err := c.run("save", srv.URL, dest); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.Contains(c.disp.String(), "Saved") {
		t.Errorf("display = %q", c.disp.String())
	}

	c = newTestCLI(t, nil, nil)
	if err := c.run("save", "--append", srv.URL, dest); err != nil {
		t.Fatalf("save --append failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "payloadpayload" {
		t.Errorf("content = %q, %v", got, err)
	}

	c = newTestCLI(t, nil, nil)
	if err := c.run("save", "--once", srv.URL, dest); err != nil {
		t.Fatalf("save --once failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("--once fetched an existing destination, hits = %d", hits.Load())
	}
	if !strings.Contains(c.disp.String(), "skipped") {
		t.Errorf("display = %q", c.disp.String())
	}
}

func TestSaveOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "once.txt")

	c := newTestCLI(t, nil, nil)
	if err := c.run("save", "--once", srv.URL, dest); err != nil {
		t.Fatalf("save --once failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "fresh" {
		t.Errorf("content = %q, %v", got, err)
	}

	failed := filepath.Join(dir, "failed.txt")
	c = newTestCLI(t, nil, nil)
	if err := c.run("save", "--once", srv.URL+"/missing", failed); err == nil {
		t.Error("expected an error for a 404")
	}
	if _, err := os.Stat(failed); !os.IsNotExist(err) {
		t.Errorf("failed destination should not exist: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("leftover files: %v", names)
	}

	c = newTestCLI(t, nil, nil)
	if err := c.run("save", "--once", "--append", srv.URL, dest); err == nil {
		t.Error("expected --once with --append to fail")
	}
}

func TestExtractCommand(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range map[string]string{"a.txt": "alpha", "dir/b.txt": "beta"} {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	archive := writeFile(t, "data.tar", buf.Bytes())
	dest := t.TempDir()

	c := newTestCLI(t, nil, nil)
	if err := c.run("extract", archive, dest); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "dir", "b.txt"))
	if err != nil || string(got) != "beta" {
		t.Errorf("dir/b.txt = %q, %v", got, err)
	}
	if !strings.Contains(c.disp.String(), "Extracted 2 files") {
		t.Errorf("display = %q", c.disp.String())
	}
}

func TestInvalidOptions(t *testing.T) {
	path := writeFile(t, "x.txt", []byte("x"))

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-H", "no colon", "text", path}, "invalid header"},
		{[]string{"-H", ": value", "text", path}, "invalid header"},
		{[]string{"--connect-timeout", "soon", "text", path}, "connect timeout"},
		{[]string{"--read-timeout", "later", "text", path}, "read timeout"},
		{[]string{"--since", "yesterday", "text", path}, "invalid date"},
		{[]string{"text", "ftp://example.com/x"}, "unsupported scheme"},
	}
	for _, tt := range tests {
		c := newTestCLI(t, nil, nil)
		err := c.run(tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("run(%v) error = %v, want %q", tt.args, err, tt.want)
		}
	}
}

func TestResolveURI(t *testing.T) {
	abs, err := filepath.Abs("some file.txt")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/x", "https://example.com/x"},
		{"android.asset:///a.txt", "android.asset:///a.txt"},
		{"some file.txt", "file://" + strings.ReplaceAll(filepath.ToSlash(abs), " ", "%20")},
	}
	for _, tt := range tests {
		if got := resolveURI(tt.in); got != tt.want {
			t.Errorf("resolveURI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	c := newTestCLI(t, nil, nil)
	if err := c.run("version"); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if got := c.out.String(); got != config.GetBuildInfo()+"\n" {
		t.Errorf("version = %q", got)
	}
}

func TestSaveUpdate(t *testing.T) {
	var full atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full.Add(1)
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Wed, 01 May 2024 12:00:00 GMT")
		w.Write([]byte("version one"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "data.txt")
	c := newTestCLI(t, nil, nil)

	if err := c.run("save", "-u", srv.URL, dest); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	e, ok, err := c.history.Get(dest)
	if err != nil || !ok {
		t.Fatalf("no history entry: ok=%v err=%v", ok, err)
	}
	if e.ETag != `"v1"` || e.URI != srv.URL || e.Size != int64(len("version one")) || e.LastModified.IsZero() {
		t.Errorf("unexpected entry %+v", e)
	}

	if err := c.run("save", "--update", srv.URL, dest); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if full.Load() != 1 {
		t.Errorf("server sent the body %d times", full.Load())
	}
	if !strings.Contains(c.disp.String(), "up to date") {
		t.Errorf("display = %q", c.disp.String())
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "version one" {
		t.Errorf("content = %q, %v", got, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	// the file is fetched again once it is gone
	if err := os.Remove(dest); err != nil {
		t.Fatal(err)
	}
	if err := c.run("save", "-u", srv.URL, dest); err != nil {
		t.Fatalf("third save failed: %v", err)
	}
	if full.Load() != 2 {
		t.Errorf("expected a full fetch for a missing file, got %d", full.Load())
	}

	if err := c.run("save", "-u", "--once", srv.URL, dest); err == nil {
		t.Error("expected --update with --once to fail")
	}
}

func TestHistoryCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	kept := filepath.Join(dir, "kept.txt")
	removed := filepath.Join(dir, "removed.txt")

	c := newTestCLI(t, nil, nil)
	if err := c.run("history"); err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(c.disp.String(), "No saved files") {
		t.Errorf("display = %q", c.disp.String())
	}

	for _, dest := range []string{kept, removed} {
		if err := c.run("save", srv.URL, dest); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	c.disp.Reset()
	if err := c.run("history"); err != nil {
		t.Fatalf("history failed: %v", err)
	}
	out := c.disp.String()
	for _, want := range []string{"FILE", kept, removed, srv.URL} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}

	if err := os.Remove(removed); err != nil {
		t.Fatal(err)
	}
	c.disp.Reset()
	if err := c.run("history", "--prune"); err != nil {
		t.Fatalf("history --prune failed: %v", err)
	}
	out = c.disp.String()
	if !strings.Contains(out, "Forgot 1 entries") || strings.Contains(out, removed) {
		t.Errorf("prune output:\n%s", out)
	}
}
