package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"fetchutils/pkg/fetcher"
	"fetchutils/pkg/reader"
)

type mockTask struct {
	stage       string
	lastPercent int
	lastMsg     string
}

func (m *mockTask) Log(msg string)                      {}
func (m *mockTask) SetStage(name string, target string) { m.stage = name }
func (m *mockTask) Progress(percent int, message string) {
	m.lastPercent = percent
	m.lastMsg = message
}
func (m *mockTask) Done() {}

func TestHTTPDownload(t *testing.T) {
	content := "some large content to test download"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(content))
	}))
	defer ts.Close()

	d := NewDefaultDownloader(nil, func(b *fetcher.HTTPBuilder) error {
		b.SetCustomHeader("User-Agent", "test-agent")
		return nil
	})
	r := reader.NewString()
	task := &mockTask{}

	f, err := d.Download(context.Background(), ts.URL, r, task)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if data, _ := r.Data(); data != content {
		t.Errorf("Content mismatch, got %q", data)
	}
	hf, ok := f.(*fetcher.HTTPFetcher)
	if !ok {
		t.Fatalf("expected a HTTP fetcher, got %T", f)
	}
	if code, _ := hf.ResponseCode(); code != http.StatusOK {
		t.Errorf("ResponseCode() = %d", code)
	}
	if task.stage != "Fetch" {
		t.Errorf("stage = %q", task.stage)
	}
	if !strings.Contains(task.lastMsg, "read") {
		t.Errorf("progress message = %q", task.lastMsg)
	}
}

func TestHTTPRedirect(t *testing.T) {
	content := "redirected content"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(content))
	}))
	defer ts.Close()

	rs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL, http.StatusMovedPermanently)
	}))
	defer rs.Close()

	d := NewDefaultDownloader(nil, nil)
	r := reader.NewString()

	if _, err := d.Download(context.Background(), rs.URL, r, &mockTask{}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if data, _ := r.Data(); data != content {
		t.Errorf("Content mismatch, got %q", data)
	}
}

func TestConfigureError(t *testing.T) {
	d := NewDefaultDownloader(nil, func(*fetcher.HTTPBuilder) error {
		return fmt.Errorf("bad option")
	})
	_, err := d.Download(context.Background(), "http://example.com/", reader.NewString(), &mockTask{})
	if err == nil || !strings.Contains(err.Error(), "bad option") {
		t.Errorf("Expected configure error, got: %v", err)
	}
}

func TestFileDownloadReportsPercent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	d := NewDefaultDownloader(nil, nil)
	r := reader.NewString()
	task := &mockTask{}

	f, err := d.Download(context.Background(), "file://"+path, r, task)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if _, ok := f.(*fetcher.FileFetcher); !ok {
		t.Errorf("expected a file fetcher, got %T", f)
	}
	if data, _ := r.Data(); data != "0123456789" {
		t.Errorf("Content mismatch, got %q", data)
	}
	if task.lastPercent != 100 {
		t.Errorf("Expected 100%% progress, got %d", task.lastPercent)
	}
}

func TestAssetDownload(t *testing.T) {
	env := &fetcher.Environment{
		Assets: fstest.MapFS{"greeting.txt": {Data: []byte("hello")}},
	}
	d := NewDefaultDownloader(env, nil)
	r := reader.NewString()

	if _, err := d.Download(context.Background(), "android.asset:///greeting.txt", r, &mockTask{}); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if data, _ := r.Data(); data != "hello" {
		t.Errorf("Content mismatch, got %q", data)
	}
}

func TestUnsupportedScheme(t *testing.T) {
	d := NewDefaultDownloader(nil, nil)
	_, err := d.Download(context.Background(), "ftp://example.com", reader.NewString(), &mockTask{})
	if err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Errorf("Expected unsupported scheme error, got: %v", err)
	}
}
