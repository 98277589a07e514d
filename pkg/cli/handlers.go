package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fetchutils/pkg/cache"
	"fetchutils/pkg/config"
	"fetchutils/pkg/display"
	"fetchutils/pkg/downloader"
	"fetchutils/pkg/fetcher"
	"fetchutils/pkg/history"
	"fetchutils/pkg/loader"
	"fetchutils/pkg/reader"

	"github.com/dustin/go-humanize"
)

type handlers struct {
	mgr *Managers
}

// Register binds the commands of DefaultDSL to their handlers.
func Register(e *Engine, mgr *Managers) {
	h := &handlers{mgr: mgr}
	e.Register("text", HandlerFunc(h.text))
	e.Register("json", HandlerFunc(h.json))
	e.Register("html", HandlerFunc(h.html))
	e.Register("image", HandlerFunc(h.image))
	e.Register("head", HandlerFunc(h.head))
	e.Register("save", HandlerFunc(h.save))
	e.Register("extract", HandlerFunc(h.extract))
	e.Register("history", HandlerFunc(h.showHistory))
	e.Register("version", HandlerFunc(h.version))
}

func success() (*ExecutionResult, error) {
	return &ExecutionResult{ExitCode: 0}, nil
}

// httpOptions combines the configured HTTP defaults with the global flags of
// inv. Flag values are validated here, before anything is fetched.
func (h *handlers) httpOptions(inv *Invocation, extra []func(b *fetcher.HTTPBuilder)) (downloader.Configure, error) {
	defaults := h.mgr.SysCfg.GetHTTP()
	if defaults.UserAgent == "" {
		defaults.UserAgent = config.UserAgent()
	}

	var opts []func(b *fetcher.HTTPBuilder)
	if m := inv.String("method"); m != "" {
		method := strings.ToUpper(m)
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetRequestMethod(method) })
	}
	for _, hdr := range inv.List("header") {
		name, value, ok := strings.Cut(hdr, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", hdr)
		}
		value = strings.TrimSpace(value)
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetCustomHeader(name, value) })
	}
	if p := inv.String("proxy"); p != "" {
		proxy, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", p, err)
		}
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetProxy(proxy) })
	}
	if s := inv.String("connect-timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid connect timeout: %w", err)
		}
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetConnectTimeout(d) })
	}
	if s := inv.String("read-timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid read timeout: %w", err)
		}
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetReadTimeout(d) })
	}
	if inv.Bool("no-follow") {
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetFollowRedirects(false) })
	}
	if inv.Bool("strict-host") {
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetAllowHostRedirects(false) })
	}
	if inv.Bool("no-cache") {
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetUseCaches(false) })
	}
	if s := inv.String("since"); s != "" {
		t, err := http.ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", s, err)
		}
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetIfModifiedSince(t) })
	}
	opts = append(opts, extra...)

	return func(b *fetcher.HTTPBuilder) error {
		if err := defaults.Apply(b); err != nil {
			return err
		}
		for _, opt := range opts {
			opt(b)
		}
		return nil
	}, nil
}

// resolveURI turns a plain path into a file URI.
func resolveURI(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return raw
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return raw
	}
	return (&url.URL{Scheme: fetcher.SchemeFile, Path: filepath.ToSlash(abs)}).String()
}

// fetch runs uri through r and returns the fetcher used. extra is applied to
// HTTP fetchers after the flags. HTTP error statuses are not treated as
// failures here, see checkStatus.
func (h *handlers) fetch(ctx context.Context, inv *Invocation, uri string, r fetcher.StreamReader, extra ...func(b *fetcher.HTTPBuilder)) (fetcher.Fetcher, error) {
	configure, err := h.httpOptions(inv, extra)
	if err != nil {
		return nil, err
	}

	task := h.mgr.Disp.StartTask(inv.Command.Name)
	defer task.Done()

	res := loader.Run(ctx, func(ctx context.Context) (fetcher.Fetcher, error) {
		return downloader.NewDefaultDownloader(h.mgr.Env, configure).Download(ctx, resolveURI(uri), r, task)
	})
	return res.Get()
}

// fetchOK is fetch failing on HTTP error statuses as well.
func (h *handlers) fetchOK(ctx context.Context, inv *Invocation, uri string, r fetcher.StreamReader) error {
	f, err := h.fetch(ctx, inv, uri, r)
	if err != nil {
		return err
	}
	return checkStatus(f)
}

func checkStatus(f fetcher.Fetcher) error {
	hf, ok := f.(*fetcher.HTTPFetcher)
	if !ok {
		return nil
	}
	code, err := hf.ResponseCode()
	if err != nil {
		return err
	}
	if code >= http.StatusBadRequest {
		return fmt.Errorf("%s: %d %s", hf.URL(), code, http.StatusText(code))
	}
	return nil
}

func (h *handlers) text(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	contentType := "text/plain"
	if c := inv.String("charset"); c != "" {
		contentType += "; charset=" + c
	}
	r := reader.NewStringCharset(contentType)
	if err := h.fetchOK(ctx, inv, inv.Args["uri"], r); err != nil {
		return nil, err
	}
	fmt.Fprint(h.mgr.Out, r.String())
	return success()
}

func (h *handlers) json(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	query := inv.String("query")
	if query == "" {
		query = "."
	}

	r := reader.NewJSON()
	if err := h.fetchOK(ctx, inv, inv.Args["uri"], r); err != nil {
		return nil, err
	}
	values, err := r.Query(query)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if s, ok := v.(string); ok {
			fmt.Fprintln(h.mgr.Out, s)
			continue
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(h.mgr.Out, string(data))
	}
	return success()
}

func (h *handlers) html(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	selector := inv.String("select")
	if selector == "" {
		selector = "title"
	}

	r := reader.NewHTMLCharset("text/html")
	if err := h.fetchOK(ctx, inv, inv.Args["uri"], r); err != nil {
		return nil, err
	}
	texts, err := r.SelectText(selector)
	if err != nil {
		return nil, err
	}
	for _, t := range texts {
		fmt.Fprintln(h.mgr.Out, t)
	}
	return success()
}

func (h *handlers) image(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	uri := inv.Args["uri"]
	r := reader.NewBitmap()
	if err := h.fetchOK(ctx, inv, uri, r); err != nil {
		return nil, err
	}
	img := r.Bitmap()
	if img == nil {
		return nil, fmt.Errorf("%s: not a decodable image", uri)
	}
	hash, err := r.Hash()
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	h.mgr.Disp.RenderOutput(&display.Output{
		KV: []display.KV{
			{Key: "Format", Value: r.Format()},
			{Key: "Size", Value: fmt.Sprintf("%dx%d", b.Dx(), b.Dy())},
			{Key: "Hash", Value: fmt.Sprintf("dhash:%016x", hash.GetHash())},
		},
	})
	return success()
}

type discard struct{}

func (discard) ReadStream(r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func (h *handlers) head(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	uri := inv.Args["uri"]
	f, err := h.fetch(ctx, inv, uri, discard{})
	if err != nil {
		return nil, err
	}
	hf, ok := f.(*fetcher.HTTPFetcher)
	if !ok {
		return nil, fmt.Errorf("%s: head needs an http(s) uri", uri)
	}

	code, err := hf.ResponseCode()
	if err != nil {
		return nil, err
	}
	contentType, _ := hf.ContentType()
	length := "unknown"
	if n, _ := hf.ContentLength(); n >= 0 {
		length = humanize.Bytes(uint64(n))
	}
	out := &display.Output{
		KV: []display.KV{
			{Key: "Status", Value: fmt.Sprintf("%d %s", code, http.StatusText(code))},
			{Key: "Content-Type", Value: contentType},
			{Key: "Length", Value: length},
		},
		Table: &display.Table{Header: []string{"HEADER", "VALUE"}},
	}
	if lm, _ := hf.LastModified(); !lm.IsZero() {
		out.KV = append(out.KV, display.KV{Key: "Last-Modified", Value: humanize.Time(lm)})
	}
	for i := 0; ; i++ {
		key, _ := hf.HeaderFieldKey(i)
		if key == "" {
			break
		}
		value, _ := hf.HeaderFieldAt(i)
		out.Table.Rows = append(out.Table.Rows, []string{key, value})
	}
	h.mgr.Disp.RenderOutput(out)
	return success()
}

func (h *handlers) save(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	uri, dest := resolveURI(inv.Args["uri"]), inv.Args["path"]
	appendMode, once, update := inv.Bool("append"), inv.Bool("once"), inv.Bool("update")
	if appendMode && (once || update) {
		return nil, errors.New("--append cannot be combined with --once or --update")
	}
	if once && update {
		return nil, errors.New("--once and --update cannot be combined")
	}

	switch {
	case once:
		saved := false
		err := cache.Ensure(dest, func() error {
			var err error
			saved, err = h.download(ctx, inv, uri, dest)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !saved {
			h.mgr.Disp.Print(fmt.Sprintf("%s exists, skipped\n", dest))
			return success()
		}
	case update:
		conditions, err := h.conditions(uri, dest)
		if err != nil {
			return nil, err
		}
		saved, err := h.download(ctx, inv, uri, dest, conditions...)
		if err != nil {
			return nil, err
		}
		if !saved {
			h.mgr.Disp.Print(fmt.Sprintf("%s is up to date\n", dest))
			return success()
		}
	default:
		w, err := reader.NewFileWriter(dest, appendMode, reader.WithLock())
		if err != nil {
			return nil, err
		}
		f, err := h.fetch(ctx, inv, uri, w)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(f); err != nil {
			return nil, err
		}
		if !appendMode {
			if err := h.record(dest, uri, f); err != nil {
				return nil, err
			}
		}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}
	h.mgr.Disp.Print(fmt.Sprintf("Saved %s (%s)\n", dest, humanize.Bytes(uint64(info.Size()))))
	return success()
}

// download fetches uri into dest through a temporary file which replaces
// dest only on success. saved is false when the server answered
// 304 Not Modified.
func (h *handlers) download(ctx context.Context, inv *Invocation, uri, dest string, extra ...func(b *fetcher.HTTPBuilder)) (saved bool, err error) {
	part := dest + ".part"
	w, err := reader.NewFileWriter(part, false, reader.WithLock())
	if err != nil {
		return false, err
	}

	f, err := h.fetch(ctx, inv, uri, w, extra...)
	if err == nil {
		err = checkStatus(f)
	}
	if err != nil {
		os.Remove(part)
		return false, err
	}
	if hf, ok := f.(*fetcher.HTTPFetcher); ok {
		if code, _ := hf.ResponseCode(); code == http.StatusNotModified {
			os.Remove(part)
			return false, nil
		}
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return false, err
	}
	return true, h.record(dest, uri, f)
}

// conditions turns what the history knows about dest into conditional
// request headers. Nothing is sent when dest is gone or came from elsewhere.
func (h *handlers) conditions(uri, dest string) ([]func(b *fetcher.HTTPBuilder), error) {
	e, ok, err := h.mgr.History.Get(dest)
	if err != nil {
		return nil, err
	}
	if !ok || e.URI != uri {
		return nil, nil
	}
	if _, err := os.Stat(dest); err != nil {
		return nil, nil
	}

	var opts []func(b *fetcher.HTTPBuilder)
	if !e.LastModified.IsZero() {
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetIfModifiedSince(e.LastModified) })
	}
	if e.ETag != "" {
		opts = append(opts, func(b *fetcher.HTTPBuilder) { b.SetCustomHeader("If-None-Match", e.ETag) })
	}
	return opts, nil
}

func (h *handlers) record(dest, uri string, f fetcher.Fetcher) error {
	info, err := os.Stat(dest)
	if err != nil {
		return err
	}
	e := history.Entry{URI: uri, Size: info.Size(), Saved: time.Now()}
	if hf, ok := f.(*fetcher.HTTPFetcher); ok {
		e.LastModified, _ = hf.LastModified()
		e.ETag, _ = hf.HeaderField("ETag")
	}
	if err := h.mgr.History.Put(dest, e); err != nil {
		return err
	}
	return h.mgr.History.Save()
}

func (h *handlers) showHistory(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	if inv.Bool("prune") {
		gone, err := h.mgr.History.Prune()
		if err != nil {
			return nil, err
		}
		for _, dest := range gone {
			h.mgr.Disp.Log("forgot " + dest)
		}
		if err := h.mgr.History.Save(); err != nil {
			return nil, err
		}
		h.mgr.Disp.Print(fmt.Sprintf("Forgot %d entries\n", len(gone)))
	}

	records, err := h.mgr.History.List()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		h.mgr.Disp.Print("No saved files\n")
		return success()
	}

	table := &display.Table{Header: []string{"FILE", "URI", "SIZE", "SAVED"}}
	for _, r := range records {
		table.Rows = append(table.Rows, []string{r.Dest, r.URI, humanize.Bytes(uint64(r.Size)), humanize.Time(r.Saved)})
	}
	h.mgr.Disp.RenderOutput(&display.Output{Table: table})
	return success()
}

func (h *handlers) extract(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	dir := inv.Args["dir"]
	r, err := reader.NewArchive(dir)
	if err != nil {
		return nil, err
	}
	if err := h.fetchOK(ctx, inv, inv.Args["uri"], r); err != nil {
		return nil, err
	}
	for _, entry := range r.Entries() {
		h.mgr.Disp.Log(entry)
	}
	h.mgr.Disp.Print(fmt.Sprintf("Extracted %d files into %s\n", len(r.Entries()), dir))
	return success()
}

func (h *handlers) version(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	fmt.Fprintln(h.mgr.Out, config.GetBuildInfo())
	return success()
}
