package fetcher

import (
	"io/fs"
	"net/http"
	"net/url"
	"strings"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeAsset = "android.asset"
	SchemeFile  = "file"
)

// Environment is what the factory needs from the running application to build
// fetchers. Any field may be left empty.
type Environment struct {
	// Assets holds the bundled resources served for the asset scheme.
	Assets fs.FS
	// Connectivity is checked by HTTP fetchers before connecting.
	Connectivity Connectivity
	// Transport is used by HTTP fetchers instead of http.DefaultTransport.
	Transport http.RoundTripper
}

// Select returns the most simply configured Fetcher able to read uri, or nil
// when uri is nil, its scheme is not supported or it carries no usable path.
// Callers needing more configuration should build the fetcher themselves.
func Select(env *Environment, uri *url.URL) Fetcher {
	if uri == nil || uri.Opaque != "" {
		return nil
	}
	if env == nil {
		env = &Environment{}
	}

	var (
		f   Fetcher
		err error
	)
	switch scheme := uri.Scheme; {
	case strings.EqualFold(scheme, SchemeHTTP), strings.EqualFold(scheme, SchemeHTTPS):
		f, err = NewHTTPBuilder().
			SetURL(uri.String()).
			SetTransport(env.Transport).
			SetConnectivity(env.Connectivity).
			Build()
	case strings.EqualFold(scheme, SchemeAsset):
		f, err = NewAssetFetcher(env.Assets, strings.TrimPrefix(uri.Path, "/"))
	case strings.EqualFold(scheme, SchemeFile):
		f, err = NewFileFetcher(uri.Path)
	default:
		return nil
	}

	if err != nil {
		log.WithField("uri", uri.String()).Debugf("no fetcher: %v", err)
		return nil
	}
	return f
}

// SelectString parses raw and calls Select. Unparsable input yields nil.
func SelectString(env *Environment, raw string) Fetcher {
	if raw == "" {
		return nil
	}
	uri, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return Select(env, uri)
}
