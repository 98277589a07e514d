// Package config manages the directories and defaults of fetchutils.
// Directories follow the XDG base directory specification; defaults for HTTP
// fetches are read from $XDG_CONFIG_HOME/fetchutils/config.yaml.
package config

import (
	"fmt"
	"maps"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"fetchutils/pkg/fetcher"
)

// HTTPDefaults are applied to every HTTP fetch before the per-call options.
type HTTPDefaults struct {
	UserAgent      string            `yaml:"user_agent,omitempty"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout,omitempty"`
	ReadTimeout    time.Duration     `yaml:"read_timeout,omitempty"`
	Proxy          string            `yaml:"proxy,omitempty"`
	StrictHost     bool              `yaml:"strict_host,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`

	// CheckConnectivity makes HTTP fetches fail fast when no network
	// interface is up.
	CheckConnectivity bool `yaml:"check_connectivity,omitempty"`
}

func (h HTTPDefaults) clone() HTTPDefaults {
	h.Headers = maps.Clone(h.Headers)
	return h
}

// Apply copies the defaults into b.
func (h HTTPDefaults) Apply(b *fetcher.HTTPBuilder) error {
	if h.Proxy != "" {
		proxy, err := url.Parse(h.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy %q: %w", h.Proxy, err)
		}
		b.SetProxy(proxy)
	}
	if h.ConnectTimeout > 0 {
		b.SetConnectTimeout(h.ConnectTimeout)
	}
	if h.ReadTimeout > 0 {
		b.SetReadTimeout(h.ReadTimeout)
	}
	if h.StrictHost {
		b.SetAllowHostRedirects(false)
	}
	if h.UserAgent != "" {
		b.SetCustomHeader("User-Agent", h.UserAgent)
	}
	for name, value := range h.Headers {
		b.SetCustomHeader(name, value)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default}. Unknown variables
// without a default are left as they are.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := strings.TrimSuffix(strings.TrimPrefix(string(match), "${"), "}")

		name, def, hasDefault := strings.Cut(expr, ":-")
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		if hasDefault {
			return []byte(def)
		}
		return match
	})
}
