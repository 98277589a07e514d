package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "fetchutils"

// ReadOnly defines the read-only interface for Config.
// Immutable
type ReadOnly interface {
	GetConfigDir() string
	GetDataDir() string
	GetCacheDir() string
	GetConfigFile() string
	GetAssetDir() string
	GetHistoryFile() string
	GetHTTP() HTTPDefaults
	Freeze()
	Checkout() Writable
}

// Writable defines the writable interface for Config.
// Mutable
type Writable interface {
	ReadOnly
	SetConfigDir(string)
	SetDataDir(string)
	SetCacheDir(string)
	SetHTTP(HTTPDefaults)
}

// Config holds the directories fetchutils works with and the defaults applied
// to every HTTP fetch.
// Mutable
type Config struct {
	configDir string
	dataDir   string
	cacheDir  string

	configFile  string
	assetDir    string
	historyFile string

	http HTTPDefaults

	frozen bool
	edited bool
}

var _ ReadOnly = (*Config)(nil)
var _ Writable = (*Config)(nil)

func (c *Config) GetConfigDir() string   { return c.configDir }
func (c *Config) GetDataDir() string     { return c.dataDir }
func (c *Config) GetCacheDir() string    { return c.cacheDir }
func (c *Config) GetConfigFile() string  { return c.configFile }
func (c *Config) GetAssetDir() string    { return c.assetDir }
func (c *Config) GetHistoryFile() string { return c.historyFile }
func (c *Config) GetHTTP() HTTPDefaults  { return c.http.clone() }

func (c *Config) checkWritable() {
	if c.frozen {
		panic("cannot modify frozen config")
	}
}

func (c *Config) SetConfigDir(s string) {
	c.checkWritable()
	c.configDir = s
	c.updateDerived()
}

func (c *Config) SetDataDir(s string) {
	c.checkWritable()
	c.dataDir = s
	c.updateDerived()
}

func (c *Config) SetCacheDir(s string) {
	c.checkWritable()
	c.cacheDir = s
	c.updateDerived()
}

func (c *Config) SetHTTP(h HTTPDefaults) {
	c.checkWritable()
	c.http = h.clone()
}

func (c *Config) Freeze() {
	c.frozen = true
}

func (c *Config) Checkout() Writable {
	if c.frozen {
		panic("cannot checkout from frozen config")
	}
	if c.edited {
		panic("config already checked out")
	}
	c.edited = true
	return c
}

func (c *Config) updateDerived() {
	c.configFile = filepath.Join(c.configDir, "config.yaml")
	c.assetDir = filepath.Join(c.dataDir, "assets")
	c.historyFile = filepath.Join(c.cacheDir, "history.json")
}

// fileConfig is the layout of config.yaml.
type fileConfig struct {
	HTTP HTTPDefaults `yaml:"http"`
}

// Init builds the configuration from the XDG base directories and, when it
// exists, the config.yaml file in the config directory.
func Init() (ReadOnly, error) {
	c := &Config{
		configDir: filepath.Join(xdg.ConfigHome, appName),
		dataDir:   filepath.Join(xdg.DataHome, appName),
		cacheDir:  filepath.Join(xdg.CacheHome, appName),
	}
	c.updateDerived()

	if err := c.load(c.configFile); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the YAML file at path into c. A missing file leaves c unchanged.
func (c *Config) Load(path string) error {
	c.checkWritable()
	return c.load(path)
}

func (c *Config) load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	fc := fileConfig{HTTP: c.http}
	if err := yaml.Unmarshal(expandEnvVars(data), &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.http = fc.HTTP
	return nil
}
