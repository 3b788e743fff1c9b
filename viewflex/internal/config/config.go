// Package config loads the viewflex daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/viewflex/viewflex/targets"
)

// Config is the top-level configuration.
type Config struct {
	Browser   BrowserConfig    `yaml:"browser"`
	Pages     []PageConfig     `yaml:"pages"`
	Store     StoreConfig      `yaml:"store"`
	Watcher   WatcherConfig    `yaml:"watcher"`
	API       APIConfig        `yaml:"api"`
	Reporters []ReporterConfig `yaml:"reporters"`
	Targets   []targets.Spec   `yaml:"targets"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// PageConfig is a chat page kept open and widened.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// StoreConfig selects the preference store.
type StoreConfig struct {
	Driver       string        `yaml:"driver"` // sqlite | file
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// WatcherConfig tunes how CDP insert events become batches.
type WatcherConfig struct {
	BatchWindow time.Duration `yaml:"batch_window"`
	MaxBatch    int           `yaml:"max_batch"`
	QueueSize   int           `yaml:"queue_size"`
}

// APIConfig controls the control API. An empty Addr disables it.
type APIConfig struct {
	Addr string `yaml:"addr"`
	MCP  bool   `yaml:"mcp"`
}

// ReporterConfig is one event destination.
type ReporterConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`
}

// DefaultStorePath is where preferences live when the file names none.
func DefaultStorePath(driver string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	name := "prefs.db"
	if driver == "file" {
		name = "prefs.yaml"
	}
	return filepath.Join(dir, "viewflex", name)
}

// Default returns a configuration with every default applied and no pages.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load reads and validates a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath(c.Store.Driver)
	}
	if c.Store.PollInterval <= 0 {
		c.Store.PollInterval = 500 * time.Millisecond
	}
	if c.Watcher.BatchWindow <= 0 {
		c.Watcher.BatchWindow = 50 * time.Millisecond
	}
	if c.Watcher.MaxBatch <= 0 {
		c.Watcher.MaxBatch = 500
	}
	if c.Watcher.QueueSize <= 0 {
		c.Watcher.QueueSize = 256
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth %q: want headless or headful", c.Browser.Stealth)
	}
	switch c.Store.Driver {
	case "sqlite", "file":
	default:
		return fmt.Errorf("config: store.driver %q: want sqlite or file", c.Store.Driver)
	}
	seen := map[string]bool{}
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %q has no url", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
	}
	for _, r := range c.Reporters {
		switch r.Type {
		case "stdout":
		case "webhook":
			if r.URL == "" {
				return fmt.Errorf("config: webhook reporter without url")
			}
		default:
			return fmt.Errorf("config: reporter type %q: want stdout or webhook", r.Type)
		}
	}
	return nil
}
