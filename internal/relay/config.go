package relay

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr     = ":8080"
	defaultMaxConcurrency = 8
	defaultMaxRetries     = 3
)

// Config is the relay's YAML configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	UpstreamURL string `yaml:"upstream_url"`

	Batch struct {
		MaxItems      int           `yaml:"max_items"`
		MaxBytes      int           `yaml:"max_bytes"`
		MaxBufferSize int           `yaml:"max_buffer_size"`
		MaxKeys       int           `yaml:"max_keys"`
		SendInterval  time.Duration `yaml:"send_interval"`
	} `yaml:"batch"`

	Sender struct {
		MaxConcurrency int    `yaml:"max_concurrency"`
		MaxRetries     uint64 `yaml:"max_retries"`
	} `yaml:"sender"`
}

// LoadConfig reads and validates a config file, applying defaults for
// anything unset. Batch knobs left at zero take the batch package defaults.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.Sender.MaxConcurrency == 0 {
		c.Sender.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Sender.MaxRetries == 0 {
		c.Sender.MaxRetries = defaultMaxRetries
	}
}

func (c *Config) Validate() error {
	if c.UpstreamURL == "" {
		return errors.New("upstream url is required")
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream url %q is not a valid absolute URL", c.UpstreamURL)
	}
	if c.Batch.MaxItems < 0 || c.Batch.MaxBytes < 0 || c.Batch.MaxBufferSize < 0 || c.Batch.MaxKeys < 0 {
		return errors.New("batch limits must not be negative")
	}
	if c.Batch.SendInterval < 0 {
		return errors.New("batch send interval must not be negative")
	}
	if c.Sender.MaxConcurrency <= 0 {
		return errors.New("sender max concurrency must be greater than 0")
	}
	return nil
}
