package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v2"
)

const DefaultPort = "6379"

type Config struct {
	Redis struct {
		Mode         string   `yaml:"mode" default:"standalone"`
		Addrs        []string `yaml:"addrs"`
		Password     string   `yaml:"password"`
		DB           int      `yaml:"db" default:"0"`
		PoolSize     int      `yaml:"pool_size" default:"4"`
		DialTimeout  int      `yaml:"dial_timeout" default:"5"`
		ReadTimeout  int      `yaml:"read_timeout" default:"30"`
		WriteTimeout int      `yaml:"write_timeout" default:"30"`
	} `yaml:"redis"`
	Batch struct {
		PipelineLimit   int `yaml:"pipeline_limit" default:"1000"`
		MaxRedirects    int `yaml:"max_redirects" default:"5"`
		RedirectBackoff int `yaml:"redirect_backoff_ms" default:"100"`
	} `yaml:"batch"`
	Logging struct {
		Level string `yaml:"level" default:"info"`
	} `yaml:"logging"`
	Metrics struct {
		ListenAddress string `yaml:"listen_address"`
		Textfile      string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %v", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration YAML: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Redis.Mode {
	case "standalone", "cluster":
	default:
		return fmt.Errorf("redis.mode must be standalone or cluster, got %q", c.Redis.Mode)
	}
	if c.Batch.PipelineLimit <= 0 {
		return fmt.Errorf("batch.pipeline_limit must be positive, got %d", c.Batch.PipelineLimit)
	}
	if c.Batch.MaxRedirects < 0 {
		return fmt.Errorf("batch.max_redirects must not be negative, got %d", c.Batch.MaxRedirects)
	}
	return nil
}

// SetServer puts server first in the address list, appending the default
// port when none is given.
func (c *Config) SetServer(server string) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, DefaultPort)
	}
	addrs := []string{server}
	for _, a := range c.Redis.Addrs {
		if a != server {
			addrs = append(addrs, a)
		}
	}
	c.Redis.Addrs = addrs
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Redis.DialTimeout) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Redis.ReadTimeout) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Redis.WriteTimeout) * time.Second
}

func (c *Config) RedirectBackoff() time.Duration {
	return time.Duration(c.Batch.RedirectBackoff) * time.Millisecond
}
