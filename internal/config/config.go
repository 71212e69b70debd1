package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Photos       PhotosConfig       `yaml:"photos"`
	API          APIConfig          `yaml:"api"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	Push         PushConfig         `yaml:"push"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds local API server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// StorageConfig selects the local store engine
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// PhotosConfig selects where photos of pending stories are spooled
type PhotosConfig struct {
	Backend string   `yaml:"backend"` // file or s3
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config holds S3-compatible bucket configuration
type S3Config struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// APIConfig holds the remote story service configuration
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// ConnectivityConfig controls the reachability prober
type ConnectivityConfig struct {
	ProbeURL string        `yaml:"probe_url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SyncConfig controls the sync coordinator
type SyncConfig struct {
	Promote *bool `yaml:"promote"`
}

// PushConfig holds APNs configuration. Push is disabled without a key file.
type PushConfig struct {
	KeyFile      string   `yaml:"key_file"`
	KeyID        string   `yaml:"key_id"`
	TeamID       string   `yaml:"team_id"`
	Topic        string   `yaml:"topic"`
	DeviceTokens []string `yaml:"device_tokens"`
	Production   bool     `yaml:"production"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/stories.db"
	}
	if c.Photos.Backend == "" {
		c.Photos.Backend = "file"
	}
	if c.Photos.Dir == "" {
		c.Photos.Dir = "data/photos"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://story-api.dicoding.dev/v1"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 15 * time.Second
	}
	if c.Connectivity.ProbeURL == "" {
		c.Connectivity.ProbeURL = c.API.BaseURL
	}
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = 30 * time.Second
	}
	if c.Connectivity.Timeout == 0 {
		c.Connectivity.Timeout = 5 * time.Second
	}
	if c.Sync.Promote == nil {
		promote := true
		c.Sync.Promote = &promote
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks option combinations
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Photos.Backend {
	case "file":
	case "s3":
		if c.Photos.S3.Bucket == "" {
			return fmt.Errorf("photos.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown photos backend %q", c.Photos.Backend)
	}
	return nil
}

// Addr returns the listen address of the local API
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PushEnabled reports whether APNs delivery is configured
func (c *PushConfig) PushEnabled() bool {
	return c.KeyFile != "" && len(c.DeviceTokens) > 0
}
