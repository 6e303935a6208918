package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gallery GalleryConfig `yaml:"gallery"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// GalleryConfig holds the watched-directory settings.
type GalleryConfig struct {
	// Root is the base output directory; monitor and scan requests
	// resolve their relative_path against it.
	Root string `yaml:"root"`
	// AllowedRoot is the broader boundary file operations may never
	// escape (typically the host application's install root).
	AllowedRoot string `yaml:"allowed_root"`
	// PlaceholderDir backs the static mount when no watch is active.
	PlaceholderDir string `yaml:"placeholder_dir"`
	DebounceMS     int    `yaml:"debounce_ms"`
	UsePolling     bool   `yaml:"use_polling_observer"`
	PollIntervalS  int    `yaml:"poll_interval_s"`
	// WatchOnStart begins monitoring Root as soon as the server is up.
	WatchOnStart bool `yaml:"watch_on_start"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	FilePath      string `yaml:"file_path"`
	FileMaxSizeMB int    `yaml:"file_max_size_mb"`
	FileMaxFiles  int    `yaml:"file_max_files"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8189,
			BasePath: "",
		},
		Gallery: GalleryConfig{
			Root:           "./output",
			AllowedRoot:    ".",
			PlaceholderDir: "./output",
			DebounceMS:     500,
			PollIntervalS:  2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (missing files are fine) and applies
// environment variable overrides. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator-controlled env/flag
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("GALLERY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("GALLERY_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("GALLERY_ROOT"); v != "" {
		c.Gallery.Root = v
	}
	if v := os.Getenv("GALLERY_ALLOWED_ROOT"); v != "" {
		c.Gallery.AllowedRoot = v
	}
	if v := os.Getenv("GALLERY_PLACEHOLDER_DIR"); v != "" {
		c.Gallery.PlaceholderDir = v
	}
	if v := os.Getenv("GALLERY_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Gallery.DebounceMS = ms
		}
	}
	if v := os.Getenv("GALLERY_USE_POLLING"); v != "" {
		c.Gallery.UsePolling = v == "true" || v == "1"
	}
	if v := os.Getenv("GALLERY_WATCH_ON_START"); v != "" {
		c.Gallery.WatchOnStart = v == "true" || v == "1"
	}
	if v := os.Getenv("GALLERY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GALLERY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("GALLERY_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Gallery.Root == "" {
		return fmt.Errorf("gallery root is required")
	}
	if c.Gallery.DebounceMS <= 0 {
		c.Gallery.DebounceMS = 500
	}
	if c.Gallery.PollIntervalS <= 0 {
		c.Gallery.PollIntervalS = 2
	}
	if c.Gallery.AllowedRoot == "" {
		c.Gallery.AllowedRoot = filepath.Dir(filepath.Clean(c.Gallery.Root))
	}
	if c.Gallery.PlaceholderDir == "" {
		c.Gallery.PlaceholderDir = c.Gallery.Root
	}
	return nil
}
