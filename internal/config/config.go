// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Render  RenderConfig  `mapstructure:"render"`
	Network NetworkConfig `mapstructure:"network"`
	Assets  AssetsConfig  `mapstructure:"assets"`
	Chrome  ChromeConfig  `mapstructure:"chrome"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port    int   `mapstructure:"port"`
	MaxBody int64 `mapstructure:"max_body"`
}

// RenderConfig bounds every render.
type RenderConfig struct {
	DefaultDPR     float64 `mapstructure:"default_dpr"`
	MaxWidth       int     `mapstructure:"max_width"`
	MaxHeight      int     `mapstructure:"max_height"`
	MaxPixels      int     `mapstructure:"max_pixels"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
}

// NetworkConfig decides what a page may load.
type NetworkConfig struct {
	BlockExternal    bool    `mapstructure:"block_external"`
	AllowURL         bool    `mapstructure:"allow_url"`
	AllowlistDomains string  `mapstructure:"allowlist_domains"`
	URLHostQPS       float64 `mapstructure:"url_host_qps"`
}

// AssetsConfig locates presets and templates on disk.
type AssetsConfig struct {
	PresetsPath  string `mapstructure:"presets_path"`
	TemplatesDir string `mapstructure:"templates_dir"`
}

// ChromeConfig points at the browser binary; empty means auto-detect.
type ChromeConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig selects where finished renders are copied.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Archive backends.
const (
	ArchiveOff    = ""
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// envBindings maps config keys to the flat environment names operators set.
var envBindings = map[string]string{
	"server.port":               "PORT",
	"server.max_body":           "MAX_BODY",
	"render.default_dpr":        "DEFAULT_DPR",
	"render.max_width":          "MAX_WIDTH",
	"render.max_height":         "MAX_HEIGHT",
	"render.max_pixels":         "MAX_PIXELS",
	"render.max_concurrency":    "RENDER_MAX_CONCURRENCY",
	"network.block_external":    "BLOCK_EXTERNAL",
	"network.allow_url":         "ALLOW_URL",
	"network.allowlist_domains": "ALLOWLIST_DOMAINS",
	"network.url_host_qps":      "URL_HOST_QPS",
	"assets.presets_path":       "PRESETS_PATH",
	"assets.templates_dir":      "TEMPLATES_DIR",
	"chrome.path":               "CHROME_PATH",
	"archive.backend":           "ARCHIVE_BACKEND",
	"archive.dir":               "ARCHIVE_DIR",
	"archive.bucket":            "ARCHIVE_BUCKET",
	"logging.development":       "LOG_DEVELOPMENT",
}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.max_body", 1<<20)
	v.SetDefault("render.default_dpr", 1.0)
	v.SetDefault("render.max_width", 4000)
	v.SetDefault("render.max_height", 4000)
	v.SetDefault("render.max_pixels", 16_000_000)
	v.SetDefault("render.max_concurrency", 4)
	v.SetDefault("network.block_external", true)
	v.SetDefault("network.allow_url", false)
	v.SetDefault("network.allowlist_domains", "")
	v.SetDefault("network.url_host_qps", 0.0)
	v.SetDefault("assets.presets_path", "presets.json")
	v.SetDefault("assets.templates_dir", "templates")
	v.SetDefault("chrome.path", "")
	v.SetDefault("archive.backend", ArchiveOff)
	v.SetDefault("archive.dir", "renders")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if c.Server.MaxBody <= 0 {
		return fmt.Errorf("server.max_body must be > 0")
	}
	if c.Render.DefaultDPR <= 0 || c.Render.DefaultDPR > 4 {
		return fmt.Errorf("render.default_dpr must be in (0, 4]")
	}
	if c.Render.MaxWidth <= 0 || c.Render.MaxHeight <= 0 {
		return fmt.Errorf("render.max_width and render.max_height must be > 0")
	}
	if c.Render.MaxPixels <= 0 {
		return fmt.Errorf("render.max_pixels must be > 0")
	}
	if c.Render.MaxConcurrency < 0 {
		return fmt.Errorf("render.max_concurrency must be >= 0")
	}
	if c.Network.URLHostQPS < 0 {
		return fmt.Errorf("network.url_host_qps must be >= 0")
	}
	switch c.Archive.Backend {
	case ArchiveOff, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of memory, local, gcs", c.Archive.Backend)
	}
	return nil
}

// Allowlist returns the configured allowlist entries.
func (c Config) Allowlist() []string {
	var out []string
	for _, entry := range strings.Split(c.Network.AllowlistDomains, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
