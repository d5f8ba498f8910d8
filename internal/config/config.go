// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Site    SiteConfig    `mapstructure:"site"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Browser BrowserConfig `mapstructure:"browser"`
	Images  ImagesConfig  `mapstructure:"images"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	APIKey      string `mapstructure:"api_key"`
}

// SiteConfig identifies the target site. The site's structure is assumed
// fixed; only the host changes between environments (e.g. a staging
// mirror in tests).
type SiteConfig struct {
	BaseURL            string   `mapstructure:"base_url"`
	MenuPath           string   `mapstructure:"menu_path"`
	RestaurantsPath    string   `mapstructure:"restaurants_path"`
	ExcludeRestaurants []string `mapstructure:"exclude_restaurants"`
}

// FetchConfig governs the HTTP fetcher and the extraction gate.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
	DelayMinMs     int     `mapstructure:"delay_min_ms"`
	DelayMaxMs     int     `mapstructure:"delay_max_ms"`
	Concurrency    int     `mapstructure:"concurrency"`
	HostQPS        float64 `mapstructure:"host_qps"`
}

// BrowserConfig configures the headless listing discoverer.
type BrowserConfig struct {
	ScrollPauseMs     int `mapstructure:"scroll_pause_ms"`
	MaxScrolls        int `mapstructure:"max_scrolls"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
}

// ImagesConfig sets image cache directories and the optional GCS mirror.
type ImagesConfig struct {
	MenuDir       string `mapstructure:"menu_dir"`
	RestaurantDir string `mapstructure:"restaurant_dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for sync-completed notifications. Empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MENUSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.base_url", "https://coffeemania.ru")
	v.SetDefault("site.menu_path", "/menu")
	v.SetDefault("site.restaurants_path", "/restaurants")
	v.SetDefault("site.exclude_restaurants", []string{"Кофемания Chef's"})
	v.SetDefault("fetch.user_agent", "menusync-bot/0.1")
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.delay_min_ms", 10)
	v.SetDefault("fetch.delay_max_ms", 20)
	v.SetDefault("fetch.concurrency", 20)
	v.SetDefault("fetch.host_qps", 0)
	v.SetDefault("browser.scroll_pause_ms", 250)
	v.SetDefault("browser.max_scrolls", 20)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("images.menu_dir", "images")
	v.SetDefault("images.restaurant_dir", "restaurant_images")
	v.SetDefault("pubsub.topic", "menusync-events")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.DelayMinMs > c.Fetch.DelayMaxMs {
		return fmt.Errorf("fetch.delay_min_ms must be <= fetch.delay_max_ms")
	}
	if c.Browser.MaxScrolls <= 0 {
		return fmt.Errorf("browser.max_scrolls must be > 0")
	}
	if c.Server.AuthEnabled && c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key must be set when auth is enabled")
	}
	return nil
}

// MenuURL returns the absolute listing page URL.
func (c Config) MenuURL() string {
	return strings.TrimRight(c.Site.BaseURL, "/") + c.Site.MenuPath
}

// RestaurantsURL returns the absolute restaurant listing URL.
func (c Config) RestaurantsURL() string {
	return strings.TrimRight(c.Site.BaseURL, "/") + c.Site.RestaurantsPath
}

// FetchTimeout converts the timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
