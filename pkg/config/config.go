package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/user/enricher-service/internal/entity"
)

// Config stores all configuration for the application.
type Config struct {
	Mode       string `mapstructure:"ENRICH_MODE"` // "live" or "static"
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	PageURL       string `mapstructure:"PAGE_URL"`
	BaseURL       string `mapstructure:"BASE_URL"`
	SessionCookie string `mapstructure:"SESSION_COOKIE"`
	Headless      bool   `mapstructure:"HEADLESS"`
	StaticInput   string `mapstructure:"STATIC_INPUT"`
	StaticOutput  string `mapstructure:"STATIC_OUTPUT"`

	FetchTimeout    int    `mapstructure:"FETCH_TIMEOUT"`     // in seconds
	PageLoadTimeout int    `mapstructure:"PAGE_LOAD_TIMEOUT"` // in seconds
	MaxRedirects    int    `mapstructure:"MAX_REDIRECTS"`
	PhotoSize       string `mapstructure:"PHOTO_SIZE"` // "large" or "thumbnail"
	Proxies         string `mapstructure:"PROXIES"`    // comma separated

	DebounceWindow   int `mapstructure:"DEBOUNCE_WINDOW_MS"`
	DebounceMaxDelay int `mapstructure:"DEBOUNCE_MAX_DELAY_MS"`

	GuardBackend  string `mapstructure:"GUARD_BACKEND"` // "memory" or "redis"
	GuardTTL      int    `mapstructure:"GUARD_TTL"`     // in seconds
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	TableRoot      string `mapstructure:"TABLE_ROOT"`
	TableHeader    string `mapstructure:"TABLE_HEADER"`
	TableTargets   string `mapstructure:"TABLE_TARGETS"`
	TableKeyLink   string `mapstructure:"TABLE_KEY_LINK"`
	PopupRoot      string `mapstructure:"POPUP_ROOT"`
	PopupTargets   string `mapstructure:"POPUP_TARGETS"`
	PopupKeyLink   string `mapstructure:"POPUP_KEY_LINK"`
	PopupSelection string `mapstructure:"POPUP_SELECTION"`
	KeyPattern     string `mapstructure:"KEY_PATTERN"`
	HeaderLabel    string `mapstructure:"HEADER_LABEL"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine, the environment alone can configure the service.
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENRICH_MODE", "live")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PAGE_URL", "")
	v.SetDefault("BASE_URL", "https://www.strava.com")
	v.SetDefault("SESSION_COOKIE", "")
	v.SetDefault("HEADLESS", true)
	v.SetDefault("STATIC_INPUT", "")
	v.SetDefault("STATIC_OUTPUT", "")
	v.SetDefault("FETCH_TIMEOUT", 15)
	v.SetDefault("PAGE_LOAD_TIMEOUT", 60)
	v.SetDefault("MAX_REDIRECTS", 10)
	v.SetDefault("PHOTO_SIZE", "large")
	v.SetDefault("PROXIES", "")
	v.SetDefault("DEBOUNCE_WINDOW_MS", 250)
	v.SetDefault("DEBOUNCE_MAX_DELAY_MS", 2000)
	v.SetDefault("GUARD_BACKEND", "memory")
	v.SetDefault("GUARD_TTL", 120)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TABLE_ROOT", "table.table-leaderboard")
	v.SetDefault("TABLE_HEADER", "thead tr")
	v.SetDefault("TABLE_TARGETS", "tbody tr")
	v.SetDefault("TABLE_KEY_LINK", `td a[href*="/segment_efforts/"]`)
	v.SetDefault("POPUP_ROOT", "div.leaflet-popup-content")
	v.SetDefault("POPUP_TARGETS", "div.segment-effort")
	v.SetDefault("POPUP_KEY_LINK", `a[href*="/segment_efforts/"]`)
	v.SetDefault("POPUP_SELECTION", "div.segment-name")
	v.SetDefault("KEY_PATTERN", `/segment_efforts/\d+`)
	v.SetDefault("HEADER_LABEL", "Photos")
}

// FetchTimeoutDuration returns the resolver request timeout.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// PageLoadTimeoutDuration returns the browser navigation timeout.
func (c *Config) PageLoadTimeoutDuration() time.Duration {
	return time.Duration(c.PageLoadTimeout) * time.Second
}

// GuardTTLDuration bounds how long a redis-held Processing Flag survives a crashed holder.
func (c *Config) GuardTTLDuration() time.Duration {
	return time.Duration(c.GuardTTL) * time.Second
}

// ProxyList splits PROXIES into trimmed, non-empty entries.
func (c *Config) ProxyList() []string {
	var out []string
	for _, p := range strings.Split(c.Proxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Regions builds the region specs the enrichment loop sweeps on every pass.
func (c *Config) Regions() []entity.RegionSpec {
	return []entity.RegionSpec{
		{
			Kind:        entity.RegionTable,
			Root:        c.TableRoot,
			Header:      c.TableHeader,
			HeaderLabel: c.HeaderLabel,
			Targets:     c.TableTargets,
			KeyLink:     c.TableKeyLink,
			KeyPattern:  c.KeyPattern,
			SlotTag:     "td",
			Progress:    true,
		},
		{
			Kind:       entity.RegionPopup,
			Root:       c.PopupRoot,
			Targets:    c.PopupTargets,
			KeyLink:    c.PopupKeyLink,
			KeyPattern: c.KeyPattern,
			SlotTag:    "div",
			Selection:  c.PopupSelection,
			Exclusive:  true,
			Progress:   true,
		},
	}
}
