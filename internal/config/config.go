// Package config loads and validates watcher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mhorvath/vintedwatch/internal/model"
)

// countryCodes maps the supported Vinted sites.
var countryCodes = map[string]bool{
	".hu":  true,
	".de":  true,
	".fr":  true,
	".com": true,
	".es":  true,
}

// Config captures all watcher configuration loaded via Viper.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Vinted   VintedConfig   `mapstructure:"vinted"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Searches []SearchConfig `mapstructure:"searches"`
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// VintedConfig selects which Vinted site to watch.
type VintedConfig struct {
	CountryCode string `mapstructure:"country_code"`
}

// BaseURL returns the site root for the configured country.
func (v VintedConfig) BaseURL() string {
	return "https://www.vinted" + v.CountryCode
}

// MonitorConfig governs the cycle loop.
type MonitorConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	PerPage         int `mapstructure:"per_page"`
}

// Interval returns the cycle interval as a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// ServerConfig controls the operational HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features. Level overrides the
// mode's default verbosity when set; valid values are zap's level names.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SearchConfig is one saved search as written in the config file. Searches
// are enabled unless explicitly disabled, so the zero value does the right
// thing.
type SearchConfig struct {
	ChatID   int64    `mapstructure:"chat_id"`
	Name     string   `mapstructure:"name"`
	Query    string   `mapstructure:"query"`
	Sizes    []string `mapstructure:"sizes"`
	Gender   string   `mapstructure:"gender"`
	Category string   `mapstructure:"category"`
	Disabled bool     `mapstructure:"disabled"`
}

// Load builds a Config from the given file plus environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VINTEDWATCH")
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
	v.SetDefault("vinted.country_code", ".hu")
	v.SetDefault("monitor.interval_seconds", 50)
	v.SetDefault("monitor.per_page", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values once at load time, so misconfiguration
// fails startup instead of surfacing mid-run.
func (c Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token must be set")
	}
	if !countryCodes[c.Vinted.CountryCode] {
		return fmt.Errorf("vinted.country_code %q is not supported", c.Vinted.CountryCode)
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be > 0")
	}
	if c.Monitor.PerPage <= 0 {
		return fmt.Errorf("monitor.per_page must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	for i, s := range c.Searches {
		if s.Query == "" {
			return fmt.Errorf("searches[%d].query must be set", i)
		}
		if s.ChatID == 0 {
			return fmt.Errorf("searches[%d].chat_id must be set", i)
		}
		switch s.Category {
		case "", model.CategoryClothing, model.CategoryOther:
		default:
			return fmt.Errorf("searches[%d].category %q is not supported", i, s.Category)
		}
		switch s.Gender {
		case "", model.GenderMen, model.GenderWomen:
		default:
			return fmt.Errorf("searches[%d].gender %q is not supported", i, s.Gender)
		}
	}
	return nil
}

// SearchSpecs converts the configured searches into the scheduler's model.
// Size tokens are normalized to upper case, gender only applies to the
// clothing category, and an unset category defaults to clothing.
func (c Config) SearchSpecs() []*model.Search {
	out := make([]*model.Search, 0, len(c.Searches))
	for _, s := range c.Searches {
		category := s.Category
		if category == "" {
			category = model.CategoryClothing
		}
		gender := s.Gender
		if category != model.CategoryClothing {
			gender = ""
		}

		sizes := make([]string, 0, len(s.Sizes))
		for _, size := range s.Sizes {
			size = strings.ToUpper(strings.TrimSpace(size))
			if size != "" {
				sizes = append(sizes, size)
			}
		}

		name := s.Name
		if name == "" {
			name = "Search: " + s.Query
		}

		out = append(out, &model.Search{
			ChatID:  s.ChatID,
			Name:    name,
			Enabled: !s.Disabled,
			Filter: model.Filter{
				Query:    s.Query,
				Sizes:    sizes,
				Gender:   gender,
				Category: category,
			},
		})
	}
	return out
}
