// Package config loads and validates watcher configuration via Viper.
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
	Source  SourceConfig  `mapstructure:"source"`
	Store   StoreConfig   `mapstructure:"store"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Mail    MailConfig    `mapstructure:"mail"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig points at the marketplace listing page and sets the scrape
// cadence.
type SourceConfig struct {
	URL             string `mapstructure:"url"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	UserAgent       string `mapstructure:"user_agent"`
}

// StoreConfig sets the durable results file location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// FilterConfig governs the eligibility thresholds. Penalties maps rating
// grades to risk penalties; MaxDefaultRating and MinCreditScore enable the
// stricter historical variants when non-zero.
type FilterConfig struct {
	CostOffset              float64            `mapstructure:"cost_offset"`
	MinYield                float64            `mapstructure:"min_yield"`
	Penalties               map[string]float64 `mapstructure:"penalties"`
	ExcludedClassifications []string           `mapstructure:"excluded_classifications"`
	MaxDefaultRating        float64            `mapstructure:"max_default_rating"`
	MinCreditScore          float64            `mapstructure:"min_credit_score"`
}

// MailConfig holds outbound mail credentials. Leaving the credential fields
// empty puts the notifier in log-only mode rather than failing startup.
type MailConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Account        string `mapstructure:"account"`
	Password       string `mapstructure:"password"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	RefreshToken   string `mapstructure:"refresh_token"`
	To             string `mapstructure:"to"`
	ProjectBaseURL string `mapstructure:"project_base_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDWATCH")
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
	v.SetDefault("source.url", "https://www.geldvoorelkaar.nl/geldvoorelkaar/startpagina.aspx")
	v.SetDefault("source.interval_seconds", 120)
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.user_agent", "fundwatch/0.1")
	v.SetDefault("store.path", "results.json")
	v.SetDefault("filter.cost_offset", 2.9)
	v.SetDefault("filter.min_yield", 2.5)
	v.SetDefault("filter.penalties", map[string]float64{
		"BBB": 1.24,
		"A":   0.62,
		"AA":  0.30,
		"AAA": 0.15,
	})
	v.SetDefault("filter.excluded_classifications", []string{})
	v.SetDefault("filter.max_default_rating", 0.0)
	v.SetDefault("filter.min_credit_score", 0.0)
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.project_base_url", "https://www.geldvoorelkaar.nl")
	// Credential keys default to empty so AutomaticEnv can bind them during
	// Unmarshal; empty means the notifier runs in log-only mode.
	v.SetDefault("mail.account", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.client_id", "")
	v.SetDefault("mail.client_secret", "")
	v.SetDefault("mail.refresh_token", "")
	v.SetDefault("mail.to", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url must be set")
	}
	if c.Source.IntervalSeconds <= 0 {
		return fmt.Errorf("source.interval_seconds must be > 0")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}
	if len(c.Filter.Penalties) == 0 {
		return fmt.Errorf("filter.penalties must not be empty")
	}
	if c.Mail.Port <= 0 {
		return fmt.Errorf("mail.port must be > 0")
	}
	return nil
}

// Interval converts the scrape cadence into a duration.
func (c SourceConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout converts the fetch timeout into a duration.
func (c SourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
