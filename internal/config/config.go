package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/logger"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration
type Config struct {
	Timezone          string               `mapstructure:"timezone"`
	TomorrowAfterHour int                  `mapstructure:"tomorrow_after_hour"`
	Store             StoreConfig          `mapstructure:"store"`
	Prices            PricesConfig         `mapstructure:"prices"`
	Schedules         []engine.Constraints `mapstructure:"schedules"`
	Email             *EmailConfig         `mapstructure:"email"`
	MQTT              *MQTTConfig          `mapstructure:"mqtt"`
	HTTP              HTTPConfig           `mapstructure:"http"`
	Daemon            DaemonConfig         `mapstructure:"daemon"`
	Stats             StatsConfig          `mapstructure:"stats"`
	Log               logger.Config        `mapstructure:"log"`

	location *time.Location
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PricesConfig configures the spot price sources
type PricesConfig struct {
	Area           string        `mapstructure:"area"` // Elering area key: ee, fi, lt, lv
	VATPercent     float64       `mapstructure:"vat_percent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	EleringURL     string        `mapstructure:"elering_url"`
	PorssisahkoURL string        `mapstructure:"porssisahko_url"`
	MinEntries     int           `mapstructure:"min_entries"`
}

// EmailConfig configures SMTP delivery of schedules and alerts
type EmailConfig struct {
	Server   string   `mapstructure:"server"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// MQTTConfig configures the broker pin states are published to
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
	Retain      bool   `mapstructure:"retain"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StatsConfig struct {
	StartYear int `mapstructure:"start_year"`
}

// DefaultDir is where the config file and database live unless overridden
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spotswitch"
	}
	return filepath.Join(home, ".spotswitch")
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "Local")
	v.SetDefault("tomorrow_after_hour", 16)
	v.SetDefault("store.path", filepath.Join(DefaultDir(), "spotswitch.db"))
	v.SetDefault("prices.area", "fi")
	v.SetDefault("prices.vat_percent", 25.5)
	v.SetDefault("prices.timeout", 10*time.Second)
	v.SetDefault("prices.elering_url", "https://dashboard.elering.ee/api/nps/price")
	v.SetDefault("prices.porssisahko_url", "https://api.porssisahko.net/v1/latest-prices.json")
	v.SetDefault("prices.min_entries", 23)
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("daemon.interval", 5*time.Minute)
	v.SetDefault("stats.start_year", 2023)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the config file at path, or config.yaml from the default
// directory when path is empty, applying SPOTSWITCH_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(DefaultDir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("spotswitch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and resolves the timezone
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	c.location = loc

	if c.TomorrowAfterHour < 0 || c.TomorrowAfterHour > 24 {
		return fmt.Errorf("%w: tomorrow_after_hour must be within 0-24", ErrInvalidConfig)
	}
	if c.Prices.MinEntries <= 0 {
		return fmt.Errorf("%w: prices.min_entries must be positive", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Schedules))
	for _, s := range c.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if seen[s.DeviceID] {
			return fmt.Errorf("%w: device_id %s is scheduled twice", ErrInvalidConfig, s.DeviceID)
		}
		seen[s.DeviceID] = true
	}

	if c.Email != nil {
		if c.Email.Server == "" || c.Email.From == "" || len(c.Email.To) == 0 {
			return fmt.Errorf("%w: email needs server, from and to", ErrInvalidConfig)
		}
		if c.Email.Port == 0 {
			c.Email.Port = 587
		}
	}
	if c.MQTT != nil {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required", ErrInvalidConfig)
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "spotswitch"
		}
	}
	return nil
}

// Location returns the timezone days are computed in
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}
