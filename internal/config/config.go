package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	LocalDB   LocalDBConfig   `mapstructure:"localdb"`
	Maps      MapsConfig      `mapstructure:"maps"`
	Lock      LockConfig      `mapstructure:"lock"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

// SupabaseConfig holds the remote event store configuration
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// LocalDBConfig holds the local durable queue configuration
type LocalDBConfig struct {
	Path string `mapstructure:"path"`
}

// MapsConfig holds the travel estimation collaborator configuration.
// When disabled (or the key is missing) the resolver always answers with
// the fallback estimate.
type MapsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LockConfig holds the focus-lock configuration.
type LockConfig struct {
	// ProximityRadiusMeters is the arrival detection radius.
	ProximityRadiusMeters float64 `mapstructure:"proximity_radius_meters"`
	// EmergencyPIN is the user-configured override PIN. When empty, the
	// legacy default "1234" still applies; see the design notes before
	// relying on that.
	EmergencyPIN string `mapstructure:"emergency_pin"`
}

// SyncConfig holds calendar sync configuration.
type SyncConfig struct {
	// HorizonDays bounds how far ahead external calendars are ingested.
	HorizonDays int `mapstructure:"horizon_days"`
	// ICSFeeds lists optional ICS feed URLs ingested alongside Google
	// Calendar.
	ICSFeeds []string `mapstructure:"ics_feeds"`
}

// RemindersConfig holds the reminder offsets in minutes before the
// departure deadline.
type RemindersConfig struct {
	OffsetsMinutes []int `mapstructure:"offsets_minutes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("localdb.path", "ontime.db")
	v.SetDefault("maps.enabled", false)
	v.SetDefault("maps.timeout", 5*time.Second)
	v.SetDefault("lock.proximity_radius_meters", 50.0)
	v.SetDefault("sync.horizon_days", 30)
	v.SetDefault("reminders.offsets_minutes", []int{30, 15})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read from environment variables
	v.SetEnvPrefix("ONTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also bind to non-prefixed environment variables for backward compatibility
	v.BindEnv("server.port", "PORT")
	v.BindEnv("supabase.url", "SUPABASE_URL")
	v.BindEnv("supabase.service_key", "SUPABASE_SERVICE_KEY")
	v.BindEnv("maps.api_key", "GOOGLE_MAPS_API_KEY")

	// Read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// It's okay if config file doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks that all required configuration values are present
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Supabase.ServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.Maps.Enabled && c.Maps.APIKey == "" {
		return fmt.Errorf("GOOGLE_MAPS_API_KEY is required when maps.enabled is true")
	}
	if c.Lock.ProximityRadiusMeters <= 0 {
		return fmt.Errorf("lock.proximity_radius_meters must be positive")
	}
	for _, offset := range c.Reminders.OffsetsMinutes {
		if offset < 0 {
			return fmt.Errorf("reminders.offsets_minutes must be non-negative")
		}
	}
	return nil
}
