package config

import (
	"errors"
	"fmt"
	"os"

	"campusrides/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Exports    ExportConfig     `yaml:"exports"`
	Booking    BookingConfig    `yaml:"booking"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	UserID int64  `yaml:"user_id"`
	Role   string `yaml:"role"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SweeperConfig struct {
	IntervalMinutes   int `yaml:"interval_minutes"`
	RideCloseAfterHrs int `yaml:"ride_close_after_hours"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type BookingConfig struct {
	MaxSeats int64 `yaml:"max_seats"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment may already carry the values.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			return errors.New("smtp host is required when smtp is enabled")
		}
		if c.SMTP.From == "" {
			return errors.New("smtp from address is required when smtp is enabled")
		}
	}
	if c.API.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("at least one api key is required when api is enabled")
	}
	for _, key := range c.API.Auth.APIKeys {
		if key.Key == "" {
			return fmt.Errorf("api key for client '%s' is empty", key.Name)
		}
		switch key.Role {
		case models.RoleStaff, models.RoleStudent:
		default:
			return fmt.Errorf("api key for client '%s' has unknown role '%s'", key.Name, key.Role)
		}
	}
	if c.Booking.MaxSeats < 1 || c.Booking.MaxSeats > models.MaxSeats {
		return fmt.Errorf("booking.max_seats must be between 1 and %d", models.MaxSeats)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.RateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.RateLimitBurst
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Sweeper.IntervalMinutes == 0 {
		c.Sweeper.IntervalMinutes = models.DefaultSweepIntervalMinutes
	}
	if c.Sweeper.RideCloseAfterHrs == 0 {
		c.Sweeper.RideCloseAfterHrs = models.DefaultRideCloseAfterHours
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Booking.MaxSeats == 0 {
		c.Booking.MaxSeats = models.MaxSeats
	}
}
