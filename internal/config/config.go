package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/savegress/oeesense/pkg/models"
)

// Config holds all configuration for OEESense
type Config struct {
	Server    ServerConfig  `yaml:"server"`
	Storage   StorageConfig `yaml:"storage"`
	Reports   ReportsConfig `yaml:"reports"`
	Standards Standards     `yaml:"standards"`
	Overrides Overrides     `yaml:"overrides"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
}

// StorageConfig holds embedded event-log storage configuration
type StorageConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// UnmarshalYAML decodes the retention field from a duration string, which
// yaml.v3 does not do for time.Duration on its own.
func (s *StorageConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Path      string `yaml:"path"`
		Retention string `yaml:"retention"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Path = raw.Path
	if raw.Retention != "" {
		d, err := time.ParseDuration(raw.Retention)
		if err != nil {
			return fmt.Errorf("invalid storage retention %q: %w", raw.Retention, err)
		}
		s.Retention = d
	}
	return nil
}

// ReportsConfig holds shift report engine configuration
type ReportsConfig struct {
	ShiftDuration       time.Duration `yaml:"shift_duration"`
	CalculationInterval time.Duration `yaml:"calculation_interval"`
	MaxHistory          int           `yaml:"max_history"`
}

// UnmarshalYAML decodes the duration fields from duration strings.
func (r *ReportsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ShiftDuration       string `yaml:"shift_duration"`
		CalculationInterval string `yaml:"calculation_interval"`
		MaxHistory          int    `yaml:"max_history"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.MaxHistory = raw.MaxHistory
	if raw.ShiftDuration != "" {
		d, err := time.ParseDuration(raw.ShiftDuration)
		if err != nil {
			return fmt.Errorf("invalid shift_duration %q: %w", raw.ShiftDuration, err)
		}
		r.ShiftDuration = d
	}
	if raw.CalculationInterval != "" {
		d, err := time.ParseDuration(raw.CalculationInterval)
		if err != nil {
			return fmt.Errorf("invalid calculation_interval %q: %w", raw.CalculationInterval, err)
		}
		r.CalculationInterval = d
	}
	return nil
}

// Standards maps an operation name to its standard value-added time in
// seconds. Values are kept as raw YAML scalars: a non-numeric entry is a
// configuration error, but one that is only surfaced when a calculation
// actually references the entry.
type Standards map[string]interface{}

// Overrides maps an operation name to the loss category that replaces each
// matching event's own category before aggregation.
type Overrides map[string]models.LossCategory

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvInt("PORT", 3008),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Storage: StorageConfig{
			Path:      getEnv("STORAGE_PATH", "data"),
			Retention: getEnvDuration("STORAGE_RETENTION", 30*24*time.Hour),
		},
		Reports: ReportsConfig{
			ShiftDuration:       getEnvDuration("SHIFT_DURATION", 8*time.Hour),
			CalculationInterval: getEnvDuration("CALCULATION_INTERVAL", 5*time.Minute),
			MaxHistory:          getEnvInt("REPORT_MAX_HISTORY", 500),
		},
		Standards: Standards{},
		Overrides: Overrides{},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3008
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data"
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = 30 * 24 * time.Hour
	}
	if c.Reports.ShiftDuration == 0 {
		c.Reports.ShiftDuration = 8 * time.Hour
	}
	if c.Reports.CalculationInterval == 0 {
		c.Reports.CalculationInterval = 5 * time.Minute
	}
	if c.Reports.MaxHistory == 0 {
		c.Reports.MaxHistory = 500
	}
	if c.Standards == nil {
		c.Standards = Standards{}
	}
	if c.Overrides == nil {
		c.Overrides = Overrides{}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
