package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"ghg-data-pipeline/internal/model"
	"ghg-data-pipeline/pkg/logging"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Geography  GeographyConfig
	Validation ValidationConfig
	Workers    WorkerConfig
	LogLevel   logging.LogLevel
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// Addr is the listen address for the configured port.
func (s ServerConfig) Addr() string { return ":" + s.Port }

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// GeographyConfig says where the hierarchy lookup lives.
type GeographyConfig struct {
	LookupTable string
	// LookupCSV, when set, is loaded into LookupTable at startup.
	LookupCSV string
	// TaxonomyFile is an optional JSON sector taxonomy.
	TaxonomyFile string
}

// ValidationConfig holds the default thresholds applied to every run.
type ValidationConfig struct {
	NullRateThreshold float64
	OutlierK          float64
	Strict            bool
}

// WorkerConfig bounds the concurrency of checks and group reductions.
type WorkerConfig struct {
	Validation  int
	Aggregation int
}

// Load reads configuration from environment variables. Invalid values are configuration errors.
func Load() (*Config, error) {
	var errs []string
	env := envReader{errs: &errs}

	cfg := &Config{
		Server: ServerConfig{
			Port: env.getString("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(env.getString("DB_DRIVER", "sqlite3")),
			DSN:    env.getString("DB_DSN", "pipeline.db"),
		},
		Geography: GeographyConfig{
			LookupTable:  env.getString("LOOKUP_TABLE", "geography_lookup"),
			LookupCSV:    env.getString("LOOKUP_CSV", ""),
			TaxonomyFile: env.getString("SECTOR_TAXONOMY", ""),
		},
		Validation: ValidationConfig{
			NullRateThreshold: env.getFloat("NULL_RATE_THRESHOLD", 0.05),
			OutlierK:          env.getFloat("OUTLIER_IQR_K", 1.5),
			Strict:            env.getBool("STRICT_MODE", false),
		},
		Workers: WorkerConfig{
			Validation:  env.getInt("VALIDATION_WORKERS", 4),
			Aggregation: env.getInt("AGGREGATION_WORKERS", 4),
		},
	}

	level, err := logging.ParseLevel(env.getString("LOG_LEVEL", "INFO"))
	if err != nil {
		errs = append(errs, "LOG_LEVEL: "+err.Error())
	}
	cfg.LogLevel = level

	if len(errs) == 0 {
		errs = cfg.check()
	}
	if len(errs) > 0 {
		return nil, model.ConfigErrorf("load_config", "%s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) check() []string {
	var errs []string
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Sprintf("PORT %q is not a number", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER %q, want sqlite3 or postgres", c.Database.Driver))
	}
	if !tableName.MatchString(c.Geography.LookupTable) {
		errs = append(errs, fmt.Sprintf("LOOKUP_TABLE %q is not a plain table name", c.Geography.LookupTable))
	}
	if c.Validation.NullRateThreshold < 0 || c.Validation.NullRateThreshold > 1 {
		errs = append(errs, fmt.Sprintf("NULL_RATE_THRESHOLD %v outside [0, 1]", c.Validation.NullRateThreshold))
	}
	if c.Validation.OutlierK <= 0 {
		errs = append(errs, fmt.Sprintf("OUTLIER_IQR_K %v must be positive", c.Validation.OutlierK))
	}
	if c.Workers.Validation < 1 {
		errs = append(errs, "VALIDATION_WORKERS must be at least 1")
	}
	if c.Workers.Aggregation < 1 {
		errs = append(errs, "AGGREGATION_WORKERS must be at least 1")
	}
	return errs
}

// envReader records every unparsable value in errs.
type envReader struct {
	errs *[]string
}

func (e envReader) getString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) getInt(key string, defaultValue int) int {
	value := e.getString(key, "")
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s %q is not an integer", key, value))
		return defaultValue
	}
	return i
}

func (e envReader) getFloat(key string, defaultValue float64) float64 {
	value := e.getString(key, "")
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s %q is not a number", key, value))
		return defaultValue
	}
	return f
}

func (e envReader) getBool(key string, defaultValue bool) bool {
	value := e.getString(key, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s %q is not a boolean", key, value))
		return defaultValue
	}
	return b
}
