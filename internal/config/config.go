package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Archive backends for EXPORT_ARCHIVE.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveS3     = "s3"
)

const DefaultEnvFile = ".env"

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string   `mapstructure:"DB_SCHEMA"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	ExportDir      string   `mapstructure:"EXPORT_DIR"`
	ExportArchive  string   `mapstructure:"EXPORT_ARCHIVE"`
	ExportS3Bucket string   `mapstructure:"EXPORT_S3_BUCKET"`
	ExportS3Prefix string   `mapstructure:"EXPORT_S3_PREFIX"`
	AWSRegion      string   `mapstructure:"AWS_REGION"`
	MetricsEnabled bool     `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"CORS_ORIGINS", "EXPORT_DIR", "EXPORT_ARCHIVE", "EXPORT_S3_BUCKET",
	"EXPORT_S3_PREFIX", "AWS_REGION", "METRICS_ENABLED",
}

// Load reads configuration from the environment, after merging in .env when
// it exists.
func Load() (*Config, error) {
	return LoadFrom(DefaultEnvFile)
}

// LoadFrom is Load with an explicit dotenv file. Variables already present in
// the environment take precedence over the file. A missing file is not an
// error.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_ARCHIVE", ArchiveNone)
	v.SetDefault("EXPORT_S3_PREFIX", "fhir-exports")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("METRICS_ENABLED", true)

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.ExportArchive = strings.ToLower(strings.TrimSpace(cfg.ExportArchive))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks settings that Load cannot default.
func (c *Config) Validate() error {
	if c.DBMinConns < 0 || c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1 and DB_MIN_CONNS non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if !schemaPattern.MatchString(c.DBSchema) {
		return fmt.Errorf("DB_SCHEMA %q is not a valid identifier", c.DBSchema)
	}
	if c.ExportDir == "" {
		return fmt.Errorf("EXPORT_DIR must not be empty")
	}

	switch c.ExportArchive {
	case ArchiveNone, ArchiveMemory:
	case ArchiveS3:
		if c.ExportS3Bucket == "" {
			return fmt.Errorf("EXPORT_S3_BUCKET is required when EXPORT_ARCHIVE is %q", ArchiveS3)
		}
	default:
		return fmt.Errorf("EXPORT_ARCHIVE must be %q, %q, or %q, got %q",
			ArchiveNone, ArchiveMemory, ArchiveS3, c.ExportArchive)
	}

	if c.IsProduction() && c.ExportArchive == ArchiveMemory {
		return fmt.Errorf("EXPORT_ARCHIVE=%s loses archived exports on restart and is not allowed in production", ArchiveMemory)
	}
	return nil
}
