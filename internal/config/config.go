// Package config loads the YAML run configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/planbiir/gcjfix/internal/archive"
	"github.com/planbiir/gcjfix/internal/pgstore"
	"github.com/planbiir/gcjfix/internal/repair"
	"github.com/planbiir/gcjfix/internal/timeconv"
	"github.com/planbiir/gcjfix/internal/track"
)

// Input formats
const (
	FormatCSV      = "csv"
	FormatParquet  = "parquet"
	FormatGPX      = "gpx"
	FormatFIT      = "fit"
	FormatPostgres = "postgres"
)

// Input describes where points come from
type Input struct {
	Path          string        `yaml:"path"`
	Format        string        `yaml:"format" validate:"omitempty,oneof=csv parquet gpx fit postgres"`
	Columns       track.Columns `yaml:"columns"`
	TZOffsetHours float64       `yaml:"tz_offset_hours" validate:"gte=-14,lte=14"`
}

// Output lists the artifacts to write; empty paths are skipped
type Output struct {
	Path        string `yaml:"path"`
	Audit       string `yaml:"audit"`
	AuditFormat string `yaml:"audit_format" validate:"omitempty,oneof=csv parquet"`
	GeoJSON     string `yaml:"geojson"`
	KML         string `yaml:"kml"`
	Summary     string `yaml:"summary"`
}

// Log controls the structured logger
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Config is the complete run configuration
type Config struct {
	Repair   repair.Config  `yaml:"repair"`
	Input    Input          `yaml:"input"`
	Slice    track.Slice    `yaml:"slice"`
	Output   Output         `yaml:"output"`
	Archive  archive.Config `yaml:"archive"`
	Postgres pgstore.Config `yaml:"postgres"`
	Log      Log            `yaml:"log"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Repair: repair.DefaultConfig(),
		Input: Input{
			Columns:       track.DefaultColumns(),
			TZOffsetHours: timeconv.DefaultOffsetHours,
		},
		Output: Output{
			AuditFormat: FormatCSV,
		},
		Postgres: pgstore.DefaultConfig(),
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Input.Format == FormatPostgres && c.Postgres.URL == "" {
		return errors.New("invalid config: postgres input needs postgres.url or DATABASE_URL")
	}
	return nil
}

// ApplyEnv fills secrets from the environment when the file leaves them empty
func (c *Config) ApplyEnv() {
	if c.Postgres.URL == "" {
		c.Postgres.URL = os.Getenv("DATABASE_URL")
	}
	c.Archive.ApplyEnv()
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads a config file, applies environment overrides and validates the
// result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, err
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DetectFormat guesses the input format from a file extension
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return FormatParquet
	case ".gpx":
		return FormatGPX
	case ".fit":
		return FormatFIT
	default:
		return FormatCSV
	}
}
