// Package config loads process settings for the jobqueue command from the
// environment and an optional connections file.
//
// Variables are read with the JOBQUEUE_ prefix. Outside production a .env
// file in the working directory is loaded first; variables already set in
// the environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "JOBQUEUE"

// Settings holds process-wide configuration.
type Settings struct {
	// Env names the deployment environment. The .env file is skipped in
	// production.
	Env string `envconfig:"ENV" default:"development"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Driver is the driver of the implicit default connection used when no
	// connections file is given.
	Driver string `envconfig:"DRIVER" default:"redis"`

	RedisURL      string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"jobqueue"`
	DatabaseURL   string `envconfig:"DATABASE_URL" default:"file:jobqueue.db?cache=shared"`

	DefaultConnection string `envconfig:"DEFAULT_CONNECTION" default:"default"`
	ConnectionsFile   string `envconfig:"CONNECTIONS_FILE"`

	// FailedDriver selects the failed-job store. Empty means the driver of
	// the default connection.
	FailedDriver     string `envconfig:"FAILED_DRIVER"`
	FailedCollection string `envconfig:"FAILED_COLLECTION" default:"queue_jobs_failed"`

	// Binary is launched for each job. Empty means the running executable.
	Binary string `envconfig:"BINARY"`

	// Audit logs every lifecycle event as an audit record.
	Audit bool `envconfig:"AUDIT" default:"false"`
}

// IsProduction reports whether Env names production.
func (s Settings) IsProduction() bool {
	env := strings.ToLower(s.Env)
	return env == "production" || env == "prod"
}

// Load reads Settings from the environment, loading .env first unless
// JOBQUEUE_ENV is production.
func Load() (Settings, error) {
	env := strings.ToLower(os.Getenv(Prefix + "_ENV"))
	if env != "production" && env != "prod" {
		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("unable to load .env file", slog.String("error", err.Error()))
		}
	}

	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (s Settings) NewLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return nil, fmt.Errorf("config: log level %q: %w", s.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(s.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", s.LogFormat)
	}
}
