// Package config loads the service configuration from a YAML file, an
// optional .env file and ARIADNE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/wehubfusion/Ariadne/internal/logging"
	"github.com/wehubfusion/Ariadne/pkg/mappers/builtin"
	"github.com/wehubfusion/Ariadne/pkg/mappers/script"
	"github.com/wehubfusion/Ariadne/pkg/process/portal"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageFile  = "file"
	StorageAzure = "azure"
)

// Config is the complete service configuration.
type Config struct {
	Service  ServiceConfig     `yaml:"service"`
	Logging  logging.Config    `yaml:"logging"`
	Storage  StorageConfig     `yaml:"storage"`
	NATS     NATSConfig        `yaml:"nats"`
	Tracing  TracingConfig     `yaml:"tracing"`
	Sentry   SentryConfig      `yaml:"sentry"`
	Database DatabaseConfig    `yaml:"database"`
	AOP      *portal.AOPConfig `yaml:"aop"`
	Portal   PortalConfig      `yaml:"portal"`
	Mappers  MappersConfig     `yaml:"mappers"`
	System   SystemConfig      `yaml:"system"`

	// Themes lists the theme manifests to load from themes/<name>.yaml.
	Themes      []string               `yaml:"themes"`
	Navigation  interface{}            `yaml:"navigation"`
	Preferences map[string]interface{} `yaml:"preferences"`
}

type ServiceConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Environment   string `yaml:"environment"`
	SubjectPrefix string `yaml:"subject_prefix"`
	QueueGroup    string `yaml:"queue_group"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`

	AzureConnectionString string `yaml:"azure_connection_string"`
	AzureContainer        string `yaml:"azure_container"`

	// VardefTTL bounds how long field definitions are cached.
	VardefTTL time.Duration `yaml:"vardef_ttl"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type SentryConfig struct {
	DSN              string  `yaml:"dsn"`
	Environment      string  `yaml:"environment"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
}

// DatabaseConfig points at the CRM database holding contacts.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	EnsureSchema bool   `yaml:"ensure_schema"`
}

type PortalConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	BreakerThreshold int64         `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

type MappersConfig struct {
	Transforms []builtin.TransformSpec `yaml:"transforms"`
	Scripts    []script.Spec           `yaml:"scripts"`
}

// SystemConfig holds the values served as system configs to clients.
type SystemConfig struct {
	DefaultLanguage string                 `yaml:"default_language"`
	DefaultTheme    string                 `yaml:"default_theme"`
	Settings        map[string]interface{} `yaml:"settings"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:          "ariadne",
			Version:       "1.0.0",
			Environment:   "development",
			SubjectPrefix: "ariadne",
			QueueGroup:    "ariadne",
		},
		Logging: logging.Config{Level: "info"},
		Storage: StorageConfig{
			Backend:   StorageFile,
			Dir:       "./data",
			VardefTTL: 5 * time.Minute,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Tracing: TracingConfig{
			Endpoint:    "127.0.0.1:4318",
			Insecure:    true,
			SampleRatio: 1.0,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:ariadne.db?_pragma=busy_timeout(5000)",
		},
		Portal: PortalConfig{
			Timeout:          10 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		System: SystemConfig{
			DefaultLanguage: "en_us",
		},
	}
}

// Load reads a .env file when present, then path (skipped when empty), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the values already in cfg.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides file values with ARIADNE_* environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.Service.SubjectPrefix, "ARIADNE_SUBJECT_PREFIX")
	setString(&c.Service.QueueGroup, "ARIADNE_QUEUE_GROUP")
	setString(&c.Service.Environment, "ARIADNE_ENVIRONMENT")

	setString(&c.Logging.Level, "ARIADNE_LOG_LEVEL")
	if err := setBool(&c.Logging.Development, "ARIADNE_LOG_DEVELOPMENT"); err != nil {
		return err
	}

	setString(&c.Storage.Backend, "ARIADNE_STORAGE_BACKEND")
	setString(&c.Storage.Dir, "ARIADNE_STORAGE_DIR")
	setString(&c.Storage.AzureConnectionString, "ARIADNE_AZURE_CONNECTION_STRING")
	setString(&c.Storage.AzureContainer, "ARIADNE_AZURE_CONTAINER")

	setString(&c.NATS.URL, "ARIADNE_NATS_URL")
	setString(&c.NATS.Token, "ARIADNE_NATS_TOKEN")
	setString(&c.NATS.Username, "ARIADNE_NATS_USERNAME")
	setString(&c.NATS.Password, "ARIADNE_NATS_PASSWORD")

	if err := setBool(&c.Tracing.Enabled, "ARIADNE_TRACING_ENABLED"); err != nil {
		return err
	}
	setString(&c.Tracing.Endpoint, "ARIADNE_TRACING_ENDPOINT")

	setString(&c.Sentry.DSN, "ARIADNE_SENTRY_DSN")
	setString(&c.Sentry.Environment, "ARIADNE_SENTRY_ENVIRONMENT")

	setString(&c.Database.Driver, "ARIADNE_DATABASE_DRIVER")
	setString(&c.Database.DSN, "ARIADNE_DATABASE_DSN")

	if v, ok := lookup("ARIADNE_PORTAL_URL"); ok {
		if c.AOP == nil {
			c.AOP = &portal.AOPConfig{}
		}
		c.AOP.JoomlaURL = v
	}
	if v, ok := lookup("ARIADNE_PORTAL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ARIADNE_PORTAL_TIMEOUT: %w", err)
		}
		c.Portal.Timeout = d
	}

	setString(&c.System.DefaultLanguage, "ARIADNE_DEFAULT_LANGUAGE")
	setString(&c.System.DefaultTheme, "ARIADNE_DEFAULT_THEME")
	return nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Service.SubjectPrefix) == "" {
		errs = append(errs, fmt.Errorf("service.subject_prefix is required"))
	}
	switch c.Storage.Backend {
	case StorageFile:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			errs = append(errs, fmt.Errorf("storage.dir is required for the file backend"))
		}
	case StorageAzure:
		if c.Storage.AzureConnectionString == "" || c.Storage.AzureContainer == "" {
			errs = append(errs, fmt.Errorf("storage.azure_connection_string and storage.azure_container are required for the azure backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	for i, s := range c.Mappers.Transforms {
		if s.Module == "" || s.Field == "" || s.Transform == "" {
			errs = append(errs, fmt.Errorf("mappers.transforms[%d]: module, field and transform are required", i))
		}
	}
	for i, s := range c.Mappers.Scripts {
		if s.Module == "" || s.Field == "" {
			errs = append(errs, fmt.Errorf("mappers.scripts[%d]: module and field are required", i))
		}
	}
	return errors.Join(errs...)
}

// SystemConfigs returns the settings served to clients, including the
// default language and theme.
func (c *Config) SystemConfigs() map[string]interface{} {
	out := make(map[string]interface{}, len(c.System.Settings)+2)
	for k, v := range c.System.Settings {
		out[k] = v
	}
	if c.System.DefaultLanguage != "" {
		out["default_language"] = c.System.DefaultLanguage
	}
	if c.System.DefaultTheme != "" {
		out["default_theme"] = c.System.DefaultTheme
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
