package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"wedding-automation/internal/action"
	"wedding-automation/internal/models"
)

// WeddingDateLayout is the layout of Wedding.Date.
const WeddingDateLayout = "2006-01-02 15:04"

// Config holds the application configuration
type Config struct {
	LogLevel    string        `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	DataDir     string        `yaml:"data_dir" validate:"required"`
	Database    string        `yaml:"database" validate:"required"`
	Timezone    string        `yaml:"timezone" validate:"required,timezone"`
	RSVPBaseURL string        `yaml:"rsvp_base_url" validate:"omitempty,url"`
	SendTimeout time.Duration `yaml:"send_timeout" validate:"gt=0"`

	Sweep    SweepConfig    `yaml:"sweep"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	WhatsApp ChannelConfig  `yaml:"whatsapp"`
	SMS      ChannelConfig  `yaml:"sms"`
	Messages MessagesConfig `yaml:"messages"`
	Wedding  WeddingConfig  `yaml:"wedding"`
}

// SweepConfig controls the periodic sweep.
type SweepConfig struct {
	// Schedule is a cron spec; descriptors such as "@every 1m" work.
	Schedule   string        `yaml:"schedule" validate:"required"`
	Batch      int           `yaml:"batch" validate:"gt=0"`
	StaleAfter time.Duration `yaml:"stale_after" validate:"gt=0"`
}

// MetricsConfig controls the /metrics and /healthz listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// ChannelConfig switches an outbound channel on or off.
type ChannelConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MessagesConfig overrides message templates and date formatting.
type MessagesConfig struct {
	DateLayout string            `yaml:"date_layout"`
	TimeLayout string            `yaml:"time_layout"`
	Templates  map[string]string `yaml:"templates"`
}

// WeddingConfig describes the event `run` creates when the store has none.
type WeddingConfig struct {
	Name     string `yaml:"name"`
	Date     string `yaml:"date" validate:"omitempty,datetime=2006-01-02 15:04"`
	Venue    string `yaml:"venue"`
	Location string `yaml:"location"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		DataDir:     "data",
		Timezone:    "Asia/Jerusalem",
		SendTimeout: 60 * time.Second,
		Sweep: SweepConfig{
			Schedule: "@every 1m",
			Batch:    200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		WhatsApp: ChannelConfig{Enabled: true},
		Messages: MessagesConfig{
			DateLayout: action.DefaultDateLayout,
			TimeLayout: action.DefaultTimeLayout,
		},
	}
}

// LoadConfig loads configuration from the YAML file at path, when given,
// then from environment variables, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.DataDir, "wedding.db")
	}
	if cfg.Sweep.StaleAfter == 0 {
		cfg.Sweep.StaleAfter = 2 * cfg.SendTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DataDir = getEnv("WHATSAPP_DATA_DIR", c.DataDir)
	c.Database = getEnv("DATABASE_PATH", c.Database)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.RSVPBaseURL = getEnv("RSVP_BASE_URL", c.RSVPBaseURL)
	c.Sweep.Schedule = getEnv("SWEEP_SCHEDULE", c.Sweep.Schedule)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	c.Wedding.Name = getEnv("WEDDING_NAME", c.Wedding.Name)
	c.Wedding.Date = getEnv("WEDDING_DATE", c.Wedding.Date)
	c.Wedding.Venue = getEnv("WEDDING_VENUE", c.Wedding.Venue)
	c.Wedding.Location = getEnv("WEDDING_LOCATION", c.Wedding.Location)

	var err error
	if c.SendTimeout, err = getEnvDuration("SEND_TIMEOUT", c.SendTimeout); err != nil {
		return err
	}
	if c.Sweep.StaleAfter, err = getEnvDuration("STALE_AFTER", c.Sweep.StaleAfter); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled); err != nil {
		return err
	}
	if c.WhatsApp.Enabled, err = getEnvBool("WHATSAPP_ENABLED", c.WhatsApp.Enabled); err != nil {
		return err
	}
	return nil
}

// Validate checks field constraints and template keys.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.ActionTemplates(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured default timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ActionTemplates returns the template overrides keyed by action kind.
func (c *Config) ActionTemplates() (map[models.ActionKind]string, error) {
	templates := make(map[models.ActionKind]string, len(c.Messages.Templates))
	for key, tmpl := range c.Messages.Templates {
		kind := models.ActionKind(strings.ToUpper(key))
		if _, ok := action.Lookup(kind); !ok {
			return nil, fmt.Errorf("invalid configuration: template for unknown action %q", key)
		}
		templates[kind] = tmpl
	}
	return templates, nil
}

// WeddingEvent builds the configured event, or returns false when no
// wedding is configured.
func (c *Config) WeddingEvent() (*models.Event, bool, error) {
	if c.Wedding.Name == "" || c.Wedding.Date == "" {
		return nil, false, nil
	}
	startsAt, err := time.ParseInLocation(WeddingDateLayout, c.Wedding.Date, c.Location())
	if err != nil {
		return nil, false, fmt.Errorf("invalid wedding date %q: %w", c.Wedding.Date, err)
	}
	return &models.Event{
		Name:     c.Wedding.Name,
		StartsAt: startsAt,
		Timezone: c.Timezone,
		Location: c.Wedding.Location,
		Venue:    c.Wedding.Venue,
	}, true, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
