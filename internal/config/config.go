// Package config loads the synchronizer configuration from a YAML file with
// environment-variable overrides. Precedence (highest to lowest):
// 1. Environment variables
// 2. Config file
// 3. Defaults
// Flags handled by the CLI layer sit above all three.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beekhof/vacation-calendar-sync/internal/event"
)

// EnvConfigPath names the environment variable that points at the config file
// when no --config flag is given.
const EnvConfigPath = "AZURE_GRAPH_AUTH"

// Duration wraps time.Duration so YAML values can be written as "30s", "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// WorkDay describes the working hours used to classify absences. Times are
// wall-clock "HH:MM" strings.
type WorkDay struct {
	Start       string   `yaml:"start"`
	End         string   `yaml:"end"`
	LunchStart  string   `yaml:"lunch_start"`
	LunchEnd    string   `yaml:"lunch_end"`
	MinDuration Duration `yaml:"min_duration"`
}

// Schedule converts the wall-clock strings into the minute-based classifier
// schedule.
func (w WorkDay) Schedule() (event.Schedule, error) {
	start, err := parseClock(w.Start)
	if err != nil {
		return event.Schedule{}, fmt.Errorf("invalid work_day.start: %w", err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return event.Schedule{}, fmt.Errorf("invalid work_day.end: %w", err)
	}
	lunchStart, err := parseClock(w.LunchStart)
	if err != nil {
		return event.Schedule{}, fmt.Errorf("invalid work_day.lunch_start: %w", err)
	}
	lunchEnd, err := parseClock(w.LunchEnd)
	if err != nil {
		return event.Schedule{}, fmt.Errorf("invalid work_day.lunch_end: %w", err)
	}
	if !(start < lunchStart && lunchStart < lunchEnd && lunchEnd < end) {
		return event.Schedule{}, fmt.Errorf("work_day times must be ordered start < lunch_start < lunch_end < end")
	}
	return event.Schedule{
		WorkStart:   start,
		WorkEnd:     end,
		LunchStart:  lunchStart,
		LunchEnd:    lunchEnd,
		MinDuration: int(w.MinDuration.Std().Minutes()),
	}, nil
}

// parseClock converts "HH:MM" into minutes from midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Retry bounds the batch retry behavior.
type Retry struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	Multiplier  float64  `yaml:"multiplier"`
}

// Config holds the configuration for the vacation calendar synchronizer.
type Config struct {
	TenantID  string `yaml:"tenant_id"`
	ClientID  string `yaml:"client_id"`
	TokenPath string `yaml:"token_path"`

	Members        []string `yaml:"members"`
	SharedCalendar string   `yaml:"shared_calendar"`
	Timezone       string   `yaml:"timezone"`
	AwayTag        string   `yaml:"away_tag"`
	FreeMarker     string   `yaml:"free_marker"`

	NotifyRecipients []string `yaml:"notify_recipients"`
	AuditDBPath      string   `yaml:"audit_db_path"`

	BatchSize      int      `yaml:"batch_size"`
	RequestTimeout Duration `yaml:"request_timeout"`
	Retry          Retry    `yaml:"retry"`

	RefreshInterval Duration `yaml:"refresh_interval"`
	WindowWeeks     int      `yaml:"window_weeks"`
	WindowWeeksPast int      `yaml:"window_weeks_past"`

	WorkDay WorkDay `yaml:"work_day"`
}

// LoadFromFile loads configuration from a YAML file without applying
// overrides or defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Load loads configuration from the given path (falling back to the
// AZURE_GRAPH_AUTH environment variable when empty), applies environment
// overrides and defaults, and validates required fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	var config Config
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = *loaded
	}

	// Environment overrides.
	if v := os.Getenv("VCSYNC_TENANT_ID"); v != "" {
		config.TenantID = v
	}
	if v := os.Getenv("VCSYNC_CLIENT_ID"); v != "" {
		config.ClientID = v
	}
	if v := os.Getenv("VCSYNC_TOKEN_PATH"); v != "" {
		config.TokenPath = v
	}
	if v := os.Getenv("VCSYNC_SHARED_CALENDAR"); v != "" {
		config.SharedCalendar = v
	}
	if v := os.Getenv("VCSYNC_TIMEZONE"); v != "" {
		config.Timezone = v
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.TokenPath == "" {
		c.TokenPath = "token.json"
	}
	if c.Timezone == "" {
		c.Timezone = "Central Standard Time"
	}
	if c.AwayTag == "" {
		c.AwayTag = "oof"
	}
	if c.FreeMarker == "" {
		c.FreeMarker = "free"
	}
	if c.AuditDBPath == "" {
		c.AuditDBPath = "vcsync-audit.db"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 20
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(30 * time.Second)
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = Duration(2 * time.Second)
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = Duration(5 * time.Minute)
	}
	if c.WindowWeeks == 0 {
		c.WindowWeeks = 2
	}
	if c.WorkDay.Start == "" {
		c.WorkDay.Start = "08:00"
	}
	if c.WorkDay.End == "" {
		c.WorkDay.End = "17:00"
	}
	if c.WorkDay.LunchStart == "" {
		c.WorkDay.LunchStart = "12:00"
	}
	if c.WorkDay.LunchEnd == "" {
		c.WorkDay.LunchEnd = "13:00"
	}
	if c.WorkDay.MinDuration == 0 {
		c.WorkDay.MinDuration = Duration(time.Hour)
	}
}

func (c *Config) validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id must be provided via config file or VCSYNC_TENANT_ID")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id must be provided via config file or VCSYNC_CLIENT_ID")
	}
	if len(c.Members) == 0 {
		return fmt.Errorf("members must list at least one mailbox to watch")
	}
	if c.SharedCalendar == "" {
		return fmt.Errorf("shared_calendar must name the team calendar")
	}
	if _, err := c.WorkDay.Schedule(); err != nil {
		return err
	}
	return nil
}
