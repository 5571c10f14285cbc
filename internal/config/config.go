package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"cadetplan/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// TrainingYearConfig is the YAML form of model.TrainingYearWindow. Dates are
// "YYYY-MM-DD"; Weekday uses 0 = Sunday ... 6 = Saturday.
type TrainingYearConfig struct {
	Start      string `yaml:"start" json:"start"`
	End        string `yaml:"end" json:"end"`
	Weekday    int    `yaml:"weekday" json:"weekday"`
	FirstNight string `yaml:"first_night" json:"first_night"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone the unit trains in (e.g. "America/Toronto").
	// It is used for the cron report schedule.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CurriculumPath points at the read-only curriculum YAML.
	CurriculumPath string `yaml:"curriculum_path" json:"curriculum_path"`

	// DatabasePath is the sqlite file holding the schedule and planners.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// ReportCron is a cron-style schedule string (e.g. "0 6 * * 1") for the
	// periodic progress report log.
	ReportCron string `yaml:"report" json:"report"`

	// PeriodsPerNight is how many periods a training night has.
	PeriodsPerNight int `yaml:"periods_per_night" json:"periods_per_night"`

	// TrainingYear defines the training nights.
	TrainingYear TrainingYearConfig `yaml:"training_year" json:"training_year"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration for a
// September-to-June year training on Wednesdays.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "America/Toronto",
		LogLevel:        "info",
		CurriculumPath:  "/etc/cadetplan/curriculum.yaml",
		DatabasePath:    "/var/lib/cadetplan/cadetplan.db",
		ReportCron:      "0 6 * * 1",
		PeriodsPerNight: 3,
		TrainingYear: TrainingYearConfig{
			Start:      "2024-09-01",
			End:        "2025-06-30",
			Weekday:    int(time.Wednesday),
			FirstNight: "2024-09-11",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. The training year is left
// alone: a malformed window must surface as an error, not be patched.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.CurriculumPath == "" {
		c.CurriculumPath = def.CurriculumPath
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.ReportCron == "" {
		c.ReportCron = def.ReportCron
	}
	if c.PeriodsPerNight <= 0 {
		c.PeriodsPerNight = def.PeriodsPerNight
	}
}

// Window parses the training year into a model.TrainingYearWindow. It only
// checks that the dates parse; weekday consistency is the calendar package's
// job.
func (c *Config) Window() (model.TrainingYearWindow, error) {
	var w model.TrainingYearWindow
	var err error
	if w.Start, err = civil.ParseDate(c.TrainingYear.Start); err != nil {
		return w, fmt.Errorf("config: training_year.start: %w", err)
	}
	if w.End, err = civil.ParseDate(c.TrainingYear.End); err != nil {
		return w, fmt.Errorf("config: training_year.end: %w", err)
	}
	if w.FirstTrainingNight, err = civil.ParseDate(c.TrainingYear.FirstNight); err != nil {
		return w, fmt.Errorf("config: training_year.first_night: %w", err)
	}
	w.TrainingWeekday = c.TrainingYear.Weekday
	return w, nil
}

// ReportSchedule parses ReportCron with the standard 5-field parser.
func (c *Config) ReportSchedule() (cron.Schedule, error) {
	s, err := cron.ParseStandard(c.ReportCron)
	if err != nil {
		return nil, fmt.Errorf("config: report: %w", err)
	}
	return s, nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file in the same directory + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".cadetplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
