package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/Tiliavir/research-hours/internal/rules"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverFirebase = "firebase"
)

// Config is the root configuration for hours, stored in
// ~/.hours/config.yaml. Every field can be overridden with a HOURS_*
// environment variable.
type Config struct {
	Log LogConfig `yaml:"log"`
	// Timezone is the IANA zone report dates are interpreted in. Empty means
	// the system zone.
	Timezone string         `yaml:"timezone" env:"HOURS_TIMEZONE"`
	Store    StoreConfig    `yaml:"store"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Identity IdentityConfig `yaml:"identity"`
	Backdate BackdateConfig `yaml:"backdate"`
	Export   ExportConfig   `yaml:"export"`
	Server   ServerConfig   `yaml:"server"`

	loc     *time.Location
	minDate time.Time
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"HOURS_LOG_LEVEL" env-default:"warn"`
	Format string `yaml:"format" env:"HOURS_LOG_FORMAT" env-default:"console"`
}

// StoreConfig selects where reports live.
type StoreConfig struct {
	Driver string `yaml:"driver" env:"HOURS_STORE_DRIVER" env-default:"sqlite"`
	// SQLitePath defaults to ~/.hours/hours.db.
	SQLitePath string `yaml:"sqlite_path" env:"HOURS_SQLITE_PATH"`
}

// FirebaseConfig holds the project settings for the firebase driver.
type FirebaseConfig struct {
	DatabaseURL string `yaml:"database_url" env:"HOURS_FIREBASE_DATABASE_URL"`
	APIKey      string `yaml:"api_key" env:"HOURS_FIREBASE_API_KEY"`
}

// IdentityConfig names the local user for the sqlite driver. The firebase
// driver uses the signed-in account instead.
type IdentityConfig struct {
	UID string `yaml:"uid" env:"HOURS_UID" env-default:"local"`
}

// BackdateConfig allows reports older than one week.
type BackdateConfig struct {
	Enabled bool `yaml:"enabled" env:"HOURS_BACKDATE_ENABLED"`
	// MinDate is the earliest date (YYYY-MM-DD) backdating may reach.
	MinDate string `yaml:"min_date" env:"HOURS_BACKDATE_MIN_DATE"`
}

// ExportConfig controls where export files are written.
type ExportConfig struct {
	Dir string `yaml:"dir" env:"HOURS_EXPORT_DIR" env-default:"."`
}

// ServerConfig configures `hours serve`.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"HOURS_SERVER_ADDR" env-default:"127.0.0.1:8080"`
}

// configTemplate is the annotated config written on first run.
const configTemplate = `# hours configuration (~/.hours/config.yaml)
#
# All settings are optional and every one can be overridden with the
# HOURS_* environment variable named next to it.

log:
  # debug, info, warn or error (HOURS_LOG_LEVEL)
  level: warn
  # console or json (HOURS_LOG_FORMAT)
  format: console

# IANA timezone for report dates, e.g. "Asia/Jerusalem". Empty uses the
# system zone. (HOURS_TIMEZONE)
timezone: ""

store:
  # sqlite keeps everything in a local file; firebase talks to a Realtime
  # Database. (HOURS_STORE_DRIVER)
  driver: sqlite
  # Empty means ~/.hours/hours.db (HOURS_SQLITE_PATH)
  sqlite_path: ""

firebase:
  # e.g. https://my-project-default-rtdb.firebaseio.com (HOURS_FIREBASE_DATABASE_URL)
  database_url: ""
  # Web API key of the Firebase project (HOURS_FIREBASE_API_KEY)
  api_key: ""

identity:
  # User id used with the sqlite driver (HOURS_UID)
  uid: local

backdate:
  # Allow reports older than one week (HOURS_BACKDATE_ENABLED)
  enabled: false
  # Earliest date backdating may reach, YYYY-MM-DD (HOURS_BACKDATE_MIN_DATE)
  min_date: ""

export:
  # Directory export files are written to (HOURS_EXPORT_DIR)
  dir: "."

server:
  # Listen address for "hours serve" (HOURS_SERVER_ADDR)
  addr: 127.0.0.1:8080
`

// BaseDir returns ~/.hours.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".hours"), nil
}

// DefaultPath returns ~/.hours/config.yaml.
func DefaultPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the config at path (DefaultPath when empty), creating it with
// annotated defaults on first run.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	var cfg Config
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: write the annotated template so users can discover options.
		if writeErr := writeDefault(path); writeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("reading environment: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			base, err := BaseDir()
			if err != nil {
				return err
			}
			c.Store.SQLitePath = filepath.Join(base, "hours.db")
		}
	case DriverFirebase:
		if c.Firebase.DatabaseURL == "" || c.Firebase.APIKey == "" {
			return errors.New("firebase driver needs firebase.database_url and firebase.api_key")
		}
	default:
		return fmt.Errorf("unknown store driver %q (use %s or %s)", c.Store.Driver, DriverSQLite, DriverFirebase)
	}

	c.loc = time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		c.loc = loc
	}

	if c.Backdate.MinDate != "" {
		d, err := timecalc.ParseDate(c.Backdate.MinDate, c.loc)
		if err != nil {
			return fmt.Errorf("invalid backdate.min_date: %w", err)
		}
		c.minDate = d
	}
	return nil
}

// Location returns the zone report dates are interpreted in.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// BackdatePolicy returns the backdating policy for the rules engine.
func (c *Config) BackdatePolicy() rules.Backdate {
	return rules.Backdate{Enabled: c.Backdate.Enabled, MinDate: c.minDate}
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
