// Package config handles configuration for the scrollkeeper binary:
// defaults, JSON overlay, environment, command-line flags and validation.
package config

import (
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/dmitrijs2005/scrollkeeper/internal/policy"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// SecretEnv names the environment variable holding the shared secret.
const SecretEnv = "SCROLLKEEPER_SECRET"

// Config holds runtime settings.
//
// Fields:
//   - Backend: sqlite, postgres or badger.
//   - DatabaseDSN: SQLite file/DSN or PostgreSQL DSN (pgx).
//   - BadgerPath: directory of the Badger store.
//   - SecretKey: shared secret the MAC, encryption and token keys derive from.
//     Empty means "prompt for it".
//   - Location: IANA zone in which periods and days are computed.
//   - AllowReset: enables the reset command (development only).
//   - S3*: optional bucket mirroring encrypted backups; empty bucket disables it.
//   - AttestationTTL: lifetime of attestation tokens.
//   - MetricsTextfile: where to write metrics after each command; empty disables.
type Config struct {
	Backend     string `validate:"oneof=sqlite postgres badger"`
	DatabaseDSN string `validate:"required_unless=Backend badger"`
	BadgerPath  string `validate:"required_if=Backend badger"`
	SecretKey   string
	Location    string `validate:"omitempty,timezone"`
	AllowReset  bool
	LogLevel    string `validate:"oneof=debug info warn error"`

	S3Bucket       string
	S3Region       string `validate:"required_with=S3Bucket"`
	S3BaseEndpoint string `validate:"omitempty,url"`
	S3AccessKey    string
	S3SecretKey    string `validate:"required_with=S3AccessKey"`

	AttestationTTL  time.Duration `validate:"gt=0"`
	MetricsTextfile string

	Policy policy.Policy
}

// LoadDefaults populates c with defaults suitable for a single local user.
func (c *Config) LoadDefaults() {
	dir := defaultDataDir()
	c.Backend = BackendSQLite
	c.DatabaseDSN = filepath.Join(dir, "scrollkeeper.db")
	c.BadgerPath = filepath.Join(dir, "badger")
	c.Location = "Local"
	c.LogLevel = "warn"
	c.S3Region = "us-east-1"
	c.AttestationTTL = 24 * time.Hour
	c.Policy = policy.Default()
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scrollkeeper")
	}
	return "."
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line
// flags. It returns the arguments that are not configuration flags.
func LoadConfig(args []string) (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, nil, err
	}
	parseEnv(cfg)
	rest, err := parseFlags(cfg, args)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}

func parseEnv(cfg *Config) {
	if v, ok := os.LookupEnv(SecretEnv); ok {
		cfg.SecretKey = v
	}
}

// TimeLocation resolves Location.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Location == "" || c.Location == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location)
}
