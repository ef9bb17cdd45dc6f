package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/scrollkeeper/internal/flagx"
)

var (
	valueFlags = []string{"-c", "-config", "-backend", "-dsn", "-badger-path", "-location", "-log-level", "-s3-bucket", "-s3-region", "-s3-endpoint", "-metrics-textfile"}
	boolFlags  = []string{"-allow-reset"}
)

// parseFlags overlays cfg with configuration flags found anywhere in args
// and returns the remaining arguments.
//
// Supported flags:
//
//	-backend string           storage backend (sqlite, postgres, badger)
//	-dsn string               database DSN
//	-badger-path string       Badger directory
//	-location string          IANA time zone for periods
//	-log-level string         debug, info, warn or error
//	-allow-reset              enable the reset command
//	-s3-bucket string         bucket mirroring encrypted backups
//	-s3-region string         bucket region
//	-s3-endpoint string       S3-compatible endpoint (MinIO)
//	-metrics-textfile string  write metrics to this file
//
// -c/-config are consumed here as well; parseJson reads them.
func parseFlags(cfg *Config, args []string) ([]string, error) {
	matched, rest := flagx.SplitArgs(args, valueFlags, boolFlags)

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var jsonPath string
	fs.StringVar(&jsonPath, "c", "", "path to config file")
	fs.StringVar(&jsonPath, "config", "", "path to config file")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.BadgerPath, "badger-path", cfg.BadgerPath, "badger directory")
	fs.StringVar(&cfg.Location, "location", cfg.Location, "time zone for periods")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.AllowReset, "allow-reset", cfg.AllowReset, "enable reset")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "backup mirror bucket")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "backup mirror region")
	fs.StringVar(&cfg.S3BaseEndpoint, "s3-endpoint", cfg.S3BaseEndpoint, "backup mirror endpoint")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "metrics output file")

	if err := fs.Parse(matched); err != nil {
		return nil, err
	}
	return rest, nil
}
