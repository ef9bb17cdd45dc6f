package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/scrollkeeper/internal/flagx"
	"github.com/dmitrijs2005/scrollkeeper/internal/policy"
	"github.com/dmitrijs2005/scrollkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// use timex.Duration so they can be written as "30s" or as nanoseconds.
// Absent fields leave the current value untouched.
type JsonConfig struct {
	Backend         *string         `json:"backend"`
	DatabaseDSN     *string         `json:"database_dsn"`
	BadgerPath      *string         `json:"badger_path"`
	SecretKey       *string         `json:"secret_key"`
	Location        *string         `json:"location"`
	AllowReset      *bool           `json:"allow_reset"`
	LogLevel        *string         `json:"log_level"`
	S3Bucket        *string         `json:"s3_bucket"`
	S3Region        *string         `json:"s3_region"`
	S3BaseEndpoint  *string         `json:"s3_base_endpoint"`
	S3AccessKey     *string         `json:"s3_access_key"`
	S3SecretKey     *string         `json:"s3_secret_key"`
	AttestationTTL  *timex.Duration `json:"attestation_ttl"`
	MetricsTextfile *string         `json:"metrics_textfile"`
	Policy          json.RawMessage `json:"policy"`
}

// jsonPolicy overlays a policy.Policy. The outer duration fields shadow the
// embedded ones of the same JSON name.
type jsonPolicy struct {
	policy.Policy
	DriftTolerance *timex.Duration `json:"drift_tolerance"`
	DriftWarning   *timex.Duration `json:"drift_warning"`
	MinReadingGap  *timex.Duration `json:"min_reading_gap"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// Without the flag nothing is loaded.
func parseJson(cfg *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.Backend, jc.Backend)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.BadgerPath, jc.BadgerPath)
	setString(&cfg.SecretKey, jc.SecretKey)
	setString(&cfg.Location, jc.Location)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.MetricsTextfile, jc.MetricsTextfile)
	if jc.AllowReset != nil {
		cfg.AllowReset = *jc.AllowReset
	}
	if jc.AttestationTTL != nil {
		cfg.AttestationTTL = jc.AttestationTTL.Duration
	}

	if len(jc.Policy) > 0 {
		jp := jsonPolicy{Policy: cfg.Policy}
		if err := json.Unmarshal(jc.Policy, &jp); err != nil {
			return fmt.Errorf("parse policy in %s: %w", path, err)
		}
		if jp.DriftTolerance != nil {
			jp.Policy.DriftTolerance = jp.DriftTolerance.Duration
		}
		if jp.DriftWarning != nil {
			jp.Policy.DriftWarning = jp.DriftWarning.Duration
		}
		if jp.MinReadingGap != nil {
			jp.Policy.MinReadingGap = jp.MinReadingGap.Duration
		}
		cfg.Policy = jp.Policy
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
