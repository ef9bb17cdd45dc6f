// Package policy holds every tunable threshold and risk weight of the
// anti-tampering core in one place.
package policy

import "time"

// Policy groups the clock, period, behavior and orchestration thresholds.
// JSON tags allow overriding any field from the config file.
type Policy struct {
	// DriftTolerance absorbs NTP corrections and similar jitter.
	DriftTolerance time.Duration `json:"drift_tolerance" validate:"gt=0"`
	// DriftWarning raises an informational warning on valid attempts.
	DriftWarning time.Duration `json:"drift_warning" validate:"gte=0"`
	// DriftRiskPerSecond is applied to the drift of invalid attempts.
	DriftRiskPerSecond int `json:"drift_risk_per_second" validate:"gte=0"`
	// ValidDriftDivisor converts drift (ms) of valid attempts into risk.
	ValidDriftDivisor int64 `json:"valid_drift_divisor" validate:"gt=0"`
	// ValidDriftRiskCap caps the risk of valid attempts.
	ValidDriftRiskCap int `json:"valid_drift_risk_cap" validate:"gte=0,lte=100"`
	// RegressionRisk is the risk of a wall clock set behind the anchor.
	RegressionRisk int `json:"regression_risk" validate:"gte=0,lte=100"`
	// MonotonicResetRisk applies when the monotonic source restarted since the anchor.
	MonotonicResetRisk int `json:"monotonic_reset_risk" validate:"gte=0,lte=100"`
	// TamperedAnchorRisk applies when the stored anchor fails its MAC.
	TamperedAnchorRisk int `json:"tampered_anchor_risk" validate:"gte=0,lte=100"`

	// PeriodViolationRisk is added to clock risk when period rules fail.
	PeriodViolationRisk int `json:"period_violation_risk" validate:"gte=0,lte=100"`
	// RiskCeiling: an attempt is refused once overall risk reaches it.
	RiskCeiling int `json:"risk_ceiling" validate:"gt=0,lte=100"`

	// MinReadingGap is the shortest plausible time between two readings.
	MinReadingGap time.Duration `json:"min_reading_gap" validate:"gte=0"`
	TooFastRisk   int           `json:"too_fast_risk" validate:"gte=0,lte=100"`
	RegressedRisk int           `json:"regressed_risk" validate:"gte=0,lte=100"`
	// MaxReadingsPerDay is the count of same-day readings that flags batching.
	MaxReadingsPerDay int `json:"max_readings_per_day" validate:"gt=0"`
	BatchingRisk      int `json:"batching_risk" validate:"gte=0,lte=100"`
	// ActiveHourStart/ActiveHourEnd bound organic reading hours [start, end).
	ActiveHourStart int `json:"active_hour_start" validate:"gte=0,lte=23,ltfield=ActiveHourEnd"`
	ActiveHourEnd   int `json:"active_hour_end" validate:"gte=1,lte=24"`
	OddHourRisk     int `json:"odd_hour_risk" validate:"gte=0,lte=100"`
	RoundTimeRisk   int `json:"round_time_risk" validate:"gte=0,lte=100"`

	// SuspiciousRisk marks a record suspicious when behavior risk exceeds it.
	SuspiciousRisk int `json:"suspicious_risk" validate:"gte=0,lte=100"`
	// HighRiskWarning and LowTrustWarning trigger user-facing warnings.
	HighRiskWarning int `json:"high_risk_warning" validate:"gte=0,lte=100"`
	LowTrustWarning int `json:"low_trust_warning" validate:"gte=0,lte=100"`
	// RecentWindow is how many recent records feed the behavior check.
	RecentWindow int `json:"recent_window" validate:"gt=0"`
	// BackupRetention is how many encrypted backups are kept.
	BackupRetention int `json:"backup_retention" validate:"gt=0"`
}

// Default returns the production thresholds.
func Default() Policy {
	return Policy{
		DriftTolerance:      60 * time.Second,
		DriftWarning:        30 * time.Second,
		DriftRiskPerSecond:  2,
		ValidDriftDivisor:   3000,
		ValidDriftRiskCap:   20,
		RegressionRisk:      90,
		MonotonicResetRisk:  10,
		TamperedAnchorRisk:  100,
		PeriodViolationRisk: 30,
		RiskCeiling:         50,
		MinReadingGap:       30 * time.Second,
		TooFastRisk:         50,
		RegressedRisk:       80,
		MaxReadingsPerDay:   3,
		BatchingRisk:        30,
		ActiveHourStart:     5,
		ActiveHourEnd:       23,
		OddHourRisk:         20,
		RoundTimeRisk:       25,
		SuspiciousRisk:      30,
		HighRiskWarning:     50,
		LowTrustWarning:     70,
		RecentWindow:        10,
		BackupRetention:     50,
	}
}

// Cap clamps risk into [0, 100].
func Cap(risk int) int {
	if risk < 0 {
		return 0
	}
	if risk > 100 {
		return 100
	}
	return risk
}
