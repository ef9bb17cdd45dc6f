package models

// ClockCheck is the outcome of comparing wall-clock and monotonic elapsed time.
type ClockCheck struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason"`
	// ClockDrift is in milliseconds; nil when no anchor could be compared.
	ClockDrift *int64   `json:"clockDrift,omitempty"`
	RiskScore  int      `json:"riskScore"`
	Warnings   []string `json:"warnings"`
}

// PeriodCheck is the outcome of the period/day progression rules.
type PeriodCheck struct {
	IsValid       bool   `json:"isValid"`
	Reason        string `json:"reason"`
	CurrentPeriod Period `json:"currentPeriod"`
	CanRead       bool   `json:"canRead"`
}

// Verdict combines clock and period checks; it is what "can I read?" returns.
type Verdict struct {
	CanRead   bool         `json:"canRead"`
	Reason    string       `json:"reason"`
	RiskScore int          `json:"riskScore"`
	Warnings  []string     `json:"warnings"`
	Clock     ClockCheck   `json:"clock"`
	Period    *PeriodCheck `json:"period,omitempty"`
}

// PatternCheck is the behavioral risk assessment of one reading attempt.
type PatternCheck struct {
	IsValid   bool     `json:"isValid"`
	Issues    []string `json:"issues"`
	RiskScore int      `json:"riskScore"`
}

// RecordResult is returned by the reading orchestrator.
type RecordResult struct {
	Success    bool           `json:"success"`
	Reason     string         `json:"reason,omitempty"`
	Record     *ReadingRecord `json:"record,omitempty"`
	Validation PatternCheck   `json:"validation"`
	TrustScore float64        `json:"trustScore"`
	Warnings   []string       `json:"warnings"`
}

// IntegrityReport is the per-scroll audit result.
type IntegrityReport struct {
	ScrollID         int      `json:"scrollId"`
	IsValid          bool     `json:"isValid"`
	TotalRecords     int      `json:"totalRecords"`
	CorruptedRecords int      `json:"corruptedRecords"`
	DeviceMismatches int      `json:"deviceMismatches"`
	ChainIntact      bool     `json:"chainIntact"`
	Issues           []string `json:"issues"`
}

// SecurityStats aggregates all records for dashboards.
type SecurityStats struct {
	TotalReadings      int     `json:"totalReadings"`
	SuspiciousReadings int     `json:"suspiciousReadings"`
	AverageTrustScore  float64 `json:"averageTrustScore"`
	DeviceChanges      int     `json:"deviceChanges"`
	ChainIntegrity     bool    `json:"chainIntegrity"`
}
