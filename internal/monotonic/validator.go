// Package monotonic detects wall-clock manipulation by comparing elapsed
// wall-clock time with elapsed monotonic time since the last time anchor,
// and enforces the period/day progression rules.
package monotonic

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scrollkeeper/internal/cryptox"
	"github.com/dmitrijs2005/scrollkeeper/internal/logging"
	"github.com/dmitrijs2005/scrollkeeper/internal/metrics"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/policy"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
	"github.com/dmitrijs2005/scrollkeeper/internal/timex"
)

const (
	ReasonFirstReading   = "first reading, nothing to compare against"
	ReasonClockOK        = "clock consistent with last reading"
	ReasonManipulation   = "clock manipulation detected"
	ReasonRegression     = "timestamp regression detected"
	ReasonTamperedAnchor = "time anchor integrity check failed"
	ReasonMonotonicReset = "monotonic clock restarted since last reading"

	ReasonAllowed       = "reading allowed"
	ReasonSamePeriod    = "already read this period today"
	ReasonPeriodOrder   = "periods must be read in order: morning, afternoon, evening"
	ReasonDayRegression = "reading day is earlier than the last recorded day"
	ReasonOutsideWindow = "current time is outside the period window"
	ReasonRiskCeiling   = "cumulative risk too high"
)

// Validator implements the clock and period checks against the anchor kept
// in a store.
type Validator struct {
	store   store.Store
	key     []byte
	clock   timex.Clock
	loc     *time.Location
	policy  policy.Policy
	log     logging.Logger
	metrics *metrics.Metrics
}

type Option func(*Validator)

// WithLocation sets the zone in which periods and days are computed.
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) { v.loc = loc }
}

func WithPolicy(p policy.Policy) Option {
	return func(v *Validator) { v.policy = p }
}

func WithLogger(l logging.Logger) Option {
	return func(v *Validator) { v.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator binds a validator to s. key signs and verifies anchors.
func NewValidator(s store.Store, key []byte, clock timex.Clock, opts ...Option) *Validator {
	v := &Validator{
		store:  s,
		key:    key,
		clock:  clock,
		loc:    time.Local,
		policy: policy.Default(),
		log:    logging.Nop(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// anchorState is the loaded anchor and whether its MAC verified.
type anchorState struct {
	anchor   *models.TimeAnchor
	tampered bool
}

func (v *Validator) loadAnchor(ctx context.Context, sec *securestore.SecureStore) (anchorState, error) {
	a, err := sec.Anchor(ctx)
	if err != nil {
		return anchorState{}, fmt.Errorf("failed to load time anchor: %w", err)
	}
	if a == nil {
		return anchorState{}, nil
	}
	return anchorState{
		anchor:   a,
		tampered: !cryptox.Verify(v.key, a.Hash, a.SignedFields()...),
	}, nil
}

// ValidateReadingAttempt compares wall-clock and monotonic elapsed time
// since the anchor.
func (v *Validator) ValidateReadingAttempt(ctx context.Context, scrollID int) (models.ClockCheck, error) {
	st, err := v.loadAnchor(ctx, securestore.New(v.store.Metadata()))
	if err != nil {
		return models.ClockCheck{}, err
	}
	return v.checkClock(st), nil
}

func (v *Validator) checkClock(st anchorState) models.ClockCheck {
	p := v.policy
	if st.anchor == nil {
		return models.ClockCheck{IsValid: true, Reason: ReasonFirstReading, Warnings: []string{}}
	}
	if st.tampered {
		return models.ClockCheck{
			Reason:    ReasonTamperedAnchor,
			RiskScore: p.TamperedAnchorRisk,
			Warnings:  []string{"stored time reference was modified outside the app"},
		}
	}

	a := st.anchor
	wallNow := v.clock.Now().UnixMilli()
	monoNow := v.clock.Monotonic().Milliseconds()
	tolerance := p.DriftTolerance.Milliseconds()

	// Regression takes precedence over drift.
	if wallNow < a.SystemTimeAtAnchor-tolerance {
		return models.ClockCheck{
			Reason:    ReasonRegression,
			RiskScore: p.RegressionRisk,
			Warnings:  []string{"system clock is earlier than your last reading"},
		}
	}

	// After a reboot only the wall clock is left; report how far it moved.
	if monoNow < a.MonotonicTimeAtAnchor {
		advanced := time.Duration(wallNow-a.SystemTimeAtAnchor) * time.Millisecond
		return models.ClockCheck{
			IsValid:   true,
			Reason:    ReasonMonotonicReset,
			RiskScore: p.MonotonicResetRisk,
			Warnings: []string{
				fmt.Sprintf("device restarted since the last reading; clock drift could not be measured, wall clock advanced %s since then", advanced),
			},
		}
	}

	realElapsed := monoNow - a.MonotonicTimeAtAnchor
	expected := a.SystemTimeAtAnchor + realElapsed
	drift := wallNow - expected
	if drift < 0 {
		drift = -drift
	}
	v.metrics.ObserveDrift(drift)

	if drift > tolerance {
		return models.ClockCheck{
			Reason:     ReasonManipulation,
			ClockDrift: &drift,
			RiskScore:  policy.Cap(int(drift/1000) * p.DriftRiskPerSecond),
			Warnings: []string{
				fmt.Sprintf("system clock is off by %s; wait for real time to pass", time.Duration(drift)*time.Millisecond),
			},
		}
	}

	risk := int(drift / p.ValidDriftDivisor)
	if risk > p.ValidDriftRiskCap {
		risk = p.ValidDriftRiskCap
	}
	warnings := []string{}
	if drift > p.DriftWarning.Milliseconds() {
		warnings = append(warnings, fmt.Sprintf("minor clock drift of %s", time.Duration(drift)*time.Millisecond))
	}
	return models.ClockCheck{
		IsValid:    true,
		Reason:     ReasonClockOK,
		ClockDrift: &drift,
		RiskScore:  risk,
		Warnings:   warnings,
	}
}

// ValidatePeriodRules enforces forward period order within a day and
// completion of a day before the next one starts.
func (v *Validator) ValidatePeriodRules(ctx context.Context, scrollID int) (models.PeriodCheck, error) {
	sec := securestore.New(v.store.Metadata())
	st, err := v.loadAnchor(ctx, sec)
	if err != nil {
		return models.PeriodCheck{}, err
	}
	return v.checkPeriod(ctx, sec, st)
}

func (v *Validator) checkPeriod(ctx context.Context, sec *securestore.SecureStore, st anchorState) (models.PeriodCheck, error) {
	now := v.clock.Now().In(v.loc)
	day, current := models.Bucket(now)

	reject := func(reason string) (models.PeriodCheck, error) {
		return models.PeriodCheck{Reason: reason, CurrentPeriod: current}, nil
	}

	if !current.InWindow(now.Hour()) {
		return reject(ReasonOutsideWindow)
	}
	if st.anchor == nil {
		return models.PeriodCheck{IsValid: true, Reason: ReasonFirstReading, CurrentPeriod: current, CanRead: true}, nil
	}
	if st.tampered {
		return reject(ReasonTamperedAnchor)
	}

	a := st.anchor
	switch {
	case day < a.DayOfAnchor:
		return reject(ReasonDayRegression)
	case day == a.DayOfAnchor:
		if current == a.PeriodOfAnchor {
			return reject(ReasonSamePeriod)
		}
		if current.Order() <= a.PeriodOfAnchor.Order() {
			return reject(ReasonPeriodOrder)
		}
	default:
		done, err := sec.DayPeriods(ctx, a.DayOfAnchor)
		if err != nil {
			return models.PeriodCheck{}, fmt.Errorf("failed to load day ledger: %w", err)
		}
		if len(done) < len(models.Periods) {
			return reject(fmt.Sprintf("complete all periods of %s before starting a new day (%d/%d done)",
				a.DayOfAnchor, len(done), len(models.Periods)))
		}
	}

	return models.PeriodCheck{IsValid: true, Reason: ReasonAllowed, CurrentPeriod: current, CanRead: true}, nil
}

// ValidateCompleteReading runs the clock check and, if it passes, the period
// rules. Reading is allowed only when both pass and the summed risk stays
// below the ceiling.
func (v *Validator) ValidateCompleteReading(ctx context.Context, scrollID int) (models.Verdict, error) {
	sec := securestore.New(v.store.Metadata())
	st, err := v.loadAnchor(ctx, sec)
	if err != nil {
		return models.Verdict{}, err
	}

	clock := v.checkClock(st)
	if !clock.IsValid {
		outcome := metrics.OutcomeClock
		if st.tampered {
			outcome = metrics.OutcomeTampered
		}
		v.metrics.Attempt(outcome)
		v.log.Info(ctx, "reading attempt rejected", "scroll_id", scrollID, "reason", clock.Reason, "risk", clock.RiskScore)
		return models.Verdict{
			Reason:    clock.Reason,
			RiskScore: clock.RiskScore,
			Warnings:  clock.Warnings,
			Clock:     clock,
		}, nil
	}

	period, err := v.checkPeriod(ctx, sec, st)
	if err != nil {
		return models.Verdict{}, err
	}

	risk := clock.RiskScore
	if !period.IsValid {
		risk += v.policy.PeriodViolationRisk
	}
	risk = policy.Cap(risk)

	verdict := models.Verdict{
		CanRead:   period.IsValid && risk < v.policy.RiskCeiling,
		RiskScore: risk,
		Warnings:  clock.Warnings,
		Clock:     clock,
		Period:    &period,
	}
	outcome := metrics.OutcomeAllowed
	switch {
	case !period.IsValid:
		verdict.Reason = period.Reason
		outcome = metrics.OutcomePeriod
	case !verdict.CanRead:
		verdict.Reason = ReasonRiskCeiling
		outcome = metrics.OutcomeRisk
	default:
		verdict.Reason = ReasonAllowed
	}
	v.metrics.Attempt(outcome)
	if !verdict.CanRead {
		v.log.Info(ctx, "reading attempt rejected", "scroll_id", scrollID, "reason", verdict.Reason, "risk", risk)
	}
	return verdict, nil
}

// CompleteReading advances the anchor to now and records the current
// period in the day ledger.
func (v *Validator) CompleteReading(ctx context.Context, scrollID int) (*models.TimeAnchor, error) {
	var anchor *models.TimeAnchor
	err := v.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		anchor, err = v.CompleteReadingIn(ctx, tx, scrollID)
		return err
	})
	return anchor, err
}

// CompleteReadingIn is CompleteReading within an enclosing transaction.
func (v *Validator) CompleteReadingIn(ctx context.Context, tx store.Store, scrollID int) (*models.TimeAnchor, error) {
	sec := securestore.New(tx.Metadata())
	now := v.clock.Now().In(v.loc)
	day, period := models.Bucket(now)

	a := models.TimeAnchor{
		SystemTimeAtAnchor:    now.UnixMilli(),
		MonotonicTimeAtAnchor: v.clock.Monotonic().Milliseconds(),
		PeriodOfAnchor:        period,
		DayOfAnchor:           day,
		ScrollID:              scrollID,
	}
	a.Hash = cryptox.Sign(v.key, a.SignedFields()...)

	if err := sec.SetAnchor(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save time anchor: %w", err)
	}
	if err := sec.AppendDayPeriod(ctx, day, period); err != nil {
		return nil, fmt.Errorf("failed to update day ledger: %w", err)
	}
	v.log.Debug(ctx, "time anchor advanced", "scroll_id", scrollID, "day", day, "period", period)
	return &a, nil
}
