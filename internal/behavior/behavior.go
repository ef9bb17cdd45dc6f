// Package behavior scores the timing pattern of reading attempts and the
// aggregate trust of a reading history.
package behavior

import (
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/policy"
)

type Validator struct {
	policy policy.Policy
}

func NewValidator(p policy.Policy) *Validator {
	return &Validator{policy: p}
}

// ValidateReadingPattern checks newTs against recent, which must be ordered
// oldest first. Day boundaries and hours are evaluated in newTs's location.
func (v *Validator) ValidateReadingPattern(newTs time.Time, recent []models.ReadingRecord) models.PatternCheck {
	p := v.policy
	issues := []string{}
	risk := 0

	if len(recent) > 0 {
		prev := time.UnixMilli(recent[len(recent)-1].Timestamp)
		gap := newTs.Sub(prev)
		if gap < p.MinReadingGap {
			issues = append(issues, fmt.Sprintf("reading confirmed %s after the previous one", gap.Round(time.Second)))
			risk += p.TooFastRisk
		}
		if gap < 0 {
			issues = append(issues, "timestamp is earlier than the previous reading")
			risk += p.RegressedRisk
		}
	}

	today := newTs.Format(models.DayKeyLayout)
	sameDay := 0
	for _, r := range recent {
		if time.UnixMilli(r.Timestamp).In(newTs.Location()).Format(models.DayKeyLayout) == today {
			sameDay++
		}
	}
	if sameDay >= p.MaxReadingsPerDay {
		issues = append(issues, fmt.Sprintf("%d readings already logged today", sameDay))
		risk += p.BatchingRisk
	}

	if h := newTs.Hour(); h < p.ActiveHourStart || h >= p.ActiveHourEnd {
		issues = append(issues, fmt.Sprintf("reading at unusual hour %02d:00", h))
		risk += p.OddHourRisk
	}

	if newTs.Second() == 0 && newTs.Nanosecond()/int(time.Millisecond) == 0 {
		issues = append(issues, "timestamp falls exactly on a minute boundary")
		risk += p.RoundTimeRisk
	}

	return models.PatternCheck{
		IsValid:   len(issues) == 0,
		Issues:    issues,
		RiskScore: policy.Cap(risk),
	}
}

// CalculateTrustScore returns 100 minus the percentage of suspicious
// records. It is 100 only when no record is suspicious, including an empty
// history, and is not rounded so that every additional suspicious record
// lowers it.
func CalculateTrustScore(records []models.ReadingRecord) float64 {
	if len(records) == 0 {
		return 100
	}
	suspicious := 0
	for _, r := range records {
		if r.Suspicious {
			suspicious++
		}
	}
	score := 100 - 100*float64(suspicious)/float64(len(records))
	return math.Min(100, math.Max(0, score))
}
