// Package models defines the records the anti-tampering core signs,
// chains and persists, and the results its validators return.
package models

import (
	"fmt"
	"time"
)

// Period is one of the three daily reading slots.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// Periods lists the slots in the order they must be confirmed within a day.
var Periods = []Period{PeriodMorning, PeriodAfternoon, PeriodEvening}

// DayKeyLayout is the layout of reading-day keys ("2025-01-01").
const DayKeyLayout = "2006-01-02"

// Order returns the position of p within a day, or -1 for unknown values.
func (p Period) Order() int {
	switch p {
	case PeriodMorning:
		return 0
	case PeriodAfternoon:
		return 1
	case PeriodEvening:
		return 2
	default:
		return -1
	}
}

func (p Period) Valid() bool { return p.Order() >= 0 }

// ParsePeriod converts a string into a Period.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

// PeriodForHour maps a wall-clock hour to its slot:
// morning 04:00–11:59, afternoon 12:00–18:59, evening 19:00–03:59.
func PeriodForHour(hour int) Period {
	switch {
	case hour >= 4 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 19:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// InWindow reports whether hour falls inside the nominal window of p.
func (p Period) InWindow(hour int) bool {
	switch p {
	case PeriodMorning:
		return hour >= 4 && hour < 12
	case PeriodAfternoon:
		return hour >= 12 && hour < 19
	case PeriodEvening:
		return hour >= 19 || (hour >= 0 && hour < 4)
	default:
		return false
	}
}

// ReadingDay returns the day key t counts towards. Hours before 04:00 belong
// to the previous day's evening.
func ReadingDay(t time.Time) string {
	if t.Hour() < 4 {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format(DayKeyLayout)
}

// Bucket returns the reading day and period of t.
func Bucket(t time.Time) (string, Period) {
	return ReadingDay(t), PeriodForHour(t.Hour())
}
