package core

import (
	"fmt"
	"strings"
	"time"
)

// Period is a billing window [Start, End) in UTC calendar days.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the cycle that starts on billingDay of the given month
// and ends on billingDay of the following month. Days past the end of a short
// month are clamped to its last day.
func MonthPeriod(year int, month time.Month, billingDay int) Period {
	return Period{
		Start: cycleStart(year, month, billingDay),
		End:   cycleStart(year, month+1, billingDay),
	}
}

// ParseMonthPeriod parses "YYYY-MM" into the cycle starting in that month.
func ParseMonthPeriod(s string, billingDay int) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidPeriod, s)
	}
	return MonthPeriod(t.Year(), t.Month(), billingDay), nil
}

// PeriodOf returns the cycle that contains t.
func PeriodOf(t time.Time, billingDay int) Period {
	t = t.UTC()
	year, month := t.Year(), t.Month()
	if t.Before(cycleStart(year, month, billingDay)) {
		month--
	}
	return MonthPeriod(year, month, billingDay)
}

// ClosedPeriod returns the most recent cycle that has fully ended at now.
func ClosedPeriod(now time.Time, billingDay int) Period {
	open := PeriodOf(now, billingDay)
	return MonthPeriod(open.Start.Year(), open.Start.Month()-1, billingDay)
}

// Next returns the cycle starting where p ends.
func (p Period) Next(billingDay int) Period {
	return MonthPeriod(p.Start.Year(), p.Start.Month()+1, billingDay)
}

func cycleStart(year int, month time.Month, billingDay int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := billingDay
	if day < 1 {
		day = 1
	}
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || !p.End.After(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether the calendar day d falls inside the window.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// Key identifies the period by its start day; keys order chronologically.
func (p Period) Key() string {
	return p.Start.Format(DateLayout)
}

func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}
