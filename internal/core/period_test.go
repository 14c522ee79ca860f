package core

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthPeriod(t *testing.T) {
	cases := []struct {
		name       string
		year       int
		month      time.Month
		billingDay int
		start, end time.Time
	}{
		{"calendar month", 2025, time.January, 1, day(2025, 1, 1), day(2025, 2, 1)},
		{"mid month cycle", 2025, time.March, 15, day(2025, 3, 15), day(2025, 4, 15)},
		{"clamped into february", 2025, time.January, 31, day(2025, 1, 31), day(2025, 2, 28)},
		{"leap year", 2024, time.February, 30, day(2024, 2, 29), day(2024, 3, 30)},
		{"year boundary", 2024, time.December, 1, day(2024, 12, 1), day(2025, 1, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := MonthPeriod(tc.year, tc.month, tc.billingDay)
			if !p.Start.Equal(tc.start) || !p.End.Equal(tc.end) {
				t.Fatalf("got %s, want %s..%s", p, tc.start.Format(DateLayout), tc.end.Format(DateLayout))
			}
			if err := p.Validate(); err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestClosedPeriod(t *testing.T) {
	cases := []struct {
		name       string
		now        time.Time
		billingDay int
		wantKey    string
	}{
		{"first of month", time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC), 1, "2025-02-01"},
		{"on the billing day", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 1, "2025-02-01"},
		{"before the billing day", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 20, "2025-01-20"},
		{"after the billing day", time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC), 20, "2025-02-20"},
		{"january", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), 1, "2024-12-01"},
		{"end of month billing", time.Date(2025, 3, 31, 8, 0, 0, 0, time.UTC), 31, "2025-02-28"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ClosedPeriod(tc.now, tc.billingDay)
			if p.Key() != tc.wantKey {
				t.Fatalf("got %s, want start %s", p, tc.wantKey)
			}
			if p.End.After(tc.now) {
				t.Fatalf("closed period %s ends after %s", p, tc.now)
			}
		})
	}
}

func TestParseMonthPeriod(t *testing.T) {
	p, err := ParseMonthPeriod("2025-04", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.String() != "2025-04-01..2025-05-01" {
		t.Fatalf("got %s", p)
	}
	if _, err := ParseMonthPeriod("April", 1); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestPeriodContains(t *testing.T) {
	p := MonthPeriod(2025, time.February, 1)
	cases := []struct {
		d    Date
		want bool
	}{
		{NewDate(2025, 1, 31), false},
		{NewDate(2025, 2, 1), true},
		{NewDate(2025, 2, 28), true},
		{NewDate(2025, 3, 1), false}, // end is exclusive
	}
	for _, tc := range cases {
		if got := p.Contains(tc.d); got != tc.want {
			t.Errorf("Contains(%s) = %v, want %v", tc.d, got, tc.want)
		}
	}
	if err := (Period{Start: day(2025, 2, 1), End: day(2025, 2, 1)}).Validate(); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("empty window should be invalid, got %v", err)
	}
}

func TestPeriodOfAndNext(t *testing.T) {
	cases := []struct {
		name       string
		at         time.Time
		billingDay int
		wantKey    string
		nextKey    string
	}{
		{"calendar month", time.Date(2025, 2, 20, 15, 0, 0, 0, time.UTC), 1, "2025-02-01", "2025-03-01"},
		{"before the billing day", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), 15, "2025-02-15", "2025-03-15"},
		{"on the billing day", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 15, "2025-03-15", "2025-04-15"},
		{"december rolls into january", time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC), 1, "2024-12-01", "2025-01-01"},
		{"clamped end of month", time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), 31, "2025-02-28", "2025-03-31"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := PeriodOf(tc.at, tc.billingDay)
			if p.Key() != tc.wantKey {
				t.Fatalf("PeriodOf = %s, want start %s", p, tc.wantKey)
			}
			if !p.Contains(DateOf(tc.at)) {
				t.Fatalf("%s does not contain %s", p, tc.at)
			}
			next := p.Next(tc.billingDay)
			if next.Key() != tc.nextKey || !next.Start.Equal(p.End) {
				t.Fatalf("Next = %s, want start %s adjoining %s", next, tc.nextKey, p)
			}
		})
	}
}
