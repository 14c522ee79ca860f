package core

import (
	"errors"
	"testing"
	"time"
)

func TestRolloverTransitionTable(t *testing.T) {
	closed := MonthPeriod(2025, time.February, 1)
	at := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	fee := Cents(1000)

	cases := []struct {
		name          string
		balance       int64
		wantBalance   int64
		wantStatus    Status
		wantTotalPaid int64
		wantTr        Transition
	}{
		{"A settled", 0, 1000, StatusPending, 0, TransitionSettled},
		{"B carry over", 500, 1500, StatusPending, 0, TransitionCarryOver},
		{"C credit absorbs fee", -1200, -200, StatusExcess, 1000, TransitionCreditAbsorbs},
		{"D credit partial", -600, 400, StatusPending, 0, TransitionCreditPartial},
		{"exact credit", -1000, 0, StatusPaid, 1000, TransitionCreditAbsorbs},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Balance{
				StudentID:       "s1",
				Current:         Cents(tc.balance),
				TotalPaid:       Cents(700),
				LastPaymentDate: NewDate(2025, 2, 20),
				Version:         3,
			}
			got, tr, err := b.Rollover(fee, closed, DefaultRolloverPolicy(), at)
			if err != nil {
				t.Fatalf("rollover: %v", err)
			}
			if tr != tc.wantTr {
				t.Fatalf("transition = %s, want %s", tr, tc.wantTr)
			}
			if got.Current.Cents != tc.wantBalance {
				t.Fatalf("balance = %d, want %d", got.Current.Cents, tc.wantBalance)
			}
			if got.View().Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", got.View().Status, tc.wantStatus)
			}
			if got.TotalPaid.Cents != tc.wantTotalPaid {
				t.Fatalf("total paid = %d, want %d", got.TotalPaid.Cents, tc.wantTotalPaid)
			}
			if got.TotalFees != fee || got.LastReconciledPeriod != closed.Key() || got.ReconciledUntil.String() != "2025-03-01" {
				t.Fatalf("rollover did not stamp fee and period: %+v", got)
			}
			if got.Version != b.Version {
				t.Fatalf("rollover must leave versioning to the store, got %d", got.Version)
			}
		})
	}
}

func TestRolloverLastPaymentDate(t *testing.T) {
	closed := MonthPeriod(2025, time.February, 1)
	at := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	last := NewDate(2025, 2, 20)

	owing := Balance{Current: Cents(200), LastPaymentDate: last}
	got, _, _ := owing.Rollover(Cents(1000), closed, DefaultRolloverPolicy(), at)
	if !got.LastPaymentDate.IsEmpty() {
		t.Fatalf("expected cleared date, got %s", got.LastPaymentDate)
	}

	credit := Balance{Current: Cents(-1500), LastPaymentDate: last}
	got, _, _ = credit.Rollover(Cents(1000), closed, DefaultRolloverPolicy(), at)
	if got.LastPaymentDate.String() != "2025-03-01" {
		t.Fatalf("absorbed fee should count as paid on the reconciliation day, got %s", got.LastPaymentDate)
	}

	got, _, _ = credit.Rollover(Cents(1000), closed, RolloverPolicy{RecordAbsorbedFee: false}, at)
	if !got.LastPaymentDate.IsEmpty() || got.TotalPaid.Cents != 0 {
		t.Fatalf("policy off should leave nothing recorded, got %+v", got)
	}
	if got.Current.Cents != -500 {
		t.Fatalf("policy must not change the balance, got %d", got.Current.Cents)
	}
}

func TestRolloverBalanceAlwaysAddsFee(t *testing.T) {
	closed := MonthPeriod(2025, time.February, 1)
	for _, start := range []int64{-5000, -1001, -1000, -999, -1, 0, 1, 1000, 7777} {
		for _, fee := range []int64{0, 1, 1000, 4999} {
			b := Balance{Current: Cents(start)}
			got, _, _ := b.Rollover(Cents(fee), closed, DefaultRolloverPolicy(), testNow)
			if got.Current.Cents != start+fee {
				t.Fatalf("start %d fee %d: got %d", start, fee, got.Current.Cents)
			}
		}
	}
}

func TestRolloverRequiresNextCycle(t *testing.T) {
	jan := MonthPeriod(2025, time.January, 1)
	feb := MonthPeriod(2025, time.February, 1)
	mar := MonthPeriod(2025, time.March, 1)
	at := time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)

	b, _, err := Balance{Current: Cents(0)}.Rollover(Cents(1000), jan, DefaultRolloverPolicy(), at)
	if err != nil {
		t.Fatalf("first rollover: %v", err)
	}
	if _, _, err := b.Rollover(Cents(1000), mar, DefaultRolloverPolicy(), at); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("skipping february: err = %v, want ErrInvalidPeriod", err)
	}
	if _, _, err := b.Rollover(Cents(1000), jan, DefaultRolloverPolicy(), at); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("repeating january: err = %v, want ErrInvalidPeriod", err)
	}
	b, _, err = b.Rollover(Cents(1000), feb, DefaultRolloverPolicy(), at)
	if err != nil {
		t.Fatalf("february after january: %v", err)
	}
	if b.Current.Cents != 2000 || b.ReconciledUntil.String() != "2025-03-01" {
		t.Fatalf("unexpected balance %+v", b)
	}
}
