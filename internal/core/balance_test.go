package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func TestNewBalance(t *testing.T) {
	pending := NewBalance("s1", Cents(1000), false, testNow)
	if pending.Current.Cents != 1000 || pending.TotalPaid.Cents != 0 || pending.View().Status != StatusPending {
		t.Fatalf("unexpected pending balance %+v", pending)
	}
	paid := NewBalance("s1", Cents(1000), true, testNow)
	if paid.Current.Cents != 0 || paid.TotalPaid.Cents != 1000 || paid.View().Status != StatusPaid {
		t.Fatalf("unexpected paid balance %+v", paid)
	}
	if paid.TotalFees.Cents != 1000 {
		t.Fatalf("expected fee snapshot 1000, got %d", paid.TotalFees.Cents)
	}
}

func TestApplyPaymentOnSettledBalanceYieldsExcess(t *testing.T) {
	for _, amount := range []int64{1, 250, 1000, 99999} {
		b := Balance{StudentID: "s1"}
		got, err := b.ApplyPayment(Cents(amount), NewDate(2025, 3, 2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Current.Cents != -amount {
			t.Fatalf("amount %d: expected balance %d, got %d", amount, -amount, got.Current.Cents)
		}
		if v := got.View(); v.Status != StatusExcess || v.Amount.Cents != amount {
			t.Fatalf("amount %d: expected excess %d, got %+v", amount, amount, v)
		}
	}
}

func TestSplitPaymentsSettleFee(t *testing.T) {
	splits := [][]int64{
		{1000},
		{500, 500},
		{1, 999},
		{333, 333, 334},
		{100, 200, 300, 400},
	}
	for _, split := range splits {
		b := NewBalance("s1", Cents(1000), false, testNow)
		var err error
		for i, a := range split {
			b, err = b.ApplyPayment(Cents(a), NewDate(2025, 3, i+1))
			if err != nil {
				t.Fatalf("split %v: %v", split, err)
			}
		}
		if b.Current.Cents != 0 || b.View().Status != StatusPaid {
			t.Fatalf("split %v: expected paid, got %+v", split, b)
		}
		if b.TotalPaid.Cents != 1000 {
			t.Fatalf("split %v: expected total paid 1000, got %d", split, b.TotalPaid.Cents)
		}
		if b.LastPaymentDate.String() != NewDate(2025, 3, len(split)).String() {
			t.Fatalf("split %v: unexpected last payment date %s", split, b.LastPaymentDate)
		}
	}
}

func TestApplyPaymentRejectsNonPositive(t *testing.T) {
	b := NewBalance("s1", Cents(1000), false, testNow)
	for _, amount := range []int64{0, -5} {
		got, err := b.ApplyPayment(Cents(amount), NewDate(2025, 3, 2))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
		if got != b {
			t.Fatalf("amount %d: balance changed on error", amount)
		}
	}
}

func TestApplyPaymentKeepsLatestDate(t *testing.T) {
	b := NewBalance("s1", Cents(1000), false, testNow)
	b, _ = b.ApplyPayment(Cents(100), NewDate(2025, 3, 10))
	b, _ = b.ApplyPayment(Cents(100), NewDate(2025, 3, 4))
	if b.LastPaymentDate.String() != "2025-03-10" {
		t.Fatalf("expected 2025-03-10, got %s", b.LastPaymentDate)
	}
}

func TestRevertPaymentInvertsApply(t *testing.T) {
	before := NewBalance("s1", Cents(1000), false, testNow)
	before, _ = before.ApplyPayment(Cents(300), NewDate(2025, 3, 3))

	after, err := before.ApplyPayment(Cents(900), NewDate(2025, 3, 8))
	if err != nil {
		t.Fatal(err)
	}
	restored := after.RevertPayment(Cents(900), before.LastPaymentDate)
	if restored.Current != before.Current || restored.TotalPaid != before.TotalPaid {
		t.Fatalf("expected %+v, got %+v", before, restored)
	}
	if restored.LastPaymentDate.String() != "2025-03-03" {
		t.Fatalf("expected last payment date restored, got %s", restored.LastPaymentDate)
	}
}

func TestRevertPaymentFloorsTotalPaid(t *testing.T) {
	b := Balance{StudentID: "s1", Current: Cents(1000), TotalPaid: Cents(0)}
	got := b.RevertPayment(Cents(400), Date{})
	if got.Current.Cents != 1400 || got.TotalPaid.Cents != 0 {
		t.Fatalf("unexpected balance %+v", got)
	}
	if !got.LastPaymentDate.IsEmpty() {
		t.Fatalf("expected empty last payment date, got %s", got.LastPaymentDate)
	}
}

func TestReconciledThrough(t *testing.T) {
	jan := MonthPeriod(2025, time.January, 1)
	feb := MonthPeriod(2025, time.February, 1)
	mar := MonthPeriod(2025, time.March, 1)
	b := Balance{}
	if b.ReconciledThrough(feb) {
		t.Fatal("fresh balance should not be reconciled")
	}
	b.ReconciledUntil = DateOf(feb.End)
	if !b.ReconciledThrough(feb) || !b.ReconciledThrough(jan) {
		t.Fatal("expected reconciled through february and earlier")
	}
	if b.ReconciledThrough(mar) {
		t.Fatal("march has not been reconciled")
	}
}

func TestAcceptsPaymentOn(t *testing.T) {
	b := Balance{}
	if !b.AcceptsPaymentOn(NewDate(2020, 1, 1)) {
		t.Fatal("a balance never rolled over accepts any date")
	}
	b.ReconciledUntil = NewDate(2025, 3, 1)
	if b.AcceptsPaymentOn(NewDate(2025, 2, 28)) {
		t.Fatal("february is closed")
	}
	if !b.AcceptsPaymentOn(NewDate(2025, 3, 1)) {
		t.Fatal("the open cycle starts on the reconciled-until day")
	}
}

func TestPendingPeriods(t *testing.T) {
	mar := MonthPeriod(2025, time.March, 1)
	keys := func(ps []Period) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Key()
		}
		return out
	}
	cases := []struct {
		name     string
		balance  Balance
		enrolled time.Time
		through  Period
		want     []string
		wantErr  bool
	}{
		{"fresh, enrolled in january", Balance{}, day(2025, 1, 15), mar, []string{"2025-01-01", "2025-02-01", "2025-03-01"}, false},
		{"fresh, enrolled in march", Balance{}, day(2025, 3, 2), mar, []string{"2025-03-01"}, false},
		{"fresh, unknown enrollment", Balance{}, time.Time{}, mar, []string{"2025-03-01"}, false},
		{"missed february", Balance{ReconciledUntil: NewDate(2025, 2, 1)}, day(2024, 12, 5), mar, []string{"2025-02-01", "2025-03-01"}, false},
		{"up to date", Balance{ReconciledUntil: NewDate(2025, 3, 1)}, day(2024, 12, 5), mar, []string{"2025-03-01"}, false},
		{"already done", Balance{ReconciledUntil: NewDate(2025, 4, 1)}, day(2024, 12, 5), mar, nil, false},
		{"before enrollment", Balance{}, day(2025, 4, 3), mar, nil, true},
		{"off the billing grid", Balance{}, day(2025, 1, 15), MonthPeriod(2025, time.March, 15), nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.balance.PendingPeriods(tc.through, tc.enrolled, 1)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidPeriod) {
					t.Fatalf("err = %v, want ErrInvalidPeriod", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(keys(got), ",") != strings.Join(tc.want, ",") {
				t.Fatalf("got %v, want %v", keys(got), tc.want)
			}
		})
	}
}
