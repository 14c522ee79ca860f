package core

import "testing"

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		balance    int64
		wantStatus Status
		wantAmount int64
	}{
		{0, StatusPaid, 0},
		{1, StatusPending, 1},
		{150000, StatusPending, 150000},
		{-1, StatusExcess, 1},
		{-20000, StatusExcess, 20000},
	}
	for _, tc := range cases {
		status, amount := DeriveStatus(Cents(tc.balance))
		if status != tc.wantStatus || amount.Cents != tc.wantAmount {
			t.Errorf("DeriveStatus(%d) = %s %d; want %s %d", tc.balance, status, amount.Cents, tc.wantStatus, tc.wantAmount)
		}
	}
}

func TestStatusCountsPartition(t *testing.T) {
	var c StatusCounts
	for _, b := range []int64{0, 0, 10, -5, 30, -1, 0} {
		s, _ := DeriveStatus(Cents(b))
		c.Add(s)
	}
	if c.Paid != 3 || c.Pending != 2 || c.Excess != 2 {
		t.Fatalf("unexpected counts %+v", c)
	}
	if c.Paid+c.Pending+c.Excess != c.Total || c.Total != 7 {
		t.Fatalf("counts do not partition the set: %+v", c)
	}
}
