package memory

import (
	"context"
	"testing"

	"feeledger/internal/core"
)

func status(id, name string, balance int64) core.StudentStatus {
	st, amt := core.DeriveStatus(core.Cents(balance))
	return core.StudentStatus{StudentID: id, Code: "C" + id, Name: name, Balance: core.Cents(balance), Status: st, Amount: amt}
}

func TestMemoryMirrorUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	if err := s.ReplaceStatuses(ctx, []core.StudentStatus{status("1", "Asha", 0), status("2", "Ravi", 500)}); err != nil {
		t.Fatalf("ReplaceStatuses: %v", err)
	}
	if err := s.UpsertStatus(ctx, status("2", "Ravi", -100)); err != nil {
		t.Fatalf("UpsertStatus: %v", err)
	}
	if err := s.UpsertStatus(ctx, status("3", "Meera", 1000)); err != nil {
		t.Fatalf("UpsertStatus: %v", err)
	}

	rows := s.Rows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %v", rows)
	}
	if rows[1][4] != "-1.00" || rows[1][5] != "excess" {
		t.Fatalf("row for student 2 not updated in place: %v", rows[1])
	}

	if err := s.RemoveStudent(ctx, "1"); err != nil {
		t.Fatalf("RemoveStudent: %v", err)
	}
	if err := s.RemoveStudent(ctx, "missing"); err != nil {
		t.Fatalf("RemoveStudent on missing id: %v", err)
	}
	rows = s.Rows()
	if len(rows) != 2 || rows[0][9] != "2" || rows[1][9] != "3" {
		t.Fatalf("unexpected rows after removal: %v", rows)
	}
	if s.Writes() != 4 {
		t.Fatalf("expected 4 writes, got %d", s.Writes())
	}
}

func TestMemoryStatementIsCopied(t *testing.T) {
	in := [][]string{{"Name", "Amount"}, {"Asha", "10"}}
	s := New(in)
	in[1][1] = "99"

	got, err := s.ReadStatement(context.Background())
	if err != nil {
		t.Fatalf("ReadStatement: %v", err)
	}
	if got[1][1] != "10" {
		t.Fatalf("statement aliased caller slice: %v", got)
	}
	got[0][0] = "x"
	again, _ := s.ReadStatement(context.Background())
	if again[0][0] != "Name" {
		t.Fatalf("statement aliased returned slice: %v", again)
	}
}
