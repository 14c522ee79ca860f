package storage

import (
	"database/sql"
	"fmt"
	"time"

	"feeledger/internal/core"
)

// Timestamps are stored as RFC3339 text in UTC, calendar dates as YYYY-MM-DD.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullDate(d core.Date) sql.NullString {
	if d.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (core.Date, error) {
	if !s.Valid || s.String == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s.String)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s.String, err)
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func studentToRow(s core.Student) StudentRow {
	return StudentRow{
		ID:        s.ID,
		Code:      s.Code,
		Name:      s.Name,
		FeeCents:  s.Fee.Cents,
		ClassName: s.ClassName,
		Email:     s.Email,
		Phone:     s.Phone,
		Notes:     s.Notes,
		CreatedAt: formatTime(s.CreatedAt),
		UpdatedAt: formatTime(s.UpdatedAt),
	}
}

func rowToStudent(r StudentRow) (core.Student, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return core.Student{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return core.Student{}, err
	}
	return core.Student{
		ID:        r.ID,
		Code:      r.Code,
		Name:      r.Name,
		Fee:       core.Money{Cents: r.FeeCents},
		ClassName: r.ClassName,
		Email:     r.Email,
		Phone:     r.Phone,
		Notes:     r.Notes,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func balanceToRow(b core.Balance) BalanceRow {
	return BalanceRow{
		StudentID:            b.StudentID,
		CurrentBalanceCents:  b.Current.Cents,
		TotalPaidCents:       b.TotalPaid.Cents,
		LastPaymentDate:      nullDate(b.LastPaymentDate),
		TotalFeesCents:       b.TotalFees.Cents,
		Version:              b.Version,
		LastReconciledPeriod: b.LastReconciledPeriod,
		ReconciledUntil:      nullDate(b.ReconciledUntil),
		UpdatedAt:            formatTime(b.UpdatedAt),
	}
}

func rowToBalance(r BalanceRow) (core.Balance, error) {
	last, err := parseNullDate(r.LastPaymentDate)
	if err != nil {
		return core.Balance{}, err
	}
	until, err := parseNullDate(r.ReconciledUntil)
	if err != nil {
		return core.Balance{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return core.Balance{}, err
	}
	return core.Balance{
		StudentID:            r.StudentID,
		Current:              core.Money{Cents: r.CurrentBalanceCents},
		TotalPaid:            core.Money{Cents: r.TotalPaidCents},
		LastPaymentDate:      last,
		TotalFees:            core.Money{Cents: r.TotalFeesCents},
		Version:              r.Version,
		LastReconciledPeriod: r.LastReconciledPeriod,
		ReconciledUntil:      until,
		UpdatedAt:            updated,
	}, nil
}

func paymentToRow(p core.Payment) PaymentRow {
	return PaymentRow{
		ID:             p.ID,
		StudentID:      p.StudentID,
		AmountCents:    p.Amount.Cents,
		PaymentDate:    p.Date.String(),
		Method:         string(p.Method),
		TransactionRef: nullString(p.TransactionRef),
		Remark:         p.Remark,
		CreatedAt:      formatTime(p.CreatedAt),
	}
}

func rowToPayment(r PaymentRow) (core.Payment, error) {
	d, err := core.ParseDate(r.PaymentDate)
	if err != nil {
		return core.Payment{}, fmt.Errorf("parse payment date %q: %w", r.PaymentDate, err)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return core.Payment{}, err
	}
	return core.Payment{
		ID:             r.ID,
		StudentID:      r.StudentID,
		Amount:         core.Money{Cents: r.AmountCents},
		Date:           d,
		Method:         core.PaymentMethod(r.Method),
		TransactionRef: r.TransactionRef.String,
		Remark:         r.Remark,
		CreatedAt:      created,
	}, nil
}
