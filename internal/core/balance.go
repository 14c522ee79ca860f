package core

import (
	"fmt"
	"time"
)

const (
	// TransitionSettled: a paid balance starts the new cycle owing the full fee.
	TransitionSettled Transition = "settled"
	// TransitionCarryOver: unpaid amount accumulates on top of the new fee.
	TransitionCarryOver Transition = "carry_over"
	// TransitionCreditAbsorbs: credit covers the whole fee; the rest carries forward.
	TransitionCreditAbsorbs Transition = "credit_absorbs"
	// TransitionCreditPartial: credit covers part of the fee; the rest is due.
	TransitionCreditPartial Transition = "credit_partial"
)

// Transition names the carry-forward rule applied to a balance at period close.
type Transition string

// Balance is a student's ledger state. Current is the only input to status;
// TotalPaid is informational for the open period.
type Balance struct {
	StudentID            string
	Current              Money // >0 owed, <0 credit, 0 settled
	TotalPaid            Money
	LastPaymentDate      Date // zero when no payment in the open period
	TotalFees            Money
	Version              int64
	LastReconciledPeriod string // Period.Key of the last rollover
	ReconciledUntil      Date   // end of the last rolled-over cycle, zero before the first
	UpdatedAt            time.Time
}

// RolloverPolicy holds the billing choices that are not fixed by the rules.
type RolloverPolicy struct {
	// RecordAbsorbedFee records a fee fully absorbed by credit as paid in the
	// new cycle: TotalPaid = fee and LastPaymentDate = reconciliation day.
	RecordAbsorbedFee bool
}

func DefaultRolloverPolicy() RolloverPolicy {
	return RolloverPolicy{RecordAbsorbedFee: true}
}

// NewBalance opens the ledger for a newly enrolled student. A student marked
// paid starts settled, everyone else owes the first fee.
func NewBalance(studentID string, fee Money, markPaid bool, now time.Time) Balance {
	b := Balance{
		StudentID: studentID,
		Current:   fee,
		TotalFees: fee,
		UpdatedAt: now,
	}
	if markPaid {
		b.Current = Money{}
		b.TotalPaid = fee
	}
	return b
}

// View derives the status of b.
func (b Balance) View() StatusView {
	status, amount := DeriveStatus(b.Current)
	return StatusView{StudentID: b.StudentID, Status: status, Amount: amount}
}

// ApplyPayment returns b after receiving amount on date. Overpayment is not
// clamped: it yields a credit.
func (b Balance) ApplyPayment(amount Money, date Date) (Balance, error) {
	if err := amount.Validate(); err != nil {
		return b, err
	}
	b.Current = b.Current.Sub(amount)
	b.TotalPaid = b.TotalPaid.Add(amount)
	if date.After(b.LastPaymentDate.Time) {
		b.LastPaymentDate = date
	}
	return b, nil
}

// RevertPayment undoes a payment of amount. latest is the most recent date among
// the payments that remain, zero if none. TotalPaid never drops below zero: a
// payment recorded before the last rollover is no longer part of it.
func (b Balance) RevertPayment(amount Money, latest Date) Balance {
	b.Current = b.Current.Add(amount)
	b.TotalPaid = b.TotalPaid.Sub(amount)
	if b.TotalPaid.Cents < 0 {
		b.TotalPaid = Money{}
	}
	b.LastPaymentDate = latest
	return b
}

// ReconciledThrough reports whether b was already rolled over for p or a later
// period. Rollovers are applied strictly in sequence, so every cycle ending at
// or before ReconciledUntil has been closed.
func (b Balance) ReconciledThrough(p Period) bool {
	return !b.ReconciledUntil.IsEmpty() && !b.ReconciledUntil.Before(p.End)
}

// AcceptsPaymentOn reports whether a payment dated d can still be applied:
// reconciled cycles are closed to new payments.
func (b Balance) AcceptsPaymentOn(d Date) bool {
	return b.ReconciledUntil.IsEmpty() || !d.Before(b.ReconciledUntil.Time)
}

// PendingPeriods lists the cycles b still has to be rolled over for, oldest
// first, ending with through. A balance never rolled over starts with the cycle
// the student enrolled in. through must fall on the same billing day grid.
func (b Balance) PendingPeriods(through Period, enrolledAt time.Time, billingDay int) ([]Period, error) {
	if err := through.Validate(); err != nil {
		return nil, err
	}
	if b.ReconciledThrough(through) {
		return nil, nil
	}
	var next Period
	switch {
	case !b.ReconciledUntil.IsEmpty():
		next = PeriodOf(b.ReconciledUntil.Time, billingDay)
	case !enrolledAt.IsZero():
		next = PeriodOf(enrolledAt, billingDay)
	default:
		return []Period{through}, nil
	}
	if next.Start.After(through.Start) {
		return nil, fmt.Errorf("%w: %s precedes the first open cycle %s", ErrInvalidPeriod, through, next)
	}

	var pending []Period
	for !next.Start.After(through.Start) {
		pending = append(pending, next)
		next = next.Next(billingDay)
	}
	if last := pending[len(pending)-1]; !last.Start.Equal(through.Start) || !last.End.Equal(through.End) {
		return nil, fmt.Errorf("%w: %s is not a billing cycle for billing day %d", ErrInvalidPeriod, through, billingDay)
	}
	return pending, nil
}

// Rollover folds the fee of the next cycle into b after period p closed. p must
// be the cycle immediately following the last one rolled over.
func (b Balance) Rollover(fee Money, p Period, policy RolloverPolicy, at time.Time) (Balance, Transition, error) {
	if err := p.Validate(); err != nil {
		return b, "", err
	}
	if !b.ReconciledUntil.IsEmpty() && !b.ReconciledUntil.Equal(p.Start) {
		return b, "", fmt.Errorf("%w: %s does not follow the cycle ending %s", ErrInvalidPeriod, p, b.ReconciledUntil)
	}
	next := b
	next.TotalFees = fee
	next.LastReconciledPeriod = p.Key()
	next.ReconciledUntil = DateOf(p.End)
	next.UpdatedAt = at
	next.TotalPaid = Money{}
	next.LastPaymentDate = Date{}

	var tr Transition
	switch credit := b.Current.Abs(); {
	case b.Current.IsZero():
		tr = TransitionSettled
		next.Current = fee
	case b.Current.Sign() > 0:
		tr = TransitionCarryOver
		next.Current = b.Current.Add(fee)
	case credit.Cents >= fee.Cents:
		tr = TransitionCreditAbsorbs
		next.Current = credit.Sub(fee).Neg()
		if policy.RecordAbsorbedFee && !fee.IsZero() {
			next.TotalPaid = fee
			next.LastPaymentDate = DateOf(at)
		}
	default:
		tr = TransitionCreditPartial
		next.Current = fee.Sub(credit)
	}
	return next, tr, nil
}
