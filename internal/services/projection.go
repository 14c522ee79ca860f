package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"feeledger/internal/core"
)

// Projection is the read side of the ledger. Every status it returns goes
// through core.DeriveStatus.
type Projection struct {
	store LedgerStore
	now   func() time.Time
}

func NewProjection(store LedgerStore) *Projection {
	return &Projection{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus returns a student's status and its magnitude.
func (p *Projection) GetStatus(ctx context.Context, studentID string) (core.StatusView, error) {
	b, err := p.store.GetBalance(ctx, studentID)
	if err != nil {
		return core.StatusView{}, err
	}
	return b.View(), nil
}

// StudentStatus returns the overview row of one student.
func (p *Projection) StudentStatus(ctx context.Context, studentID string) (core.StudentStatus, error) {
	s, err := p.store.GetStudent(ctx, studentID)
	if err != nil {
		return core.StudentStatus{}, err
	}
	b, err := p.store.GetBalance(ctx, studentID)
	if err != nil {
		return core.StudentStatus{}, err
	}
	return StatusRow(s, b), nil
}

// ListStatusCounts counts every student into exactly one bucket.
func (p *Projection) ListStatusCounts(ctx context.Context) (core.StatusCounts, error) {
	balances, err := p.store.ListBalances(ctx)
	if err != nil {
		return core.StatusCounts{}, fmt.Errorf("list balances: %w", err)
	}
	var counts core.StatusCounts
	for _, b := range balances {
		counts.Add(b.View().Status)
	}
	return counts, nil
}

// Snapshot returns one row per student ordered by name.
func (p *Projection) Snapshot(ctx context.Context) ([]core.StudentStatus, error) {
	students, balances, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]core.StudentStatus, 0, len(students))
	for _, s := range students {
		b, ok := balances[s.ID]
		if !ok {
			continue
		}
		rows = append(rows, StatusRow(s, b))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
	})
	return rows, nil
}

// PendingReminders lists students with an amount due, largest first.
func (p *Projection) PendingReminders(ctx context.Context) ([]core.Reminder, error) {
	students, balances, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	now := p.now()
	var out []core.Reminder
	for _, s := range students {
		b, ok := balances[s.ID]
		if !ok {
			continue
		}
		view := b.View()
		if view.Status != core.StatusPending {
			continue
		}
		out = append(out, core.Reminder{
			StudentID:       s.ID,
			Code:            s.Code,
			Name:            s.Name,
			Phone:           s.Phone,
			Email:           s.Email,
			AmountDue:       view.Amount,
			LastPaymentDate: b.LastPaymentDate,
			GeneratedAt:     now,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AmountDue.Cents != out[j].AmountDue.Cents {
			return out[i].AmountDue.Cents > out[j].AmountDue.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// StatusRow joins a student with its balance into an overview row.
func StatusRow(s core.Student, b core.Balance) core.StudentStatus {
	view := b.View()
	return core.StudentStatus{
		StudentID:       s.ID,
		Code:            s.Code,
		Name:            s.Name,
		ClassName:       s.ClassName,
		Fee:             s.Fee,
		Balance:         b.Current,
		TotalPaid:       b.TotalPaid,
		LastPaymentDate: b.LastPaymentDate,
		Status:          view.Status,
		Amount:          view.Amount,
	}
}

func (p *Projection) load(ctx context.Context) ([]core.Student, map[string]core.Balance, error) {
	students, err := p.store.ListStudents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list students: %w", err)
	}
	list, err := p.store.ListBalances(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list balances: %w", err)
	}
	balances := make(map[string]core.Balance, len(list))
	for _, b := range list {
		balances[b.StudentID] = b
	}
	return students, balances, nil
}
