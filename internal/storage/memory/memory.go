// Package memory is an in-process ledger store for development and tests.
// Transactions hold the store lock and stage their writes until commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

type archivedPayment struct {
	core.Payment
	RunID      string
	ArchivedAt time.Time
}

type Store struct {
	mu       sync.Mutex
	students map[string]core.Student
	balances map[string]core.Balance
	payments map[string]core.Payment
	archive  map[string]archivedPayment
	batches  []core.ImportBatch
}

var _ services.LedgerStore = (*Store)(nil)

func New() *Store {
	return &Store{
		students: make(map[string]core.Student),
		balances: make(map[string]core.Balance),
		payments: make(map[string]core.Payment),
		archive:  make(map[string]archivedPayment),
	}
}

func (s *Store) CreateStudent(_ context.Context, st core.Student, b core.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.students {
		if existing.Code == st.Code {
			return core.ErrDuplicateStudentCode
		}
	}
	b.StudentID = st.ID
	b.Version = 1
	s.students[st.ID] = st
	s.balances[st.ID] = b
	return nil
}

func (s *Store) GetStudent(_ context.Context, id string) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return core.Student{}, core.ErrUnknownStudent
	}
	return st, nil
}

func (s *Store) FindStudentByCode(_ context.Context, code string) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.Code == code {
			return st, nil
		}
	}
	return core.Student{}, core.ErrUnknownStudent
}

func (s *Store) ListStudents(_ context.Context) ([]core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *Store) DeleteStudent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[id]; !ok {
		return core.ErrUnknownStudent
	}
	delete(s.students, id)
	delete(s.balances, id)
	for pid, p := range s.payments {
		if p.StudentID == id {
			delete(s.payments, pid)
		}
	}
	for pid, p := range s.archive {
		if p.StudentID == id {
			delete(s.archive, pid)
		}
	}
	return nil
}

func (s *Store) GetBalance(_ context.Context, studentID string) (core.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[studentID]
	if !ok {
		return core.Balance{}, core.ErrUnknownStudent
	}
	return b, nil
}

func (s *Store) ListBalances(_ context.Context) ([]core.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *Store) GetPayment(_ context.Context, id string) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Store) ListPayments(_ context.Context, studentID string) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.studentPayments(studentID), nil
}

// CountArchivedPayments returns how many of the student's payments were archived.
func (s *Store) CountArchivedPayments(_ context.Context, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.archive {
		if p.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveImportBatch(_ context.Context, b core.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Errors = append([]core.ImportRowError(nil), b.Errors...)
	s.batches = append(s.batches, b)
	return nil
}

// ImportBatches returns the recorded import summaries in insertion order.
func (s *Store) ImportBatches() []core.ImportBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ImportBatch(nil), s.batches...)
}

func (s *Store) WithStudentTx(_ context.Context, studentID string, fn func(tx services.StudentTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[studentID]
	if !ok {
		return core.ErrUnknownStudent
	}
	b, ok := s.balances[studentID]
	if !ok {
		return core.ErrUnknownStudent
	}
	live := make(map[string]core.Payment)
	for id, p := range s.payments {
		if p.StudentID == studentID {
			live[id] = p
		}
	}
	tx := &studentTx{store: s, student: st, balance: b, live: live}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// studentPayments returns the live payments of a student, newest first.
// Callers hold s.mu.
func (s *Store) studentPayments(studentID string) []core.Payment {
	var out []core.Payment
	for _, p := range s.payments {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(ps []core.Payment) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].Date.Equal(ps[j].Date.Time) {
			return ps[i].Date.After(ps[j].Date.Time)
		}
		return ps[i].CreatedAt.After(ps[j].CreatedAt)
	})
}

// studentTx stages one student's writes; s.mu is held for its whole life.
type studentTx struct {
	store    *Store
	student  core.Student
	balance  core.Balance
	live     map[string]core.Payment
	archived []archivedPayment
}

func (t *studentTx) Student() core.Student { return t.student }

func (t *studentTx) Balance() core.Balance { return t.balance }

func (t *studentTx) SetFee(fee core.Money) error {
	t.student.Fee = fee
	t.student.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *studentTx) SaveBalance(b core.Balance) (core.Balance, error) {
	if b.Version != t.balance.Version {
		return core.Balance{}, core.ErrConcurrentUpdate
	}
	b.StudentID = t.student.ID
	b.Version++
	t.balance = b
	return b, nil
}

func (t *studentTx) InsertPayment(p core.Payment) error {
	if p.TransactionRef != "" {
		exists, _ := t.TransactionRefExists(p.TransactionRef)
		if exists {
			return core.ErrDuplicateTransactionRef
		}
	}
	p.StudentID = t.student.ID
	t.live[p.ID] = p
	return nil
}

func (t *studentTx) DeletePayment(paymentID string) (core.Payment, error) {
	p, ok := t.live[paymentID]
	if !ok {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	delete(t.live, paymentID)
	return p, nil
}

func (t *studentTx) TransactionRefExists(ref string) (bool, error) {
	for _, p := range t.live {
		if p.TransactionRef == ref {
			return true, nil
		}
	}
	for _, p := range t.archived {
		if p.TransactionRef == ref {
			return true, nil
		}
	}
	for _, p := range t.store.payments {
		if p.StudentID != t.student.ID && p.TransactionRef == ref {
			return true, nil
		}
	}
	for _, p := range t.store.archive {
		if p.TransactionRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (t *studentTx) LatestPaymentDate() (core.Date, error) {
	var latest core.Date
	for _, p := range t.live {
		if p.Date.After(latest.Time) {
			latest = p.Date
		}
	}
	return latest, nil
}

func (t *studentTx) ArchivePayments(p core.Period, runID string) (int, error) {
	now := time.Now().UTC()
	n := 0
	for id, pay := range t.live {
		if !p.Contains(pay.Date) {
			continue
		}
		t.archived = append(t.archived, archivedPayment{Payment: pay, RunID: runID, ArchivedAt: now})
		delete(t.live, id)
		n++
	}
	return n, nil
}

func (t *studentTx) commit() {
	s := t.store
	id := t.student.ID
	s.students[id] = t.student
	s.balances[id] = t.balance
	for pid, p := range s.payments {
		if p.StudentID == id {
			delete(s.payments, pid)
		}
	}
	for pid, p := range t.live {
		s.payments[pid] = p
	}
	for _, a := range t.archived {
		s.archive[a.ID] = a
	}
}
