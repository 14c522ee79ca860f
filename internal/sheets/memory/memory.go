// Package memory implements the sheet ports in process for development and tests.
package memory

import (
	"context"
	"sync"

	"feeledger/internal/core"
	"feeledger/internal/sheets"
)

type Store struct {
	mu        sync.Mutex
	rows      [][]string
	statement [][]string
	writes    int
}

var (
	_ sheets.StatusMirror    = (*Store)(nil)
	_ sheets.StatementReader = (*Store)(nil)
)

// New returns a store whose statement tab holds the given cells.
func New(statement [][]string) *Store {
	return &Store{statement: copyRows(statement)}
}

func (s *Store) ReplaceStatuses(_ context.Context, rows []core.StudentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = s.rows[:0]
	for _, r := range rows {
		s.rows = append(s.rows, sheets.StatusRow(r))
	}
	s.writes++
	return nil
}

func (s *Store) UpsertStatus(_ context.Context, row core.StudentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cells := sheets.StatusRow(row)
	s.writes++
	if i := s.indexOf(row.StudentID); i >= 0 {
		s.rows[i] = cells
		return nil
	}
	s.rows = append(s.rows, cells)
	return nil
}

func (s *Store) RemoveStudent(_ context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(studentID); i >= 0 {
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
		s.writes++
	}
	return nil
}

func (s *Store) ReadStatement(_ context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRows(s.statement), nil
}

// Rows returns the mirrored rows without the header.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRows(s.rows)
}

// Writes counts mutating calls that changed the mirror.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) indexOf(studentID string) int {
	for i, r := range s.rows {
		if r[sheets.StatusIDColumn] == studentID {
			return i
		}
	}
	return -1
}

func copyRows(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, r := range in {
		out[i] = append([]string(nil), r...)
	}
	return out
}
