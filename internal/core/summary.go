package core

import "time"

const (
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
	StatusExcess  Status = "excess"
)

// Status is derived from a balance and never stored.
type Status string

// StatusView is a student's status with its magnitude: 0 when paid, the
// amount due when pending, the credit when excess.
type StatusView struct {
	StudentID string
	Status    Status
	Amount    Money
}

// StatusCounts partitions a student set into the three buckets.
type StatusCounts struct {
	Paid    int
	Pending int
	Excess  int
	Total   int
}

// StudentStatus is one row of the operator's status overview.
type StudentStatus struct {
	StudentID       string
	Code            string
	Name            string
	ClassName       string
	Fee             Money
	Balance         Money
	TotalPaid       Money
	LastPaymentDate Date
	Status          Status
	Amount          Money
}

// Reminder carries what a payment reminder message needs for a pending student.
type Reminder struct {
	StudentID       string
	Code            string
	Name            string
	Phone           string
	Email           string
	AmountDue       Money
	LastPaymentDate Date
	GeneratedAt     time.Time
}

// DeriveStatus is the single mapping from a balance to a status.
func DeriveStatus(balance Money) (Status, Money) {
	switch balance.Sign() {
	case 0:
		return StatusPaid, Money{}
	case 1:
		return StatusPending, balance
	default:
		return StatusExcess, balance.Abs()
	}
}

// Add counts one student in bucket s.
func (c *StatusCounts) Add(s Status) {
	switch s {
	case StatusPaid:
		c.Paid++
	case StatusPending:
		c.Pending++
	case StatusExcess:
		c.Excess++
	}
	c.Total++
}
