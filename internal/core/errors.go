package core

import "errors"

var (
	// ErrInvalidAmount is returned for a non-positive payment amount.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrInvalidFee is returned for a negative or unparsable fee.
	ErrInvalidFee = errors.New("ledger: invalid fee")
	// ErrUnknownStudent is returned when a student or its balance row does not exist.
	ErrUnknownStudent = errors.New("ledger: unknown student")
	// ErrPaymentNotFound is returned when a payment id does not exist.
	ErrPaymentNotFound = errors.New("ledger: payment not found")
	// ErrDuplicateTransactionRef signals an already recorded external reference.
	// It is a skip, never a reason to abort a batch.
	ErrDuplicateTransactionRef = errors.New("ledger: duplicate transaction reference")
	// ErrDuplicateStudentCode is returned when a student code is already taken.
	ErrDuplicateStudentCode = errors.New("ledger: duplicate student code")
	// ErrConcurrentUpdate is returned when a balance row changed between read and write.
	ErrConcurrentUpdate = errors.New("ledger: concurrent balance update")
	// ErrInvalidPeriod is returned for an empty or inverted period window.
	ErrInvalidPeriod = errors.New("ledger: invalid period")
	// ErrClosedPeriod is returned for a payment dated inside an already reconciled cycle.
	ErrClosedPeriod = errors.New("ledger: payment date falls in a reconciled period")
	// ErrInvalidMethod is returned for an unknown payment method.
	ErrInvalidMethod = errors.New("ledger: invalid payment method")

	ErrEmptyName          = errors.New("ledger: empty student name")
	ErrInvalidStudentCode = errors.New("ledger: invalid student code")
)
