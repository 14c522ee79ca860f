package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	MethodManual PaymentMethod = "manual"
	MethodCash   PaymentMethod = "cash"
	MethodOnline PaymentMethod = "online"
	MethodImport PaymentMethod = "import"
)

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

type (
	PaymentMethod string

	Date struct {
		time.Time
	}

	Student struct {
		ID        string
		Code      string // human code, e.g. STU001; statement remarks refer to it
		Name      string
		Fee       Money // recurring fee per billing period
		ClassName string
		Email     string
		Phone     string
		Notes     string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Payment struct {
		ID             string
		StudentID      string
		Amount         Money
		Date           Date
		Method         PaymentMethod
		TransactionRef string // empty when absent; unique across live and archived payments
		Remark         string
		CreatedAt      time.Time
	}

	// ImportBatch summarises one bulk statement import.
	ImportBatch struct {
		ID        string
		Source    string
		Total     int
		Processed int
		Skipped   int
		Failed    int
		Errors    []ImportRowError
		CreatedAt time.Time
	}

	ImportRowError struct {
		Row        int
		StudentRef string
		Message    string
	}
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero. Balances use the zero date for "no payment yet".
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats d as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON encodes d as "YYYY-MM-DD", or null for the zero date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodManual, MethodCash, MethodOnline, MethodImport:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod accepts the canonical names and the labels the operator
// screens use ("Manual Entry", "Excel Upload", ...). Empty input means manual.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual", "manual entry":
		return MethodManual, nil
	case "cash":
		return MethodCash, nil
	case "online", "upi":
		return MethodOnline, nil
	case "import", "excel upload", "statement import":
		return MethodImport, nil
	default:
		return "", ErrInvalidMethod
	}
}

func (s Student) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if !codePattern.MatchString(s.Code) {
		return ErrInvalidStudentCode
	}
	if s.Fee.Cents < 0 {
		return ErrInvalidFee
	}
	if len(s.Notes) > 200 {
		return errors.New("notes too long (max 200 characters)")
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.StudentID) == "" {
		return ErrUnknownStudent
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if err := p.Date.Validate(); err != nil {
		return err
	}
	if !p.Method.Valid() {
		return ErrInvalidMethod
	}
	if len(p.Remark) > 500 {
		return errors.New("remark too long (max 500 characters)")
	}
	return nil
}
