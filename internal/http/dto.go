package http

import (
	"time"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

type studentRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Fee       string `json:"fee"`
	ClassName string `json:"class_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
	MarkPaid  bool   `json:"mark_paid"`
}

type feeRequest struct {
	Fee string `json:"fee"`
}

type paymentRequest struct {
	StudentID      string `json:"student_id"`
	Amount         string `json:"amount"`
	Date           string `json:"date"`
	Method         string `json:"method"`
	TransactionRef string `json:"transaction_ref"`
	Remark         string `json:"remark"`
}

type reconcileRequest struct {
	Period     string   `json:"period"`
	StudentIDs []string `json:"student_ids"`
}

type studentJSON struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	FeeCents  int64     `json:"fee_cents"`
	ClassName string    `json:"class_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toStudentJSON(s core.Student) studentJSON {
	return studentJSON{
		ID:        s.ID,
		Code:      s.Code,
		Name:      s.Name,
		FeeCents:  s.Fee.Cents,
		ClassName: s.ClassName,
		Email:     s.Email,
		Phone:     s.Phone,
		Notes:     s.Notes,
		CreatedAt: s.CreatedAt,
	}
}

type balanceJSON struct {
	StudentID            string    `json:"student_id"`
	CurrentCents         int64     `json:"current_balance_cents"`
	TotalPaidCents       int64     `json:"total_paid_cents"`
	LastPaymentDate      string    `json:"last_payment_date,omitempty"`
	Status               string    `json:"status"`
	AmountCents          int64     `json:"amount_cents"`
	Version              int64     `json:"version"`
	LastReconciledPeriod string    `json:"last_reconciled_period,omitempty"`
	ReconciledUntil      string    `json:"reconciled_until,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func toBalanceJSON(b core.Balance) balanceJSON {
	view := b.View()
	return balanceJSON{
		StudentID:            b.StudentID,
		CurrentCents:         b.Current.Cents,
		TotalPaidCents:       b.TotalPaid.Cents,
		LastPaymentDate:      b.LastPaymentDate.String(),
		Status:               string(view.Status),
		AmountCents:          view.Amount.Cents,
		Version:              b.Version,
		LastReconciledPeriod: b.LastReconciledPeriod,
		ReconciledUntil:      b.ReconciledUntil.String(),
		UpdatedAt:            b.UpdatedAt,
	}
}

type studentWithBalance struct {
	Student studentJSON `json:"student"`
	Balance balanceJSON `json:"balance"`
}

type paymentJSON struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	AmountCents    int64     `json:"amount_cents"`
	Date           string    `json:"date"`
	Method         string    `json:"method"`
	TransactionRef string    `json:"transaction_ref,omitempty"`
	Remark         string    `json:"remark,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toPaymentJSON(p core.Payment) paymentJSON {
	return paymentJSON{
		ID:             p.ID,
		StudentID:      p.StudentID,
		AmountCents:    p.Amount.Cents,
		Date:           p.Date.String(),
		Method:         string(p.Method),
		TransactionRef: p.TransactionRef,
		Remark:         p.Remark,
		CreatedAt:      p.CreatedAt,
	}
}

type paymentResponse struct {
	Balance balanceJSON `json:"balance"`
	Skipped bool        `json:"skipped"`
}

type statusViewJSON struct {
	StudentID   string `json:"student_id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}

type statusCountsJSON struct {
	Paid    int `json:"paid"`
	Pending int `json:"pending"`
	Excess  int `json:"excess"`
	Total   int `json:"total"`
}

type studentStatusJSON struct {
	StudentID       string `json:"student_id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	ClassName       string `json:"class_name,omitempty"`
	FeeCents        int64  `json:"fee_cents"`
	BalanceCents    int64  `json:"balance_cents"`
	TotalPaidCents  int64  `json:"total_paid_cents"`
	LastPaymentDate string `json:"last_payment_date,omitempty"`
	Status          string `json:"status"`
	AmountCents     int64  `json:"amount_cents"`
}

func toStudentStatusJSON(s core.StudentStatus) studentStatusJSON {
	return studentStatusJSON{
		StudentID:       s.StudentID,
		Code:            s.Code,
		Name:            s.Name,
		ClassName:       s.ClassName,
		FeeCents:        s.Fee.Cents,
		BalanceCents:    s.Balance.Cents,
		TotalPaidCents:  s.TotalPaid.Cents,
		LastPaymentDate: s.LastPaymentDate.String(),
		Status:          string(s.Status),
		AmountCents:     s.Amount.Cents,
	}
}

type reminderJSON struct {
	StudentID       string `json:"student_id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email,omitempty"`
	AmountDueCents  int64  `json:"amount_due_cents"`
	LastPaymentDate string `json:"last_payment_date,omitempty"`
	Message         string `json:"message"`
}

type reconcileResponse struct {
	services.ReconcileReport
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func toReconcileResponse(r services.ReconcileReport) reconcileResponse {
	return reconcileResponse{
		ReconcileReport: r,
		PeriodStart:     r.Period.Start.Format(core.DateLayout),
		PeriodEnd:       r.Period.End.Format(core.DateLayout),
	}
}

type importRowErrorJSON struct {
	Row        int    `json:"row"`
	StudentRef string `json:"student_ref,omitempty"`
	Message    string `json:"message"`
}

type importBatchJSON struct {
	ID        string               `json:"id"`
	Source    string               `json:"source"`
	Total     int                  `json:"total"`
	Processed int                  `json:"processed"`
	Skipped   int                  `json:"skipped"`
	Failed    int                  `json:"failed"`
	Errors    []importRowErrorJSON `json:"errors"`
	CreatedAt time.Time            `json:"created_at"`
}

func toImportBatchJSON(b core.ImportBatch) importBatchJSON {
	out := importBatchJSON{
		ID:        b.ID,
		Source:    b.Source,
		Total:     b.Total,
		Processed: b.Processed,
		Skipped:   b.Skipped,
		Failed:    b.Failed,
		Errors:    make([]importRowErrorJSON, 0, len(b.Errors)),
		CreatedAt: b.CreatedAt,
	}
	for _, e := range b.Errors {
		out.Errors = append(out.Errors, importRowErrorJSON{Row: e.Row, StudentRef: e.StudentRef, Message: e.Message})
	}
	return out
}
