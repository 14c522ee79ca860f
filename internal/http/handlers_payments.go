package http

import (
	"net/http"
	"strings"

	"feeledger/internal/core"
	"feeledger/internal/log"
	"feeledger/internal/services"
)

// handleApplyPayment answers 201 for an applied payment and 200 with
// "skipped": true when the transaction reference was already recorded.
func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	method, err := core.ParsePaymentMethod(req.Method)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}

	in := services.PaymentInput{
		StudentID:      strings.TrimSpace(req.StudentID),
		Amount:         amount,
		Date:           date,
		Method:         method,
		TransactionRef: sanitizeInput(req.TransactionRef),
		Remark:         sanitizeInput(req.Remark),
	}

	var (
		balance core.Balance
		skipped bool
	)
	if in.TransactionRef != "" {
		balance, skipped, err = s.ledger.ApplyPaymentIdempotent(r.Context(), in)
	} else {
		balance, err = s.ledger.ApplyPayment(r.Context(), in)
	}
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}

	code := http.StatusCreated
	if skipped {
		code = http.StatusOK
	} else {
		log.LogPaymentApplied(r.Context(),
			in.StudentID, in.TransactionRef, amount.Cents, balance.Current.Cents, string(balance.View().Status))
	}
	NewJSONResponse().Status(code).Body(paymentResponse{Balance: toBalanceJSON(balance), Skipped: skipped}).Write(w)
}

func (s *Server) handleRemovePayment(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.RemovePayment(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toBalanceJSON(balance)).Write(w)
}
