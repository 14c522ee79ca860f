package http

import (
	"net/http"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	fee, err := core.ParseFee(req.Fee)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}

	student, balance, err := s.ledger.RegisterStudent(r.Context(), services.StudentInput{
		Code:      sanitizeInput(req.Code),
		Name:      sanitizeInput(req.Name),
		Fee:       fee,
		ClassName: sanitizeInput(req.ClassName),
		Email:     sanitizeInput(req.Email),
		Phone:     sanitizeInput(req.Phone),
		Notes:     sanitizeInput(req.Notes),
		MarkPaid:  req.MarkPaid,
	})
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/students/"+student.ID).
		Body(studentWithBalance{Student: toStudentJSON(student), Balance: toBalanceJSON(balance)}).
		Write(w)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.ledger.ListStudents(r.Context())
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	out := make([]studentJSON, 0, len(students))
	for _, st := range students {
		out = append(out, toStudentJSON(st))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, balance, err := s.ledger.GetStudent(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(studentWithBalance{Student: toStudentJSON(student), Balance: toBalanceJSON(balance)}).Write(w)
}

func (s *Server) handleUpdateFee(w http.ResponseWriter, r *http.Request) {
	var req feeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	fee, err := core.ParseFee(req.Fee)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	student, err := s.ledger.UpdateFee(r.Context(), r.PathValue("id"), fee)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toStudentJSON(student)).Write(w)
}

func (s *Server) handleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.RemoveStudent(r.Context(), r.PathValue("id")); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.projection.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(statusViewJSON{
		StudentID:   view.StudentID,
		Status:      string(view.Status),
		AmountCents: view.Amount.Cents,
	}).Write(w)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.ledger.ListPayments(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	out := make([]paymentJSON, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentJSON(p))
	}
	NewJSONResponse().Body(out).Write(w)
}
