package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/report"
)

const maxUploadSize = 10 << 20

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rows, err := s.projection.Snapshot(r.Context())
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	out := make([]studentStatusJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, toStudentStatusJSON(row))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.projection.ListStatusCounts(r.Context())
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(statusCountsJSON{
		Paid:    counts.Paid,
		Pending: counts.Pending,
		Excess:  counts.Excess,
		Total:   counts.Total,
	}).Write(w)
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.projection.PendingReminders(r.Context())
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	out := make([]reminderJSON, 0, len(reminders))
	for _, rem := range reminders {
		msg, err := report.ReminderText(rem)
		if err != nil {
			ErrorFromDomain(r, err).Write(w)
			return
		}
		out = append(out, reminderJSON{
			StudentID:       rem.StudentID,
			Code:            rem.Code,
			Name:            rem.Name,
			Phone:           rem.Phone,
			Email:           rem.Email,
			AmountDueCents:  rem.AmountDue.Cents,
			LastPaymentDate: rem.LastPaymentDate.String(),
			Message:         msg,
		})
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleImport applies an uploaded .xlsx statement sent as the multipart field "file".
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		BadRequestError("expected a multipart upload with a \"file\" field").Write(w)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequestError("missing \"file\" field").Write(w)
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".xlsx" {
		ErrorResponse(http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported file type %q, expected .xlsx", ext)).Write(w)
		return
	}

	batch, err := s.importer.ImportXLSX(r.Context(), filepath.Base(header.Filename), file)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toImportBatchJSON(batch)).Write(w)
}

func (s *Server) handleStatusXLSX(w http.ResponseWriter, r *http.Request) {
	s.writeStatusExport(w, r, "status.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", report.StatusXLSX)
}

func (s *Server) handleStatusPDF(w http.ResponseWriter, r *http.Request) {
	s.writeStatusExport(w, r, "status.pdf", "application/pdf", report.StatusPDF)
}

type statusRenderer func(rows []core.StudentStatus, generatedAt time.Time) ([]byte, error)

func (s *Server) writeStatusExport(w http.ResponseWriter, r *http.Request, filename, contentType string, render statusRenderer) {
	rows, err := s.projection.Snapshot(r.Context())
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	out, err := render(rows, s.now())
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
