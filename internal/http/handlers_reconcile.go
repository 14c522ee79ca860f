package http

import (
	"errors"
	"net/http"
	"strings"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

// handleReconcile runs a reconciliation for "period" (YYYY-MM, default: the
// last closed cycle). A partial failure answers 207 with the full report.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}

	period := core.ClosedPeriod(s.now(), s.billingDay)
	if p := strings.TrimSpace(req.Period); p != "" {
		var err error
		if period, err = core.ParseMonthPeriod(p, s.billingDay); err != nil {
			ErrorFromDomain(r, err).Write(w)
			return
		}
	}

	var (
		report services.ReconcileReport
		err    error
	)
	if len(req.StudentIDs) > 0 {
		report, err = s.reconciler.ReconcileStudents(r.Context(), period, req.StudentIDs)
	} else {
		report, err = s.reconciler.ReconcileAll(r.Context(), period)
	}

	var partial *services.PartialReconciliationError
	switch {
	case errors.As(err, &partial):
		NewJSONResponse().Status(http.StatusMultiStatus).Body(toReconcileResponse(report)).Write(w)
	case err != nil:
		ErrorFromDomain(r, err).Write(w)
	default:
		NewJSONResponse().Body(toReconcileResponse(report)).Write(w)
	}
}
