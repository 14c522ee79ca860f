package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feeledger/internal/core"
	"feeledger/internal/intake"
	"feeledger/internal/services"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/students/s1").
		Body(map[string]string{"id": "s1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if w.Header().Get("Location") != "/api/students/s1" {
		t.Errorf("Location header not set")
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"id":"s1"}` {
		t.Errorf("Body = %q", got)
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body should be empty, got %q", w.Body.String())
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		builder  *JSONResponseBuilder
		wantCode int
	}{
		{"BadRequest", BadRequestError("bad"), http.StatusBadRequest},
		{"NotFound", NotFoundError("missing"), http.StatusNotFound},
		{"Internal", InternalServerError("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.wantCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
			if !strings.Contains(w.Body.String(), `"error":`) {
				t.Errorf("Body missing error field: %s", w.Body.String())
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("apply payment: %w", core.ErrUnknownStudent), http.StatusNotFound},
		{core.ErrPaymentNotFound, http.StatusNotFound},
		{fmt.Errorf("save balance: %w", core.ErrConcurrentUpdate), http.StatusConflict},
		{core.ErrDuplicateStudentCode, http.StatusConflict},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{core.ErrInvalidFee, http.StatusUnprocessableEntity},
		{core.ErrInvalidPeriod, http.StatusUnprocessableEntity},
		{core.ErrInvalidMethod, http.StatusUnprocessableEntity},
		{intake.ErrMissingColumn, http.StatusUnprocessableEntity},
		{intake.ErrUnreadableWorkbook, http.StatusUnprocessableEntity},
		{&services.PartialReconciliationError{StudentIDs: []string{"s1"}}, http.StatusMultiStatus},
		{fmt.Errorf("%w: empty body", errBadBody), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorFromDomain_HidesInternalDetail(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	w := httptest.NewRecorder()

	ErrorFromDomain(r, errors.New("database is locked")).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "locked") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
}
