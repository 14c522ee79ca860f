// Package http serves the fee ledger's JSON API.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps ledger errors onto status codes in one place.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"feeledger/internal/core"
	"feeledger/internal/intake"
	"feeledger/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard {"error": "..."} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// statusForError maps a ledger error to its HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownStudent), errors.Is(err, core.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConcurrentUpdate), errors.Is(err, core.ErrDuplicateStudentCode),
		errors.Is(err, core.ErrDuplicateTransactionRef):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidFee),
		errors.Is(err, core.ErrInvalidPeriod), errors.Is(err, core.ErrInvalidMethod),
		errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrInvalidStudentCode),
		errors.Is(err, core.ErrClosedPeriod),
		errors.Is(err, intake.ErrMissingColumn), errors.Is(err, intake.ErrEmptyStatement),
		errors.Is(err, intake.ErrUnreadableWorkbook):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPartialReconciliation):
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromDomain builds the error response for err. Server errors hide their detail.
func ErrorFromDomain(r *http.Request, err error) *JSONResponseBuilder {
	code := statusForError(err)
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		return InternalServerError("internal error")
	}
	return ErrorResponse(code, err.Error())
}
