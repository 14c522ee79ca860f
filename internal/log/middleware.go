package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type ctxKey struct{}

// Middleware puts logger into every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, logger)))
		})
	}
}

// FromContext returns the request logger, or the default logger outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: ComponentHTTP}
}

// WithRequestID returns ctx carrying a logger enriched with the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).With(FieldRequestID, requestID))
}

// LogRequest records one finished request. Client errors log at warn, server errors at error.
func LogRequest(ctx context.Context, r *http.Request, status int, elapsed time.Duration, clientIP string) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(status, elapsed.Milliseconds()).
		WithClientIP(clientIP)
	FromContext(ctx).Log(ctx, level, "HTTP request", fields.ToSlice()...)
}

// LogPaymentApplied records a payment accepted through the API with the balance it produced.
func LogPaymentApplied(ctx context.Context, studentID, ref string, amountCents, balanceCents int64, status string) {
	fields := NewFields().
		WithPayment(studentID, ref, amountCents).
		WithBalance(balanceCents, status).
		WithOperation(OpPay)
	FromContext(ctx).InfoContext(ctx, "Payment accepted", fields.ToSlice()...)
}
