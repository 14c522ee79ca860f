package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func newJSONLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{Level: level, Format: "json", Component: ComponentHTTP, Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("visible", "k", 1)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0][FieldComponent] != ComponentHTTP || lines[0]["msg"] != "visible" {
		t.Errorf("unexpected line %v", lines[0])
	}
}

func TestLogRequest_LevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, slog.LevelDebug)
	var ctx context.Context
	Middleware(logger)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = WithRequestID(r.Context(), "req-1")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	req := httptest.NewRequest(http.MethodPost, "/api/payments?x=1", nil)
	for _, status := range []int{201, 404, 503} {
		LogRequest(ctx, req, status, 12*time.Millisecond, "203.0.113.10")
	}

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, want := range []string{"INFO", "WARN", "ERROR"} {
		if lines[i]["level"] != want {
			t.Errorf("line %d level = %v, want %s", i, lines[i]["level"], want)
		}
		if lines[i][FieldRequestID] != "req-1" || lines[i][FieldQuery] != "x=1" {
			t.Errorf("line %d missing request fields: %v", i, lines[i])
		}
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()).Logger == nil {
		t.Fatal("FromContext returned a logger without a handler")
	}
}

func TestLogFields_KeepsOrder(t *testing.T) {
	got := NewFields().WithPayment("s1", "", 500).WithBalance(-500, "excess").ToSlice()
	want := []any{FieldStudentID, "s1", FieldAmountCents, int64(500), FieldBalance, int64(-500), FieldStatus, "excess"}
	if len(got) != len(want) {
		t.Fatalf("ToSlice() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ToSlice()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
