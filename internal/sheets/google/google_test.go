package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"feeledger/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Settings{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Settings{SpreadsheetID: "test-id"})
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Settings{SpreadsheetID: "test-id", CredentialsFile: "/non/existent.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got: %v", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	ctx := context.Background()

	if err := c.ReplaceStatuses(ctx, nil); err == nil {
		t.Error("ReplaceStatuses should fail without a service")
	}
	if err := c.UpsertStatus(ctx, core.StudentStatus{StudentID: "s1"}); err == nil {
		t.Error("UpsertStatus should fail without a service")
	}
	if err := c.RemoveStudent(ctx, "s1"); err == nil {
		t.Error("RemoveStudent should fail without a service")
	}
	if _, err := c.ReadStatement(ctx); err == nil {
		t.Error("ReadStatement should fail without a service")
	}
}

func TestFindRow(t *testing.T) {
	ids := []string{"Student ID", "s1", "", "s2"}
	tests := []struct {
		id   string
		want int
	}{
		{"s1", 2},
		{"s2", 4},
		{"missing", 0},
		{"Student ID", 0},
	}
	for _, tt := range tests {
		if got := findRow(ids, tt.id); got != tt.want {
			t.Errorf("findRow(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestLastColumn(t *testing.T) {
	if got := lastColumn(); got != "J" {
		t.Errorf("lastColumn() = %q, want J", got)
	}
}

type call struct {
	method string
	path   string
	body   string
}

type fakeSheets struct {
	mu     sync.Mutex
	calls  []call
	values map[string][][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, call{method: r.Method, path: r.URL.Path, body: string(body)})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		for rng, vals := range f.values {
			if strings.HasSuffix(r.URL.Path, "/values/"+rng) {
				_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": vals})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{})
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakeSheets) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return &Client{svc: svc, spreadsheetID: "sheet-1", statusSheet: "Status", statementSheet: "Statement"}
}

func TestClient_UpsertStatusUpdatesExistingRow(t *testing.T) {
	fake := &fakeSheets{values: map[string][][]any{
		"Status!J:J": {{"Student ID"}, {"s1"}, {"s2"}},
	}}
	c := newTestClient(t, fake)

	row := core.StudentStatus{StudentID: "s2", Code: "STU2", Name: "Ravi", Balance: core.Cents(500), Status: core.StatusPending, Amount: core.Cents(500)}
	if err := c.UpsertStatus(context.Background(), row); err != nil {
		t.Fatalf("UpsertStatus: %v", err)
	}

	calls := fake.recorded()
	if len(calls) != 2 {
		t.Fatalf("expected read + update, got %+v", calls)
	}
	if calls[1].method != http.MethodPut || !strings.HasSuffix(calls[1].path, "/values/Status!A3:J3") {
		t.Errorf("unexpected update call: %+v", calls[1])
	}
	if !strings.Contains(calls[1].body, `"Ravi"`) || !strings.Contains(calls[1].body, `"5.00"`) {
		t.Errorf("update body missing row cells: %s", calls[1].body)
	}
}

func TestClient_UpsertStatusAppendsWithHeaderOnEmptySheet(t *testing.T) {
	fake := &fakeSheets{values: map[string][][]any{}}
	c := newTestClient(t, fake)

	if err := c.UpsertStatus(context.Background(), core.StudentStatus{StudentID: "s1", Name: "Asha"}); err != nil {
		t.Fatalf("UpsertStatus: %v", err)
	}

	calls := fake.recorded()
	if len(calls) != 2 {
		t.Fatalf("expected read + append, got %+v", calls)
	}
	if calls[1].method != http.MethodPost || !strings.HasSuffix(calls[1].path, ":append") {
		t.Errorf("unexpected append call: %+v", calls[1])
	}
	if !strings.Contains(calls[1].body, `"Student ID"`) {
		t.Errorf("append to empty sheet should include header: %s", calls[1].body)
	}
}

func TestClient_ReadStatementSkipsBlankRows(t *testing.T) {
	fake := &fakeSheets{values: map[string][][]any{
		"Statement!A:Z": {
			{"Date", "Student Name", "Amount"},
			{"", "", ""},
			{"2025-02-03", " Asha ", 1500},
		},
	}}
	c := newTestClient(t, fake)

	rows, err := c.ReadStatement(context.Background())
	if err != nil {
		t.Fatalf("ReadStatement: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", rows)
	}
	if rows[1][1] != "Asha" || rows[1][2] != "1500" {
		t.Errorf("unexpected row: %v", rows[1])
	}
}

func TestClient_RemoveStudentMissingRowIsNoop(t *testing.T) {
	fake := &fakeSheets{values: map[string][][]any{
		"Status!J:J": {{"Student ID"}, {"s1"}},
	}}
	c := newTestClient(t, fake)

	if err := c.RemoveStudent(context.Background(), "s9"); err != nil {
		t.Fatalf("RemoveStudent: %v", err)
	}
	if calls := fake.recorded(); len(calls) != 1 {
		t.Errorf("expected only the id read, got %+v", calls)
	}
}
