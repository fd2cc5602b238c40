package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

func TestBulkSendsNDJSON(t *testing.T) {
	var lines []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/_bulk" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-ndjson" {
			t.Errorf("unexpected content type %q", ct)
		}
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "revisions", nil)
	err := client.Bulk(context.Background(), []domain.IndexAction{
		{Op: domain.IndexOpIndex, ID: "FAC-001_01", Body: map[string]any{"title": "Pump"}},
		{Op: domain.IndexOpDelete, ID: "FAC-002_00"},
	})
	if err != nil {
		t.Fatalf("Bulk() error = %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 ndjson lines, got %d: %v", len(lines), lines)
	}

	var meta map[string]bulkMeta
	if err := json.Unmarshal([]byte(lines[0]), &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta["index"].ID != "FAC-001_01" || meta["index"].Index != "revisions" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if !strings.Contains(lines[2], `"delete"`) {
		t.Fatalf("expected delete action, got %s", lines[2])
	}
}

func TestBulkReportsItemErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":true,"items":[{"index":{"_id":"FAC-001_01","status":400,"error":{"type":"mapper_parsing_exception"}}}]}`))
	}))
	defer server.Close()

	err := New(server.URL, "revisions", nil).Bulk(context.Background(), []domain.IndexAction{
		{Op: domain.IndexOpIndex, ID: "FAC-001_01", Body: map[string]any{"title": "Pump"}},
	})
	if err == nil || !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Fatalf("expected item error, got %v", err)
	}
}

func TestBulkMarksServerErrorsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := New(server.URL, "revisions", nil).Bulk(context.Background(), []domain.IndexAction{
		{Op: domain.IndexOpIndex, ID: "FAC-001_01", Body: map[string]any{}},
	})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("expected body in error, got %v", err)
	}
}
