package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/models"
)

func postIngest(handler *IngestHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.TriggerHandler(rec, req)
	return rec
}

func TestIngestTrigger_Directory(t *testing.T) {
	triggered := make(chan struct{}, 1)
	service := &mockIngestService{
		scanFunc: func(ctx context.Context) (*models.IngestRun, error) {
			triggered <- struct{}{}
			return &models.IngestRun{Source: models.IngestSourceDirectory}, nil
		},
	}

	handler := NewIngestHandler(service, arbor.NewLogger())
	rec := postIngest(handler, `{"source":"directory"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["status"] != "started" {
		t.Errorf("Expected status 'started', got %v", response["status"])
	}

	// The run executes after the response is written
	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for directory scan to start")
	}
}

func TestIngestTrigger_URL(t *testing.T) {
	captured := make(chan string, 1)
	service := &mockIngestService{
		ingestURLFunc: func(ctx context.Context, url string) (*models.Document, error) {
			captured <- url
			return &models.Document{ID: "doc_1"}, nil
		},
	}

	handler := NewIngestHandler(service, arbor.NewLogger())
	rec := postIngest(handler, `{"source":"url","url":"https://example.com/page"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	select {
	case url := <-captured:
		if url != "https://example.com/page" {
			t.Errorf("Expected trigger for https://example.com/page, got %q", url)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for URL ingest to start")
	}
}

func TestIngestTrigger_URLRequiresAddress(t *testing.T) {
	handler := NewIngestHandler(&mockIngestService{}, arbor.NewLogger())
	rec := postIngest(handler, `{"source":"url"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing url, got %d", rec.Code)
	}
}

func TestIngestTrigger_Mailbox(t *testing.T) {
	triggered := make(chan struct{}, 1)
	service := &mockIngestService{
		pollFunc: func(ctx context.Context) (*models.IngestRun, error) {
			triggered <- struct{}{}
			return &models.IngestRun{Source: models.IngestSourceMailbox}, nil
		},
	}

	handler := NewIngestHandler(service, arbor.NewLogger())
	rec := postIngest(handler, `{"source":"mailbox"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for mailbox poll to start")
	}
}

func TestIngestTrigger_MissingSource(t *testing.T) {
	handler := NewIngestHandler(&mockIngestService{}, arbor.NewLogger())
	rec := postIngest(handler, `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing source, got %d", rec.Code)
	}
}

func TestIngestTrigger_UnknownSource(t *testing.T) {
	handler := NewIngestHandler(&mockIngestService{}, arbor.NewLogger())
	rec := postIngest(handler, `{"source":"ftp"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown source, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	errMsg, _ := response["error"].(string)
	if !strings.Contains(errMsg, "ftp") {
		t.Errorf("Expected error to name the source, got %q", errMsg)
	}
}

func TestIngestStatus_ReportsLastRuns(t *testing.T) {
	service := &mockIngestService{
		lastRunFunc: func(source string) (*models.IngestRun, bool) {
			if source == models.IngestSourceDirectory {
				return &models.IngestRun{
					ID:        "run_abc",
					Source:    source,
					Documents: 5,
					Chunks:    20,
				}, true
			}
			return nil, false
		},
	}

	handler := NewIngestHandler(service, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/ingest/status", nil)
	rec := httptest.NewRecorder()

	handler.StatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	runs := response["runs"].(map[string]interface{})
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}

	directory := runs["directory"].(map[string]interface{})
	if directory["id"] != "run_abc" {
		t.Errorf("Expected run id 'run_abc', got %v", directory["id"])
	}

	if int(directory["documents"].(float64)) != 5 {
		t.Errorf("Expected 5 documents, got %v", directory["documents"])
	}
}
