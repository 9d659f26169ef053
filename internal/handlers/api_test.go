package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
	"github.com/ternarybob/responsum/internal/services/scheduler"
)

// mockStorageManager implements interfaces.StorageManager for testing
type mockStorageManager struct {
	documents interfaces.DocumentStorage
	chunks    interfaces.ChunkStorage
}

func (m *mockStorageManager) DocumentStorage() interfaces.DocumentStorage { return m.documents }
func (m *mockStorageManager) ChunkStorage() interfaces.ChunkStorage { return m.chunks }
func (m *mockStorageManager) KeyValueStorage() interfaces.KeyValueStorage { return nil }
func (m *mockStorageManager) DB() interface{} { return nil }
func (m *mockStorageManager) RunValueLogGC(discardRatio float64) error { return nil }
func (m *mockStorageManager) Close() error { return nil }

func (m *mockStorageManager) LoadVariablesFromFiles(ctx context.Context, dirPath string) error {
	return nil
}

func (m *mockStorageManager) LoadEnvFile(ctx context.Context, filePath string) error {
	return nil
}

// mockBackendRegistry implements interfaces.BackendRegistry for testing
type mockBackendRegistry struct {
	backends []models.BackendInfo
}

func (m *mockBackendRegistry) Backend(ctx context.Context, ref models.BackendRef) (interfaces.GenerationBackend, error) {
	return nil, interfaces.ErrUnknownBackend
}

func (m *mockBackendRegistry) List() []models.BackendInfo { return m.backends }

func (m *mockBackendRegistry) Close() error { return nil }

func TestVersionHandler(t *testing.T) {
	handler := NewAPIHandler(nil, nil)

	req := httptest.NewRequest("GET", "/api/version", nil)
	rec := httptest.NewRecorder()

	handler.VersionHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]string
	json.NewDecoder(rec.Body).Decode(&response)

	for _, key := range []string{"version", "build", "git_commit"} {
		if response[key] == "" {
			t.Errorf("Expected %s in version response", key)
		}
	}
}

func TestHealthHandler_AllComponentsOK(t *testing.T) {
	storage := &mockStorageManager{
		documents: &mockDocumentStorage{
			countFunc: func() (int, error) { return 7, nil },
		},
	}
	registry := &mockBackendRegistry{
		backends: []models.BackendInfo{
			{ID: "hosted", Kind: "hosted", Model: "gpt-4o-mini", Ready: true},
		},
	}

	handler := NewAPIHandler(storage, registry)

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()

	handler.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", response["status"])
	}

	components := response["components"].(map[string]interface{})
	if components["storage"] != "ok" || components["backends"] != "ok" {
		t.Errorf("Expected healthy components, got %v", components)
	}
}

func TestHealthHandler_DegradedWithoutStorage(t *testing.T) {
	handler := NewAPIHandler(nil, &mockBackendRegistry{
		backends: []models.BackendInfo{{ID: "hosted"}},
	})

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()

	handler.HealthHandler(rec, req)

	// Liveness stays 200; degradation is reported in the body
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["status"] != "degraded" {
		t.Errorf("Expected status 'degraded', got %v", response["status"])
	}

	components := response["components"].(map[string]interface{})
	if components["storage"] != "unavailable" {
		t.Errorf("Expected storage 'unavailable', got %v", components["storage"])
	}
}

func TestHealthHandler_StorageError(t *testing.T) {
	storage := &mockStorageManager{
		documents: &mockDocumentStorage{
			countFunc: func() (int, error) { return 0, &mockError{msg: "db closed"} },
		},
	}

	handler := NewAPIHandler(storage, &mockBackendRegistry{
		backends: []models.BackendInfo{{ID: "hosted"}},
	})

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()

	handler.HealthHandler(rec, req)

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["status"] != "degraded" {
		t.Errorf("Expected status 'degraded', got %v", response["status"])
	}

	components := response["components"].(map[string]interface{})
	if components["storage"] != "error" {
		t.Errorf("Expected storage 'error', got %v", components["storage"])
	}
}

func TestNotFoundHandler(t *testing.T) {
	handler := NewAPIHandler(nil, nil)

	req := httptest.NewRequest("GET", "/api/unknown/route", nil)
	rec := httptest.NewRecorder()

	handler.NotFoundHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["path"] != "/api/unknown/route" {
		t.Errorf("Expected path in response, got %v", response["path"])
	}
}

func TestModelsHandler_ListsCatalog(t *testing.T) {
	registry := &mockBackendRegistry{
		backends: []models.BackendInfo{
			{ID: "hosted", Kind: "hosted", Model: "gpt-4o-mini", Ready: true},
			{ID: "local-gpt2", Kind: "local", Model: "gpt2.Q4_K_M.gguf", Ready: false},
		},
	}

	handler := NewModelsHandler(registry, "", arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/models", nil)
	rec := httptest.NewRecorder()

	handler.ModelsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if int(response["count"].(float64)) != 2 {
		t.Errorf("Expected count 2, got %v", response["count"])
	}

	// An unset default normalizes to the hosted identifier
	if response["default"] != models.DefaultBackendIdentifier {
		t.Errorf("Expected default %q, got %v", models.DefaultBackendIdentifier, response["default"])
	}

	backends := response["models"].([]interface{})
	second := backends[1].(map[string]interface{})
	if second["id"] != "local-gpt2" {
		t.Errorf("Expected second backend 'local-gpt2', got %v", second["id"])
	}
}

func TestModelsHandler_ConfiguredDefault(t *testing.T) {
	handler := NewModelsHandler(&mockBackendRegistry{}, "local-gpt2", arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/models", nil)
	rec := httptest.NewRecorder()

	handler.ModelsHandler(rec, req)

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["default"] != "local-gpt2" {
		t.Errorf("Expected default 'local-gpt2', got %v", response["default"])
	}
}

func TestStatusHandler_ReportsCorpusAndRuns(t *testing.T) {
	storage := &mockStorageManager{
		documents: &mockDocumentStorage{
			statsFunc: func() (*models.DocumentStats, error) {
				return &models.DocumentStats{
					TotalDocuments: 4,
					TotalChunks:    18,
					EmbeddedChunks: 18,
					BySource:       map[string]int{"file": 3, "url": 1},
				}, nil
			},
		},
	}
	ingest := &mockIngestService{
		lastRunFunc: func(source string) (*models.IngestRun, bool) {
			if source == models.IngestSourceDirectory {
				return &models.IngestRun{ID: "run_1", Source: source, Documents: 3}, true
			}
			return nil, false
		},
	}

	sched := scheduler.NewService(arbor.NewLogger())
	if err := sched.RegisterJob("badger-gc", "*/30 * * * *", "Badger value-log garbage collection", func() error { return nil }); err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}

	handler := NewStatusHandler(storage, ingest, sched, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()

	handler.GetStatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["status"] != "running" {
		t.Errorf("Expected status 'running', got %v", response["status"])
	}

	if int(response["documents"].(float64)) != 4 {
		t.Errorf("Expected 4 documents, got %v", response["documents"])
	}

	if int(response["chunks"].(float64)) != 18 {
		t.Errorf("Expected 18 chunks, got %v", response["chunks"])
	}

	bySource := response["by_source"].(map[string]interface{})
	if int(bySource["file"].(float64)) != 3 {
		t.Errorf("Expected 3 file documents, got %v", bySource["file"])
	}

	runs := response["ingest_runs"].(map[string]interface{})
	if _, ok := runs["directory"]; !ok {
		t.Error("Expected directory run in status response")
	}

	jobs := response["jobs"].(map[string]interface{})
	if _, ok := jobs["badger-gc"]; !ok {
		t.Error("Expected badger-gc job in status response")
	}

	if _, ok := response["uptime_seconds"]; !ok {
		t.Error("Expected uptime_seconds in status response")
	}
}
