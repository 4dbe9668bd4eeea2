package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invoicetools/extraction-service/constants"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/pipeline"
	"github.com/invoicetools/extraction-service/internal/repository"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	return []byte(url), nil
}

type stubOCR struct {
	texts map[string]string
}

func (o stubOCR) ExtractText(_ context.Context, image []byte) (string, error) {
	if text, ok := o.texts[string(image)]; ok {
		return text, nil
	}
	return "", errors.New("unreadable image")
}

type stubLLM struct {
	response string
}

func (l stubLLM) Generate(_ context.Context, _, _ string) (string, error) {
	return l.response, nil
}

const invoiceText = `TAX INVOICE
Invoice No: INV-2024-0042
Invoice Date: 15/03/2024
Supplier GSTIN: 29ABCDE1234F1Z5
Description: Industrial valve assembly units
Quantity: 12
Rate: 950.00
Total Amount: 11,800.50`

const invoiceResponse = `{"Invoice No": "INV-2024-0042", "Supplier GSTIN": "29ABCDE1234F1Z5", "Invoice Date": "2024-03-15", "Total Amount": 11800.50}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	dsn := "file:" + filepath.Join(t.TempDir(), "server.db")
	db, err := repository.Open(context.Background(),
		repository.Config{Driver: repository.DriverSQLite, DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close(logger) })

	batches := repository.NewBatchRepository(db, logger)
	records := repository.NewRecordRepository(db, logger)
	specs := entity.DefaultFieldSpecs()

	proc, err := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Fetcher: stubFetcher{},
		OCR:     stubOCR{texts: map[string]string{"https://docs.example.com/a.pdf": invoiceText}},
		LLM:     stubLLM{response: invoiceResponse},
		Model:   "test-model",
		Specs:   specs,
		Records: records,
		Batches: batches,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	orch := pipeline.NewOrchestrator(proc, batches, 2, 0, logger)

	srv := New(":0", db, batches, records, orch, specs, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func waitForStatus(t *testing.T, ts *httptest.Server, batchID string, want constants.BatchStatus) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/api/batches/" + batchID)
		if err != nil {
			t.Fatalf("get batch: %v", err)
		}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		resp.Body.Close()
		if body["status"] == string(want) {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("batch %s never reached %s", batchID, want)
	return nil
}

func TestCreateBatchJSONAndPoll(t *testing.T) {
	ts := newTestServer(t)

	payload := `{
		"urls": ["https://docs.example.com/a.pdf", "https://docs.example.com/broken.jpg"],
		"file_name": "invoices.xlsx",
		"created_by": "ops@example.com"
	}`
	resp, err := http.Post(ts.URL+"/api/batches", "application/json",
		strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post batch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var created map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	batchID, _ := created["id"].(string)
	if batchID == "" {
		t.Fatal("response carries no batch id")
	}

	final := waitForStatus(t, ts, batchID, constants.BatchStatusCompleted)
	if final["success_count"].(float64) != 1 {
		t.Errorf("success_count = %v, want 1", final["success_count"])
	}
	if final["failed_count"].(float64) != 1 {
		t.Errorf("failed_count = %v, want 1", final["failed_count"])
	}

	recResp, err := http.Get(ts.URL + "/api/batches/" + batchID + "/records")
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	defer recResp.Body.Close()
	var recBody struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.NewDecoder(recResp.Body).Decode(&recBody); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(recBody.Records) != 2 {
		t.Errorf("records = %d, want 2", len(recBody.Records))
	}

	expResp, err := http.Get(ts.URL + "/api/batches/" + batchID + "/export")
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	defer expResp.Body.Close()
	if expResp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d, want 200", expResp.StatusCode)
	}
	if ct := expResp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("export content type = %s", ct)
	}
}

func TestCreateBatchRejectsEmpty(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/batches", "application/json",
		strings.NewReader(`{"urls": [], "created_by": "ops@example.com"}`))
	if err != nil {
		t.Fatalf("post batch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateBatchRequiresUser(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/batches", "application/json",
		strings.NewReader(`{"urls": ["https://docs.example.com/a.pdf"]}`))
	if err != nil {
		t.Fatalf("post batch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/batches/5f0c23c0-5c5e-4d5e-9a3f-000000000000")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetBatchBadID(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/batches/not-a-uuid")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
