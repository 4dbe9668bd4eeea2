package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/invoicetools/extraction-service/constants"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/repository"
)

// stubFetcher returns the URL itself as the document bytes, so the stub OCR
// can key its canned text off the content.
type stubFetcher struct {
	failing map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if err, ok := f.failing[url]; ok {
		return nil, err
	}
	return []byte(url), nil
}

type stubOCR struct {
	texts map[string]string // document content -> OCR text
}

func (o *stubOCR) ExtractText(_ context.Context, image []byte) (string, error) {
	text, ok := o.texts[string(image)]
	if !ok {
		return "", errors.New("unreadable image")
	}
	return text, nil
}

// stubLLM returns the first canned response whose key appears in the
// prompt, and records every prompt it receives.
type stubLLM struct {
	mu        sync.Mutex
	responses map[string]string
	prompts   []string
}

func (l *stubLLM) Generate(_ context.Context, prompt, _ string) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.mu.Unlock()
	for marker, resp := range l.responses {
		if strings.Contains(prompt, marker) {
			return resp, nil
		}
	}
	return "", errors.New("no canned response for prompt")
}

func (l *stubLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

func (l *stubLLM) sawMarker(marker string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.prompts {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}

// goodInvoiceText passes every text-gate signal on the Latin path.
const goodInvoiceText = `TAX INVOICE
Invoice No: INV-2024-0042
Invoice Date: 15/03/2024
Supplier GSTIN: 29ABCDE1234F1Z5
Description: Industrial valve assembly units
Quantity: 12
Rate: 950.00
Total Amount: 11,800.50`

// blankScanText passes no gate; it rejects before any LLM involvement.
const blankScanText = "blur"

// receiptText is plausible enough to reach the LLM, which then finds no
// invoice fields on it.
const receiptText = `PARKING RECEIPT
Ticket No: 558812
Entry: 09:15 14/03/2024
Exit: 11:40 14/03/2024
Slot: B-17
Vehicle: KA01AB1234
Duration: 2h 25m
Paid cash thank you visit again soon`

const goodResponse = `{"Invoice No": "INV-2024-0042", "Supplier GSTIN": "29ABCDE1234F1Z5", "Invoice Date": "2024-03-15", "Total Amount": 11800.50}`

const templateResponse = `{"Invoice No": "-", "Supplier GSTIN": "-", "Invoice Date": null, "Total Amount": 0}`

type testEnv struct {
	db      *repository.DB
	batches repository.BatchRepository
	records repository.RecordRepository
	llm     *stubLLM
	proc    *Processor
	orch    *Orchestrator
}

func newTestEnv(t *testing.T, ocrTexts map[string]string, llmResponses map[string]string, fetchErrs map[string]error) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	dsn := "file:" + filepath.Join(t.TempDir(), "pipeline.db")
	db, err := repository.Open(context.Background(),
		repository.Config{Driver: repository.DriverSQLite, DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close(logger) })

	batches := repository.NewBatchRepository(db, logger)
	records := repository.NewRecordRepository(db, logger)
	llmStub := &stubLLM{responses: llmResponses}

	proc, err := NewProcessor(ProcessorDeps{
		Fetcher: &stubFetcher{failing: fetchErrs},
		OCR:     &stubOCR{texts: ocrTexts},
		LLM:     llmStub,
		Model:   "test-model",
		Specs:   entity.DefaultFieldSpecs(),
		Records: records,
		Batches: batches,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	return &testEnv{
		db:      db,
		batches: batches,
		records: records,
		llm:     llmStub,
		proc:    proc,
		orch:    NewOrchestrator(proc, batches, 4, 0, logger),
	}
}

func TestRunMixedBatch(t *testing.T) {
	urlA := "https://docs.example.com/invoice-a.pdf"
	urlB := "https://docs.example.com/scan-b.jpg"
	urlC := "https://docs.example.com/parking-c.png"

	env := newTestEnv(t,
		map[string]string{
			urlA: goodInvoiceText,
			urlB: blankScanText,
			urlC: receiptText,
		},
		map[string]string{
			"INV-2024-0042": goodResponse,
			"558812":        templateResponse,
		},
		nil)

	batch, err := env.orch.Run(context.Background(), "invoices.xlsx",
		[]string{urlA, urlB, urlC}, "ops@example.com")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	if batch.Status != constants.BatchStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", batch.Status)
	}
	if batch.TotalCount != 3 || batch.ProcessedCount != 3 {
		t.Errorf("total/processed = %d/%d, want 3/3", batch.TotalCount, batch.ProcessedCount)
	}
	if batch.SuccessCount != 1 || batch.DuplicateCount != 0 || batch.FailedCount != 2 {
		t.Errorf("success/duplicate/failed = %d/%d/%d, want 1/0/2",
			batch.SuccessCount, batch.DuplicateCount, batch.FailedCount)
	}

	// The gate-rejected scan must never cost an LLM call.
	if env.llm.callCount() != 2 {
		t.Errorf("llm calls = %d, want 2", env.llm.callCount())
	}
	if env.llm.sawMarker(blankScanText) {
		t.Error("rejected scan text leaked into an LLM prompt")
	}

	recs, err := env.records.ListByBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("stored rows = %d, want 3", len(recs))
	}
	byStatus := map[constants.RecordStatus]int{}
	for _, rec := range recs {
		byStatus[rec.Status]++
		if rec.Status == constants.RecordStatusFailed && rec.LastError == "" {
			t.Errorf("failed row for %s has no reason", rec.SourceURL)
		}
		// The empty-template rejection keeps the parsed payload for audit.
		if rec.SourceURL == urlC {
			if !strings.Contains(rec.LastError, "empty template") {
				t.Errorf("template rejection reason = %q", rec.LastError)
			}
			if rec.ExtractedData["Invoice No"] != "-" {
				t.Errorf("rejected payload not preserved: %v", rec.ExtractedData)
			}
		}
	}
	if byStatus[constants.RecordStatusSuccess] != 1 || byStatus[constants.RecordStatusFailed] != 2 {
		t.Errorf("row statuses = %v, want 1 SUCCESS and 2 FAILED", byStatus)
	}
}

func TestRunDeduplicatesAcrossItems(t *testing.T) {
	urlA := "https://docs.example.com/invoice-a.pdf"
	urlB := "https://docs.example.com/invoice-a-rescan.pdf"

	env := newTestEnv(t,
		map[string]string{
			urlA: goodInvoiceText,
			urlB: goodInvoiceText,
		},
		map[string]string{"INV-2024-0042": goodResponse},
		nil)

	batch, err := env.orch.Run(context.Background(), "invoices.xlsx",
		[]string{urlA, urlB}, "ops@example.com")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	if batch.SuccessCount != 1 || batch.DuplicateCount != 1 || batch.FailedCount != 0 {
		t.Errorf("success/duplicate/failed = %d/%d/%d, want 1/1/0",
			batch.SuccessCount, batch.DuplicateCount, batch.FailedCount)
	}

	recs, err := env.records.ListByBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("stored rows = %d, want 1 (duplicate bumps the winner)", len(recs))
	}
	if recs[0].AttemptCount != 2 {
		t.Errorf("attempt_count = %d, want 2", recs[0].AttemptCount)
	}
}

func TestRunCountsInvalidURLsAsFailed(t *testing.T) {
	urlA := "https://docs.example.com/invoice-a.pdf"

	env := newTestEnv(t,
		map[string]string{urlA: goodInvoiceText},
		map[string]string{"INV-2024-0042": goodResponse},
		nil)

	batch, err := env.orch.Run(context.Background(), "mixed.xlsx",
		[]string{urlA, "ftp://docs.example.com/x.pdf", "https://docs.example.com/readme.txt"},
		"ops@example.com")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	if batch.TotalCount != 3 || batch.ProcessedCount != 3 {
		t.Errorf("total/processed = %d/%d, want 3/3", batch.TotalCount, batch.ProcessedCount)
	}
	if batch.SuccessCount != 1 || batch.FailedCount != 2 {
		t.Errorf("success/failed = %d/%d, want 1/2", batch.SuccessCount, batch.FailedCount)
	}
	// Invalid URLs never reach the LLM.
	if env.llm.callCount() != 1 {
		t.Errorf("llm calls = %d, want 1", env.llm.callCount())
	}
}

func TestRunRequiresCreatedBy(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	if _, err := env.orch.Run(context.Background(), "x.xlsx",
		[]string{"https://docs.example.com/a.pdf"}, ""); err == nil {
		t.Fatal("expected error for missing createdBy")
	}
}

func TestProcessItemFetchFailure(t *testing.T) {
	url := "https://docs.example.com/gone.pdf"
	env := newTestEnv(t, nil, nil,
		map[string]error{url: errors.New("connect timeout")})

	batch := &entity.Batch{FileName: "x.xlsx", TotalCount: 1, CreatedBy: "ops@example.com"}
	if err := env.batches.Create(context.Background(), batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	outcome := env.proc.ProcessItem(context.Background(), Item{
		BatchID:   batch.ID,
		SourceURL: url,
		CreatedBy: "ops@example.com",
	})
	if outcome.Kind != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome.Kind)
	}
	if !strings.Contains(outcome.Reason, "fetch") {
		t.Errorf("reason = %q, want fetch error", outcome.Reason)
	}

	p, err := env.batches.Progress(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Processed != 1 || p.Failed != 1 {
		t.Errorf("processed/failed = %d/%d, want 1/1", p.Processed, p.Failed)
	}
}

func TestProcessItemOCRErrorRejects(t *testing.T) {
	// The OCR stub errors for unknown documents; the item must degrade to a
	// gate rejection, not an infrastructure failure.
	url := "https://docs.example.com/corrupt.jpg"
	env := newTestEnv(t, map[string]string{}, nil, nil)

	batch := &entity.Batch{FileName: "x.xlsx", TotalCount: 1, CreatedBy: "ops@example.com"}
	if err := env.batches.Create(context.Background(), batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	outcome := env.proc.ProcessItem(context.Background(), Item{
		BatchID:   batch.ID,
		SourceURL: url,
		CreatedBy: "ops@example.com",
	})
	if outcome.Kind != OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", outcome.Kind)
	}
	if outcome.Reason != "empty OCR text" {
		t.Errorf("reason = %q, want empty OCR text", outcome.Reason)
	}
	if env.llm.callCount() != 0 {
		t.Errorf("llm calls = %d, want 0", env.llm.callCount())
	}
}

func TestProcessItemMalformedLLMResponse(t *testing.T) {
	url := "https://docs.example.com/invoice-a.pdf"
	env := newTestEnv(t,
		map[string]string{url: goodInvoiceText},
		map[string]string{"INV-2024-0042": "the invoice number is INV-2024-0042"},
		nil)

	batch := &entity.Batch{FileName: "x.xlsx", TotalCount: 1, CreatedBy: "ops@example.com"}
	if err := env.batches.Create(context.Background(), batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	outcome := env.proc.ProcessItem(context.Background(), Item{
		BatchID:   batch.ID,
		SourceURL: url,
		CreatedBy: "ops@example.com",
	})
	if outcome.Kind != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome.Kind)
	}
	if !strings.Contains(outcome.Reason, "json") {
		t.Errorf("reason = %q, want a json extraction error", outcome.Reason)
	}
}

func TestProcessItemFiltersExtraResponseKeys(t *testing.T) {
	// Model chatter keys ride along in the response; they are filtered out
	// of the stored record, never treated as a schema failure.
	url := "https://docs.example.com/invoice-a.pdf"
	withExtra := `{"Invoice No": "INV-2024-0042", "Supplier GSTIN": "29ABCDE1234F1Z5", "Invoice Date": "2024-03-15", "Total Amount": 11800.50, "Currency": "INR"}`
	env := newTestEnv(t,
		map[string]string{url: goodInvoiceText},
		map[string]string{"INV-2024-0042": withExtra},
		nil)

	batch := &entity.Batch{FileName: "x.xlsx", TotalCount: 1, CreatedBy: "ops@example.com"}
	if err := env.batches.Create(context.Background(), batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	outcome := env.proc.ProcessItem(context.Background(), Item{
		BatchID:   batch.ID,
		SourceURL: url,
		CreatedBy: "ops@example.com",
	})
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %s (%s), want success", outcome.Kind, outcome.Reason)
	}

	rec, err := env.records.Get(context.Background(), outcome.RecordID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if _, ok := rec.ExtractedData["Currency"]; ok {
		t.Errorf("unconfigured key stored: %v", rec.ExtractedData)
	}
	if rec.ExtractedData["Invoice No"] != "INV-2024-0042" {
		t.Errorf("configured keys lost: %v", rec.ExtractedData)
	}
}

func TestProcessItemMissingResponseKeyDegrades(t *testing.T) {
	// A field the model omits entirely degrades to nil in the core fields
	// instead of failing the item.
	url := "https://docs.example.com/invoice-a.pdf"
	withoutGSTIN := `{"Invoice No": "INV-2024-0042", "Invoice Date": "2024-03-15", "Total Amount": 11800.50}`
	env := newTestEnv(t,
		map[string]string{url: goodInvoiceText},
		map[string]string{"INV-2024-0042": withoutGSTIN},
		nil)

	batch := &entity.Batch{FileName: "x.xlsx", TotalCount: 1, CreatedBy: "ops@example.com"}
	if err := env.batches.Create(context.Background(), batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	outcome := env.proc.ProcessItem(context.Background(), Item{
		BatchID:   batch.ID,
		SourceURL: url,
		CreatedBy: "ops@example.com",
	})
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %s (%s), want success", outcome.Kind, outcome.Reason)
	}

	rec, err := env.records.Get(context.Background(), outcome.RecordID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Core.GSTIN != nil {
		t.Errorf("gstin = %v, want nil for omitted field", rec.Core.GSTIN)
	}
	if rec.Core.InvoiceNo == nil || *rec.Core.InvoiceNo != "INV-2024-0042" {
		t.Errorf("invoice no = %v", rec.Core.InvoiceNo)
	}
}

func TestRunBooksRepeatedInvalidURLs(t *testing.T) {
	// The same invalid URL listed twice yields two distinct failure audit
	// rows; their synthetic fingerprints must never collide.
	env := newTestEnv(t, nil, nil, nil)

	bad := "ftp://docs.example.com/x.pdf"
	batch, err := env.orch.Run(context.Background(), "bad.xlsx",
		[]string{bad, bad}, "ops@example.com")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if batch.Status != constants.BatchStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", batch.Status)
	}
	if batch.TotalCount != 2 || batch.FailedCount != 2 {
		t.Errorf("total/failed = %d/%d, want 2/2", batch.TotalCount, batch.FailedCount)
	}

	recs, err := env.records.ListByBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("stored rows = %d, want 2", len(recs))
	}
	if recs[0].Fingerprint == recs[1].Fingerprint {
		t.Error("failure fingerprints collided for repeated url")
	}
}

func TestNewProcessorRequiresFieldSpecs(t *testing.T) {
	_, err := NewProcessor(ProcessorDeps{
		Fetcher: &stubFetcher{},
		OCR:     &stubOCR{},
		LLM:     &stubLLM{},
	})
	if err == nil {
		t.Fatal("expected configuration error for empty field specs")
	}
}

func TestRunLargeBatchBoundedPool(t *testing.T) {
	const n = 25
	urls := make([]string, 0, n)
	ocrTexts := make(map[string]string, n)
	responses := map[string]string{}
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("https://docs.example.com/invoice-%03d.pdf", i)
		urls = append(urls, url)
		marker := fmt.Sprintf("INV-BULK-%03d", i)
		ocrTexts[url] = strings.Replace(goodInvoiceText, "INV-2024-0042", marker, 1)
		responses[marker] = strings.Replace(goodResponse, "INV-2024-0042", marker, 1)
	}

	env := newTestEnv(t, ocrTexts, responses, nil)
	batch, err := env.orch.Run(context.Background(), "bulk.xlsx", urls, "ops@example.com")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if batch.SuccessCount != n || batch.ProcessedCount != n {
		t.Errorf("success/processed = %d/%d, want %d/%d",
			batch.SuccessCount, batch.ProcessedCount, n, n)
	}
}
