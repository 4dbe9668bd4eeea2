package llm

import (
	"strings"
	"testing"

	"github.com/invoicetools/extraction-service/internal/entity"
)

func TestBuildInvoicePrompt(t *testing.T) {
	specs := entity.DefaultFieldSpecs()
	prompt, err := BuildInvoicePrompt(specs, "Invoice No: INV-1\nTotal: 4500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		`"Invoice No" (type: string, default: "-")`,
		`"Total Amount" (type: number, default: 0)`,
		`"Invoice Date" (type: date, default: null)`,
		"--- RAW OCR TEXT START ---",
		"Invoice No: INV-1",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildInvoicePromptEmptySpecs(t *testing.T) {
	if _, err := BuildInvoicePrompt(nil, "text"); err == nil {
		t.Fatal("expected configuration error for empty field specs")
	}
}

func TestBuildFieldSchemaValidation(t *testing.T) {
	specs := []entity.FieldSpec{
		{Name: "Invoice No", Type: entity.FieldTypeString},
		{Name: "Total Amount", Type: entity.FieldTypeNumber},
	}
	schema := BuildFieldSchema(specs)

	ok := []byte(`{"Invoice No": "INV-1", "Total Amount": 4500.5}`)
	if err := ValidateJSONAgainstSchema(schema, ok); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	// Missing keys degrade to nil in the normalizer; not a schema error.
	missing := []byte(`{"Invoice No": "INV-1"}`)
	if err := ValidateJSONAgainstSchema(schema, missing); err != nil {
		t.Errorf("payload with missing field should pass validation: %v", err)
	}

	// Extra keys are filtered by the allowlist downstream; not a schema error.
	extra := []byte(`{"Invoice No": "INV-1", "Total Amount": 1, "Surprise": "x"}`)
	if err := ValidateJSONAgainstSchema(schema, extra); err != nil {
		t.Errorf("payload with extra field should pass validation: %v", err)
	}

	// A known field with a structured value is a genuine shape error.
	badShape := []byte(`{"Invoice No": ["INV-1", "INV-2"], "Total Amount": 1}`)
	if err := ValidateJSONAgainstSchema(schema, badShape); err == nil {
		t.Error("payload with array-valued field should fail validation")
	}
}
