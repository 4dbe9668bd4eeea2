package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
)

// BuildInvoicePrompt renders the extraction prompt from the configured
// field specs and the raw OCR text. The prompt instructs the model to emit
// exactly the configured fields, falling back to each field's typed default
// when a value is not on the document.
//
// Running with no configured fields is a configuration error, not an empty
// prompt.
func BuildInvoicePrompt(specs []entity.FieldSpec, ocrText string) (string, error) {
	if len(specs) == 0 {
		return "", common.NewAppError("CONFIG_ERROR", "no extraction fields configured", common.ErrInvalidInput)
	}

	var instructions, schema []string
	for _, f := range specs {
		instructions = append(instructions,
			fmt.Sprintf("- %q (type: %s, default: %s)", f.Name, f.Type, jsonLiteral(f.DefaultValue())))
		schema = append(schema,
			fmt.Sprintf("%q: %s", f.Name, jsonLiteral(f.DefaultValue())))
	}

	var b strings.Builder
	b.WriteString("You are an invoice data extractor. Extract values ONLY if they clearly belong to a tax invoice.\n")
	b.WriteString("If the document is NOT an invoice, return the full JSON schema with default values only.\n")
	b.WriteString("Each field must be extracted independently; never infer one field from another.\n")
	b.WriteString("Do not translate, paraphrase, or romanize text. Dates may be reformatted, numeric values may lose commas, currency may become an ISO code; everything else must be returned exactly as seen.\n")
	b.WriteString("\nThe output JSON must contain EXACTLY these fields:\n")
	b.WriteString(strings.Join(instructions, "\n"))
	b.WriteString("\n\n--- RAW OCR TEXT START ---\n")
	b.WriteString(ocrText)
	b.WriteString("\n--- RAW OCR TEXT END ---\n")
	b.WriteString("\nReturn STRICTLY VALID JSON. No markdown, no comments, no explanations.\n")
	b.WriteString("{" + strings.Join(schema, ", ") + "}")

	return b.String(), nil
}

func jsonLiteral(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
