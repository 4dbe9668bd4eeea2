package constants

import "strings"

// AllowedExtensions holds the source-URL extensions accepted for extraction.
// Anything else is rejected before OCR or LLM cost is incurred.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"pdf":  {},
	"jfif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// CoreField names are the raw keys the LLM must emit for the four canonical
// invoice identity fields. Fingerprinting depends on these and nothing else.
const (
	FieldInvoiceNo     = "Invoice No"
	FieldSupplierGSTIN = "Supplier GSTIN"
	FieldInvoiceDate   = "Invoice Date"
	FieldTotalAmount   = "Total Amount"
)
