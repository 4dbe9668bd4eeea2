// Package fields coerces raw extracted field values into the canonical
// typed forms used for fingerprinting and storage.
package fields

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoicetools/extraction-service/constants"
	"github.com/invoicetools/extraction-service/internal/entity"
)

// placeholder is the sentinel the LLM emits for "field not found".
const placeholder = "-"

// NormalizeCore maps the four named raw keys to canonical typed values.
// It never fails: absent, placeholder, and unparseable values all degrade
// to nil, and nil is a legitimate fingerprint input.
func NormalizeCore(raw map[string]string) entity.CoreFields {
	return entity.CoreFields{
		InvoiceNo: normalizeString(raw[constants.FieldInvoiceNo]),
		GSTIN:     normalizeString(raw[constants.FieldSupplierGSTIN]),
		Date:      normalizeDate(raw[constants.FieldInvoiceDate]),
		Amount:    normalizeAmount(raw[constants.FieldTotalAmount]),
	}
}

func normalizeString(v string) *string {
	if v == "" || v == placeholder {
		return nil
	}
	s := strings.TrimSpace(v)
	if s == "" {
		return nil
	}
	return &s
}

// normalizeAmount parses a decimal after stripping thousands-separator
// commas. "0" is treated as a placeholder, not a genuine amount.
func normalizeAmount(v string) *decimal.Decimal {
	if v == "" || v == placeholder || v == "0" {
		return nil
	}
	s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// dateLayouts are tried in order; first match wins.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02T15:04:05Z07:00",
}

func normalizeDate(v string) *time.Time {
	if v == "" || v == placeholder {
		return nil
	}
	s := strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &t
		}
	}
	return nil
}
