// Package fingerprint derives the stable content hash used for invoice
// deduplication. The hash is a pure function of the four canonical core
// fields and nothing else, so invoices differing only in optional fields
// still collide onto one fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/invoicetools/extraction-service/internal/entity"
)

// nullToken is the literal rendered for a missing field. Two records with
// all four fields missing therefore share one deterministic fingerprint;
// the response gate keeps such records rare.
const nullToken = "null"

// Compute returns the hex SHA-256 of "{invoice_no}|{gstin}|{date}|{amount}"
// over canonical string forms. Deterministic and order-sensitive.
func Compute(core entity.CoreFields) string {
	no := nullToken
	if core.InvoiceNo != nil {
		no = *core.InvoiceNo
	}
	gstin := nullToken
	if core.GSTIN != nil {
		gstin = *core.GSTIN
	}
	date := nullToken
	if core.Date != nil {
		date = core.Date.Format("2006-01-02")
	}
	amount := nullToken
	if core.Amount != nil {
		amount = core.Amount.String()
	}

	sum := sha256.Sum256([]byte(no + "|" + gstin + "|" + date + "|" + amount))
	return hex.EncodeToString(sum[:])
}

// ForFailure returns a synthetic per-attempt fingerprint for FAILED audit
// rows, so the unique index never blocks storing a failure.
func ForFailure(sourceURL string, nonce string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s", sourceURL, nonce)))
	return hex.EncodeToString(sum[:])
}
