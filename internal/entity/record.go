package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoicetools/extraction-service/constants"
)

// CoreFields are the four canonical invoice identity fields after
// normalization. A nil member means the field was absent, a placeholder,
// or unparseable; nil is still a legitimate fingerprint input.
type CoreFields struct {
	InvoiceNo *string
	GSTIN     *string
	Date      *time.Time
	Amount    *decimal.Decimal
}

// InvoiceRecord represents one stored extraction attempt.
// Once status is SUCCESS the extracted data is immutable; later attempts
// with the same fingerprint only bump bookkeeping fields.
type InvoiceRecord struct {
	ID             uuid.UUID              `json:"id"`
	BatchID        uuid.UUID              `json:"batch_id"`
	SourceFileName string                 `json:"source_file_name"`
	SourceURL      string                 `json:"source_url"`
	Core           CoreFields             `json:"-"`
	Fingerprint    string                 `json:"fingerprint"`
	ExtractedData  map[string]string      `json:"extracted_data"`
	AttemptCount   int                    `json:"attempt_count"`
	LastError      string                 `json:"last_error,omitempty"`
	Status         constants.RecordStatus `json:"status"`
	CreatedBy      string                 `json:"created_by"`
	CreatedAt      time.Time              `json:"created_at"`
}
