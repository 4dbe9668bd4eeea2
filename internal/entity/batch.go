package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/invoicetools/extraction-service/constants"
)

// Batch represents one extraction batch for data transfer between layers.
type Batch struct {
	ID             uuid.UUID             `json:"id"`
	FileName       string                `json:"file_name"`
	TotalCount     int                   `json:"total_count"`
	ProcessedCount int                   `json:"processed_count"`
	SuccessCount   int                   `json:"success_count"`
	DuplicateCount int                   `json:"duplicate_count"`
	FailedCount    int                   `json:"failed_count"`
	Status         constants.BatchStatus `json:"status"`
	CreatedBy      string                `json:"created_by"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// Progress is the consistency-sensitive counter view of a batch.
type Progress struct {
	Total     int                   `json:"total"`
	Processed int                   `json:"processed"`
	Success   int                   `json:"success"`
	Duplicate int                   `json:"duplicate"`
	Failed    int                   `json:"failed"`
	Status    constants.BatchStatus `json:"status"`
}
