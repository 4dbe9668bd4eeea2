// Package pipeline runs the full per-item extraction flow and the
// concurrent batch orchestration around it.
package pipeline

import (
	"github.com/google/uuid"

	"github.com/invoicetools/extraction-service/constants"
)

// OutcomeKind tags the terminal result of processing one item. Every item
// ends in exactly one of these; quality-gate rejections are first-class
// results, not errors.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeRejected  OutcomeKind = "rejected"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the terminal result of one item.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string    // rejection reason or error text, empty on success
	RecordID uuid.UUID // stored row, when one exists
	// Payload carries the extracted mapping for audit when a response is
	// rejected after parsing (empty-template case).
	Payload map[string]string
}

// RecordStatus maps the outcome onto the stored record status. Rejections
// and failures share the FAILED audit representation; the Reason column
// tells them apart.
func (o Outcome) RecordStatus() constants.RecordStatus {
	switch o.Kind {
	case OutcomeSuccess:
		return constants.RecordStatusSuccess
	case OutcomeDuplicate:
		return constants.RecordStatusDuplicate
	default:
		return constants.RecordStatusFailed
	}
}

func success(id uuid.UUID) Outcome {
	return Outcome{Kind: OutcomeSuccess, RecordID: id}
}

func duplicate(id uuid.UUID) Outcome {
	return Outcome{Kind: OutcomeDuplicate, RecordID: id}
}

func rejected(reason string) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason}
}

func failed(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}
