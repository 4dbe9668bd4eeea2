package constants

// BatchStatus is the canonical status for rows in extraction_batches.
type BatchStatus string

// Stable values (store these exact strings in DB).
const (
	BatchStatusProcessing BatchStatus = "PROCESSING" // workers running
	BatchStatusCompleted  BatchStatus = "COMPLETED"  // all items reached a terminal outcome
	BatchStatusFailed     BatchStatus = "FAILED"     // orchestration-level fault
)

// RecordStatus is the canonical status for rows in invoice_records.
type RecordStatus string

const (
	RecordStatusSuccess   RecordStatus = "SUCCESS"   // genuine extraction stored
	RecordStatusDuplicate RecordStatus = "DUPLICATE" // fingerprint already seen
	RecordStatusFailed    RecordStatus = "FAILED"    // audit row for a failed attempt
)
