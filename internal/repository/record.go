package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoicetools/extraction-service/constants"
	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
)

// RecordRepository defines persistence operations for invoice records.
type RecordRepository interface {
	// StoreExtraction inserts a SUCCESS record. When the fingerprint is
	// already taken the existing row stays authoritative: only its
	// attempt_count and source_url are updated, the outcome is DUPLICATE,
	// and rec.ID is rewritten to the winning row's ID. The unique index
	// arbitrates concurrent writers, not application-level locking.
	StoreExtraction(ctx context.Context, rec *entity.InvoiceRecord) (constants.RecordStatus, error)
	// StoreFailure inserts a FAILED audit row with a synthetic per-attempt
	// fingerprint, so failures never contend on the dedup index.
	StoreFailure(ctx context.Context, rec *entity.InvoiceRecord) error
	Get(ctx context.Context, id uuid.UUID) (*entity.InvoiceRecord, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*entity.InvoiceRecord, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.InvoiceRecord, error)
}

type recordRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewRecordRepository creates a new invoice record repository.
func NewRecordRepository(db *DB, logger *slog.Logger) RecordRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &recordRepository{db: db, logger: logger}
}

const recordColumns = `id, batch_id, source_file_name, source_url, invoice_no,
	supplier_gstin, invoice_date, invoice_amount, fingerprint, extracted_data,
	attempt_count, last_error, status, created_by, created_at`

func (r *recordRepository) StoreExtraction(ctx context.Context, rec *entity.InvoiceRecord) (constants.RecordStatus, error) {
	rec.Status = constants.RecordStatusSuccess
	if err := r.insert(ctx, rec); err != nil {
		if !IsUniqueViolation(err) {
			r.logger.Error("failed to store extraction",
				"batch_id", rec.BatchID, "fingerprint", rec.Fingerprint, "error", err)
			return "", common.NewAppError("DB_ERROR", "failed to store extraction", err)
		}
		winnerID, err := r.touchDuplicate(ctx, rec.Fingerprint, rec.SourceURL)
		if err != nil {
			return "", err
		}
		rec.ID = winnerID
		r.logger.Info("duplicate invoice detected",
			"batch_id", rec.BatchID,
			"fingerprint", rec.Fingerprint,
			"source_url", rec.SourceURL)
		return constants.RecordStatusDuplicate, nil
	}

	r.logger.Info("extraction stored",
		"batch_id", rec.BatchID,
		"record_id", rec.ID,
		"fingerprint", rec.Fingerprint)
	return constants.RecordStatusSuccess, nil
}

func (r *recordRepository) StoreFailure(ctx context.Context, rec *entity.InvoiceRecord) error {
	rec.Status = constants.RecordStatusFailed
	if err := r.insert(ctx, rec); err != nil {
		r.logger.Error("failed to store failure record",
			"batch_id", rec.BatchID, "source_url", rec.SourceURL, "error", err)
		return common.NewAppError("DB_ERROR", "failed to store failure record", err)
	}
	return nil
}

func (r *recordRepository) insert(ctx context.Context, rec *entity.InvoiceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.AttemptCount == 0 {
		rec.AttemptCount = 1
	}

	extracted := rec.ExtractedData
	if extracted == nil {
		extracted = map[string]string{}
	}
	data, err := json.Marshal(extracted)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}

	var invoiceDate *string
	if rec.Core.Date != nil {
		d := rec.Core.Date.Format("2006-01-02")
		invoiceDate = &d
	}
	var amount *string
	if rec.Core.Amount != nil {
		a := rec.Core.Amount.String()
		amount = &a
	}
	var lastError *string
	if rec.LastError != "" {
		lastError = &rec.LastError
	}

	_, err = r.db.SQL.ExecContext(ctx, `
		INSERT INTO invoice_records
			(id, batch_id, source_file_name, source_url, invoice_no,
			 supplier_gstin, invoice_date, invoice_amount, fingerprint,
			 extracted_data, attempt_count, last_error, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID.String(), rec.BatchID.String(), rec.SourceFileName, rec.SourceURL,
		rec.Core.InvoiceNo, rec.Core.GSTIN, invoiceDate, amount, rec.Fingerprint,
		string(data), rec.AttemptCount, lastError, string(rec.Status),
		rec.CreatedBy, rec.CreatedAt)
	return err
}

// touchDuplicate bumps the winning row's bookkeeping and returns its ID.
func (r *recordRepository) touchDuplicate(ctx context.Context, fingerprint, sourceURL string) (uuid.UUID, error) {
	var id string
	err := r.db.SQL.QueryRowContext(ctx, `
		UPDATE invoice_records
		SET attempt_count = attempt_count + 1, source_url = $1
		WHERE fingerprint = $2
		RETURNING id`, sourceURL, fingerprint).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Insert lost the race but the winner is gone. Treat as
			// internal; retrying the whole item is the caller's call.
			return uuid.Nil, common.NewAppError("DB_ERROR",
				fmt.Sprintf("no record found for fingerprint %s", fingerprint),
				common.ErrInternal)
		}
		return uuid.Nil, common.NewAppError("DB_ERROR", "failed to update duplicate record", err)
	}
	winnerID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, common.NewAppError("DB_ERROR", "failed to parse duplicate record id", err)
	}
	return winnerID, nil
}

func (r *recordRepository) Get(ctx context.Context, id uuid.UUID) (*entity.InvoiceRecord, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM invoice_records WHERE id = $1`, id.String())
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewAppError("NOT_FOUND",
				fmt.Sprintf("record %s not found", id), common.ErrNotFound)
		}
		return nil, common.NewAppError("DB_ERROR", "failed to get record", err)
	}
	return rec, nil
}

func (r *recordRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*entity.InvoiceRecord, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM invoice_records WHERE fingerprint = $1`, fingerprint)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewAppError("NOT_FOUND",
				"record not found for fingerprint", common.ErrNotFound)
		}
		return nil, common.NewAppError("DB_ERROR", "failed to get record", err)
	}
	return rec, nil
}

func (r *recordRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.InvoiceRecord, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM invoice_records
		WHERE batch_id = $1
		ORDER BY created_at, id`, batchID.String())
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to list records", err)
	}
	defer rows.Close()

	var records []*entity.InvoiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan record", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row rowScanner) (*entity.InvoiceRecord, error) {
	var rec entity.InvoiceRecord
	var id, batchID, status, extracted string
	var invoiceNo, gstin, invoiceDate, amount, lastError sql.NullString
	err := row.Scan(&id, &batchID, &rec.SourceFileName, &rec.SourceURL,
		&invoiceNo, &gstin, &invoiceDate, &amount, &rec.Fingerprint,
		&extracted, &rec.AttemptCount, &lastError, &status,
		&rec.CreatedBy, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	rec.BatchID, err = uuid.Parse(batchID)
	if err != nil {
		return nil, fmt.Errorf("parse batch id: %w", err)
	}
	rec.Status = constants.RecordStatus(status)

	if invoiceNo.Valid {
		rec.Core.InvoiceNo = &invoiceNo.String
	}
	if gstin.Valid {
		rec.Core.GSTIN = &gstin.String
	}
	if invoiceDate.Valid {
		d, err := time.Parse("2006-01-02", invoiceDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse invoice date: %w", err)
		}
		rec.Core.Date = &d
	}
	if amount.Valid {
		a, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("parse invoice amount: %w", err)
		}
		rec.Core.Amount = &a
	}
	if lastError.Valid {
		rec.LastError = lastError.String
	}
	if err := json.Unmarshal([]byte(extracted), &rec.ExtractedData); err != nil {
		return nil, fmt.Errorf("unmarshal extracted data: %w", err)
	}
	return &rec, nil
}
