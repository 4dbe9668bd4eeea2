package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/invoicetools/extraction-service/constants"
	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
)

// BatchRepository defines persistence operations for extraction batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *entity.Batch) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error)
	// RecordOutcome bumps processed_count plus the counter matching the
	// outcome in one atomic statement, so progress reads never observe a
	// processed total ahead of its per-outcome parts.
	RecordOutcome(ctx context.Context, id uuid.UUID, outcome constants.RecordStatus) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	Progress(ctx context.Context, id uuid.UUID) (*entity.Progress, error)
	List(ctx context.Context, createdBy string, limit int) ([]*entity.Batch, error)
}

type batchRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *DB, logger *slog.Logger) BatchRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &batchRepository{db: db, logger: logger}
}

const batchColumns = `id, file_name, total_count, processed_count, success_count,
	duplicate_count, failed_count, status, created_by, started_at, completed_at`

func (r *batchRepository) Create(ctx context.Context, batch *entity.Batch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.StartedAt.IsZero() {
		batch.StartedAt = time.Now().UTC()
	}
	if batch.Status == "" {
		batch.Status = constants.BatchStatusProcessing
	}

	_, err := r.db.SQL.ExecContext(ctx, `
		INSERT INTO extraction_batches
			(id, file_name, total_count, processed_count, success_count,
			 duplicate_count, failed_count, status, created_by, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		batch.ID.String(), batch.FileName, batch.TotalCount,
		batch.ProcessedCount, batch.SuccessCount, batch.DuplicateCount,
		batch.FailedCount, string(batch.Status), batch.CreatedBy, batch.StartedAt)
	if err != nil {
		r.logger.Error("failed to create batch", "batch_id", batch.ID, "error", err)
		return common.NewAppError("DB_ERROR", "failed to create batch", err)
	}

	r.logger.Info("batch created",
		"batch_id", batch.ID,
		"total_count", batch.TotalCount,
		"created_by", batch.CreatedBy)
	return nil
}

func (r *batchRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM extraction_batches WHERE id = $1`, id.String())
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewAppError("NOT_FOUND",
				fmt.Sprintf("batch %s not found", id), common.ErrNotFound)
		}
		return nil, common.NewAppError("DB_ERROR", "failed to get batch", err)
	}
	return batch, nil
}

// outcomeCounter maps a record outcome to the batch counter column it bumps.
func outcomeCounter(outcome constants.RecordStatus) (string, error) {
	switch outcome {
	case constants.RecordStatusSuccess:
		return "success_count", nil
	case constants.RecordStatusDuplicate:
		return "duplicate_count", nil
	case constants.RecordStatusFailed:
		return "failed_count", nil
	default:
		return "", fmt.Errorf("unknown record outcome %q", outcome)
	}
}

func (r *batchRepository) RecordOutcome(ctx context.Context, id uuid.UUID, outcome constants.RecordStatus) error {
	column, err := outcomeCounter(outcome)
	if err != nil {
		return common.NewAppError("INVALID_INPUT", "invalid outcome", err)
	}

	query := fmt.Sprintf(`
		UPDATE extraction_batches
		SET processed_count = processed_count + 1,
		    %s = %s + 1
		WHERE id = $1`, column, column)
	res, err := r.db.SQL.ExecContext(ctx, query, id.String())
	if err != nil {
		r.logger.Error("failed to record outcome",
			"batch_id", id, "outcome", outcome, "error", err)
		return common.NewAppError("DB_ERROR", "failed to record outcome", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("NOT_FOUND",
			fmt.Sprintf("batch %s not found", id), common.ErrNotFound)
	}
	return nil
}

func (r *batchRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, constants.BatchStatusCompleted)
}

func (r *batchRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, constants.BatchStatusFailed)
}

func (r *batchRepository) finish(ctx context.Context, id uuid.UUID, status constants.BatchStatus) error {
	res, err := r.db.SQL.ExecContext(ctx, `
		UPDATE extraction_batches
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4`,
		string(status), time.Now().UTC(), id.String(),
		string(constants.BatchStatusProcessing))
	if err != nil {
		r.logger.Error("failed to finish batch",
			"batch_id", id, "status", status, "error", err)
		return common.NewAppError("DB_ERROR", "failed to finish batch", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already terminal or missing; terminal states never regress.
		return common.NewAppError("NOT_FOUND",
			fmt.Sprintf("batch %s not in PROCESSING state", id), common.ErrNotFound)
	}

	r.logger.Info("batch finished", "batch_id", id, "status", status)
	return nil
}

func (r *batchRepository) Progress(ctx context.Context, id uuid.UUID) (*entity.Progress, error) {
	var p entity.Progress
	var status string
	err := r.db.SQL.QueryRowContext(ctx, `
		SELECT total_count, processed_count, success_count,
		       duplicate_count, failed_count, status
		FROM extraction_batches WHERE id = $1`, id.String()).
		Scan(&p.Total, &p.Processed, &p.Success, &p.Duplicate, &p.Failed, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewAppError("NOT_FOUND",
				fmt.Sprintf("batch %s not found", id), common.ErrNotFound)
		}
		return nil, common.NewAppError("DB_ERROR", "failed to get batch progress", err)
	}
	p.Status = constants.BatchStatus(status)
	return &p, nil
}

func (r *batchRepository) List(ctx context.Context, createdBy string, limit int) ([]*entity.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.SQL.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM extraction_batches
		WHERE ($1 = '' OR created_by = $2)
		ORDER BY started_at DESC
		LIMIT $3`, createdBy, createdBy, limit)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to list batches", err)
	}
	defer rows.Close()

	var batches []*entity.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan batch", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*entity.Batch, error) {
	var b entity.Batch
	var id, status string
	var completedAt sql.NullTime
	err := row.Scan(&id, &b.FileName, &b.TotalCount, &b.ProcessedCount,
		&b.SuccessCount, &b.DuplicateCount, &b.FailedCount, &status,
		&b.CreatedBy, &b.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	b.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse batch id: %w", err)
	}
	b.Status = constants.BatchStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}
