package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoicetools/extraction-service/constants"
	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/fingerprint"
	"github.com/invoicetools/extraction-service/internal/metrics"
	"github.com/invoicetools/extraction-service/internal/repository"
	"github.com/invoicetools/extraction-service/internal/urlfilter"
)

// DefaultWorkers bounds batch concurrency when no explicit limit is set.
const DefaultWorkers = 10

// Orchestrator fans a batch of source URLs over a bounded worker pool and
// owns the batch status transitions around it.
type Orchestrator struct {
	processor   *Processor
	batches     repository.BatchRepository
	workers     int
	itemTimeout time.Duration
	logger      *slog.Logger
}

func NewOrchestrator(processor *Processor, batches repository.BatchRepository,
	workers int, itemTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		processor:   processor,
		batches:     batches,
		workers:     workers,
		itemTimeout: itemTimeout,
		logger:      logger,
	}
}

// Run processes one batch to completion and returns the final batch row.
// createdBy is the acting user's identity and is required; there is no
// ambient "current user".
//
// Invalid URLs consume a slot in the totals and are recorded as failures
// without touching OCR or the LLM. Duplicate URLs within the input are
// silently dropped before counting.
func (o *Orchestrator) Run(ctx context.Context, fileName string, urls []string, createdBy string) (*entity.Batch, error) {
	batch, valid, invalid, err := o.create(ctx, fileName, urls, createdBy)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, batch, valid, invalid, fileName, createdBy)
}

// Start creates the batch row synchronously and processes it in the
// background, so API callers can poll progress by the returned batch ID.
// The background work is detached from the caller's request context.
func (o *Orchestrator) Start(ctx context.Context, fileName string, urls []string, createdBy string) (*entity.Batch, error) {
	batch, valid, invalid, err := o.create(ctx, fileName, urls, createdBy)
	if err != nil {
		return nil, err
	}
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := o.execute(bgCtx, batch, valid, invalid, fileName, createdBy); err != nil {
			o.logger.Error("batch.run.error", "batch_id", batch.ID, "error", err)
		}
	}()
	return batch, nil
}

func (o *Orchestrator) create(ctx context.Context, fileName string, urls []string, createdBy string) (*entity.Batch, []string, []string, error) {
	if createdBy == "" {
		return nil, nil, nil, common.NewAppError("INVALID_INPUT",
			"createdBy is required", common.ErrInvalidInput)
	}

	valid, invalid := urlfilter.FilterBatch(urls, true)

	batch := &entity.Batch{
		FileName:   fileName,
		TotalCount: len(valid) + len(invalid),
		CreatedBy:  createdBy,
	}
	if err := o.batches.Create(ctx, batch); err != nil {
		return nil, nil, nil, err
	}

	o.logger.Info("batch.run.start",
		"batch_id", batch.ID,
		"valid", len(valid),
		"invalid", len(invalid),
		"workers", o.workers,
	)
	return batch, valid, invalid, nil
}

func (o *Orchestrator) execute(ctx context.Context, batch *entity.Batch, valid, invalid []string, fileName, createdBy string) (*entity.Batch, error) {
	if err := o.recordInvalid(ctx, batch, invalid, createdBy); err != nil {
		o.failBatch(ctx, batch)
		return nil, err
	}

	o.runPool(ctx, batch, valid, fileName, createdBy)

	if ctx.Err() != nil {
		o.failBatch(ctx, batch)
		return nil, common.NewAppError("BATCH_ABORTED",
			"batch processing interrupted", ctx.Err())
	}

	if err := o.batches.MarkCompleted(ctx, batch.ID); err != nil {
		return nil, err
	}
	incCounter(metrics.BatchesTotal, "completed")

	final, err := o.batches.Get(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	o.logger.Info("batch.run.done",
		"batch_id", final.ID,
		"processed", final.ProcessedCount,
		"success", final.SuccessCount,
		"duplicate", final.DuplicateCount,
		"failed", final.FailedCount,
	)
	return final, nil
}

func (o *Orchestrator) runPool(ctx context.Context, batch *entity.Batch, valid []string, fileName, createdBy string) {
	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				itemCtx := ctx
				var cancel context.CancelFunc
				if o.itemTimeout > 0 {
					itemCtx, cancel = context.WithTimeout(ctx, o.itemTimeout)
				}
				o.processor.ProcessItem(itemCtx, Item{
					BatchID:   batch.ID,
					SourceURL: url,
					FileName:  fileName,
					CreatedBy: createdBy,
				})
				if cancel != nil {
					cancel()
				}
			}
		}()
	}

	for _, url := range valid {
		select {
		case jobs <- url:
		case <-ctx.Done():
			// Stop feeding; in-flight items finish and the join below
			// still holds.
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

// recordInvalid books failure audit rows for URLs that never reach a worker.
func (o *Orchestrator) recordInvalid(ctx context.Context, batch *entity.Batch, invalid []string, createdBy string) error {
	for _, raw := range invalid {
		rec := &entity.InvoiceRecord{
			BatchID:     batch.ID,
			SourceURL:   raw,
			Fingerprint: fingerprint.ForFailure(raw, uuid.NewString()),
			LastError:   "invalid source url",
			CreatedBy:   createdBy,
		}
		if err := o.processor.records.StoreFailure(ctx, rec); err != nil {
			return err
		}
		if err := o.batches.RecordOutcome(ctx, batch.ID, constants.RecordStatusFailed); err != nil {
			return err
		}
		incCounter(metrics.ExtractionsTotal, string(OutcomeFailed))
		incCounter(metrics.GateRejections, "url")
	}
	return nil
}

func (o *Orchestrator) failBatch(ctx context.Context, batch *entity.Batch) {
	if err := o.batches.MarkFailed(context.WithoutCancel(ctx), batch.ID); err != nil {
		o.logger.Error("batch.fail.error", "batch_id", batch.ID, "error", err)
	}
	incCounter(metrics.BatchesTotal, "failed")
}
