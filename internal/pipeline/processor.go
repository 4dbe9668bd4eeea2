package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/invoicetools/extraction-service/constants"
	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/fields"
	"github.com/invoicetools/extraction-service/internal/fingerprint"
	"github.com/invoicetools/extraction-service/internal/llm"
	"github.com/invoicetools/extraction-service/internal/metrics"
	"github.com/invoicetools/extraction-service/internal/ocr"
	"github.com/invoicetools/extraction-service/internal/repository"
	"github.com/invoicetools/extraction-service/internal/respgate"
	"github.com/invoicetools/extraction-service/internal/textgate"
)

// Item is one unit of work: a validated source URL within a batch.
type Item struct {
	BatchID   uuid.UUID
	SourceURL string
	FileName  string
	CreatedBy string
}

// ProcessorDeps are the injected collaborators for a Processor. All of them
// are required except Logger.
type ProcessorDeps struct {
	Fetcher  Fetcher
	OCR      ocr.TextExtractor
	LLM      llm.Client
	Model    string
	TextGate *textgate.Gate
	RespGate *respgate.Gate
	Specs    []entity.FieldSpec
	Records  repository.RecordRepository
	Batches  repository.BatchRepository
	Logger   *slog.Logger
}

// Processor runs the extraction flow for one item:
// fetch, OCR, text gate, LLM, JSON extraction, response gate, store.
// It is stateless between items and safe for concurrent use.
type Processor struct {
	fetcher  Fetcher
	ocr      ocr.TextExtractor
	llm      llm.Client
	model    string
	textGate *textgate.Gate
	respGate *respgate.Gate
	specs    []entity.FieldSpec
	allowed  map[string]struct{}
	schema   map[string]any
	records  repository.RecordRepository
	batches  repository.BatchRepository
	logger   *slog.Logger
}

func NewProcessor(deps ProcessorDeps) (*Processor, error) {
	if len(deps.Specs) == 0 {
		return nil, common.NewAppError("CONFIG_ERROR",
			"no extraction fields configured", common.ErrInvalidInput)
	}
	if deps.Fetcher == nil || deps.OCR == nil || deps.LLM == nil ||
		deps.Records == nil || deps.Batches == nil {
		return nil, common.NewAppError("CONFIG_ERROR",
			"processor dependency missing", common.ErrInvalidInput)
	}
	if deps.TextGate == nil {
		deps.TextGate = textgate.NewGate(textgate.DefaultConfig())
	}
	if deps.RespGate == nil {
		deps.RespGate = respgate.NewGate(respgate.DefaultPlaceholderRatio)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Processor{
		fetcher:  deps.Fetcher,
		ocr:      deps.OCR,
		llm:      deps.LLM,
		model:    deps.Model,
		textGate: deps.TextGate,
		respGate: deps.RespGate,
		specs:    deps.Specs,
		allowed:  entity.AllowedNames(deps.Specs),
		schema:   llm.BuildFieldSchema(deps.Specs),
		records:  deps.Records,
		batches:  deps.Batches,
		logger:   deps.Logger,
	}, nil
}

// ProcessItem takes one item to a terminal outcome. The batch progress
// counter moves exactly once per call, no matter which path the item takes;
// the bump survives a canceled item context.
func (p *Processor) ProcessItem(ctx context.Context, item Item) (outcome Outcome) {
	start := time.Now()
	log := p.logger.With("batch_id", item.BatchID, "source_url", item.SourceURL)
	log.Info("item.process.start")

	defer func() {
		bookCtx := context.WithoutCancel(ctx)
		if outcome.Kind == OutcomeRejected || outcome.Kind == OutcomeFailed {
			p.storeFailure(bookCtx, item, outcome, log)
		}
		if err := p.batches.RecordOutcome(bookCtx, item.BatchID, outcome.RecordStatus()); err != nil {
			log.Error("item.progress.error", "error", err)
		}
		incCounter(metrics.ExtractionsTotal, string(outcome.Kind))
		log.Info("item.process.done",
			"outcome", outcome.Kind,
			"reason", outcome.Reason,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}()

	document, err := p.fetcher.Fetch(ctx, item.SourceURL)
	if err != nil {
		return failed("fetch: " + err.Error())
	}

	// OCR faults degrade to empty text; the text gate turns that into a
	// rejection with a stable reason instead of a transport-looking error.
	ocrStart := time.Now()
	text, err := p.ocr.ExtractText(ctx, document)
	if err != nil {
		log.Warn("item.ocr.error", "error", err)
		text = ""
	}
	observeSeconds(metrics.OCRDuration, time.Since(ocrStart))

	if ok, reason := p.textGate.Assess(text); !ok {
		incCounter(metrics.GateRejections, "ocr_text")
		return rejected(reason)
	}

	prompt, err := llm.BuildInvoicePrompt(p.specs, text)
	if err != nil {
		return failed("build prompt: " + err.Error())
	}

	llmStart := time.Now()
	response, err := p.llm.Generate(ctx, prompt, p.model)
	if err != nil {
		return failed("llm: " + err.Error())
	}
	observeSeconds(metrics.LLMDuration, time.Since(llmStart))

	extracted, raw, err := llm.ExtractJSONObject(response)
	if err != nil {
		return failed("extract json: " + err.Error())
	}
	if err := llm.ValidateJSONAgainstSchema(p.schema, raw); err != nil {
		return failed("response schema: " + err.Error())
	}

	// Only configured field names are stored; the model cannot smuggle
	// extra columns into the record.
	data := make(map[string]string, len(extracted))
	for k, v := range extracted {
		if _, ok := p.allowed[k]; ok {
			data[k] = v
		}
	}

	if !p.respGate.IsGenuine(data) {
		incCounter(metrics.GateRejections, "llm_response")
		// The parsed payload goes into the audit row even though it is
		// rejected.
		out := rejected("empty template detected")
		out.Payload = data
		return out
	}

	core := fields.NormalizeCore(data)
	rec := &entity.InvoiceRecord{
		BatchID:        item.BatchID,
		SourceFileName: item.FileName,
		SourceURL:      item.SourceURL,
		Core:           core,
		Fingerprint:    fingerprint.Compute(core),
		ExtractedData:  data,
		CreatedBy:      item.CreatedBy,
	}
	status, err := p.records.StoreExtraction(context.WithoutCancel(ctx), rec)
	if err != nil {
		return failed("store: " + err.Error())
	}
	if status == constants.RecordStatusDuplicate {
		return duplicate(rec.ID)
	}
	return success(rec.ID)
}

func (p *Processor) storeFailure(ctx context.Context, item Item, outcome Outcome, log *slog.Logger) {
	rec := &entity.InvoiceRecord{
		BatchID:        item.BatchID,
		SourceFileName: item.FileName,
		SourceURL:      item.SourceURL,
		Fingerprint:   fingerprint.ForFailure(item.SourceURL, uuid.NewString()),
		ExtractedData: outcome.Payload,
		LastError:     outcome.Reason,
		CreatedBy:     item.CreatedBy,
	}
	if err := p.records.StoreFailure(ctx, rec); err != nil {
		log.Error("item.failure_audit.error", "error", err)
	}
}

// Metrics are optional collaborators; tests run without Init.
func incCounter(c *prometheus.CounterVec, label string) {
	if c != nil {
		c.WithLabelValues(label).Inc()
	}
}

func observeSeconds(h prometheus.Histogram, d time.Duration) {
	if h != nil {
		h.Observe(d.Seconds())
	}
}
