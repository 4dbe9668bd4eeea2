// extract-batch runs one extraction batch from a local spreadsheet and
// writes the results workbook, without the HTTP server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/export"
	"github.com/invoicetools/extraction-service/internal/ingest"
	"github.com/invoicetools/extraction-service/internal/llm"
	"github.com/invoicetools/extraction-service/internal/ocr"
	"github.com/invoicetools/extraction-service/internal/pipeline"
	"github.com/invoicetools/extraction-service/internal/repository"
)

func main() {
	var (
		inPath  = flag.String("file", "", "spreadsheet with source URLs (.xlsx, .csv, .txt)")
		outPath = flag.String("out", "", "results workbook path (default extractions-<batch>.xlsx)")
		user    = flag.String("user", "", "acting user recorded on the batch")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *inPath == "" || *user == "" {
		logger.Error("usage: extract-batch -file urls.xlsx -user you@example.com [-out results.xlsx]")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL env var is required")
		os.Exit(2)
	}
	if cfg.LLM.APIKey == "" {
		logger.Error("LLM_API_KEY env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	urls, err := ingest.ReadURLsFile(*inPath)
	if err != nil {
		logger.Error("reading input", "file", *inPath, "error", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		logger.Error("no source urls found in input", "file", *inPath)
		os.Exit(1)
	}

	db, err := repository.Open(ctx, repository.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	batches := repository.NewBatchRepository(db, logger)
	records := repository.NewRecordRepository(db, logger)
	specs := entity.DefaultFieldSpecs()

	processor, err := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Fetcher: pipeline.NewHTTPFetcher(cfg.Batch.FetchTimeout, logger),
		OCR: ocr.NewExtractor(ocr.Config{
			Tesseract:   cfg.OCR.Tesseract,
			TessdataDir: cfg.OCR.TessdataDir,
			Language:    cfg.OCR.Language,
		}, logger),
		LLM: llm.NewGeminiClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger),
		Model:   cfg.LLM.Model,
		Specs:   specs,
		Records: records,
		Batches: batches,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("building processor", "error", err)
		os.Exit(1)
	}

	orch := pipeline.NewOrchestrator(processor, batches,
		cfg.Batch.Workers, cfg.Batch.ItemTimeout, logger)

	start := time.Now()
	batch, err := orch.Run(ctx, *inPath, urls, *user)
	if err != nil {
		logger.Error("batch run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("batch finished",
		"batch_id", batch.ID,
		"total", batch.TotalCount,
		"success", batch.SuccessCount,
		"duplicate", batch.DuplicateCount,
		"failed", batch.FailedCount,
		"elapsed", time.Since(start).Round(time.Second).String(),
	)

	stored, err := records.ListByBatch(ctx, batch.ID)
	if err != nil {
		logger.Error("listing results", "error", err)
		os.Exit(1)
	}

	out := *outPath
	if out == "" {
		out = export.FileName(batch)
	}
	f, err := os.Create(out)
	if err != nil {
		logger.Error("creating results file", "file", out, "error", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := export.WriteBatchXLSX(f, batch, stored, specs); err != nil {
		logger.Error("writing results file", "file", out, "error", err)
		os.Exit(1)
	}
	logger.Info("results written", "file", out, "rows", len(stored))
}
