package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/llm"
	"github.com/invoicetools/extraction-service/internal/metrics"
	"github.com/invoicetools/extraction-service/internal/ocr"
	"github.com/invoicetools/extraction-service/internal/pipeline"
	"github.com/invoicetools/extraction-service/internal/repository"
	"github.com/invoicetools/extraction-service/internal/respgate"
	"github.com/invoicetools/extraction-service/internal/server"
	"github.com/invoicetools/extraction-service/internal/textgate"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfigFile(".")
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

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
		Model:    cfg.LLM.Model,
		TextGate: textgate.NewGate(textgate.DefaultConfig()),
		RespGate: respgate.NewGate(respgate.DefaultPlaceholderRatio),
		Specs:    specs,
		Records:  records,
		Batches:  batches,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("building processor", "error", err)
		os.Exit(1)
	}

	orch := pipeline.NewOrchestrator(processor, batches,
		cfg.Batch.Workers, cfg.Batch.ItemTimeout, logger)

	srv := server.New(cfg.Server.HTTPAddr, db, batches, records, orch, specs, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http serve", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}
	logger.Info("stopped")
}
