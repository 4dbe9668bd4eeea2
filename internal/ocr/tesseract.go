package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config holds tesseract invocation settings.
type Config struct {
	Tesseract   string // binary name or path, default "tesseract"
	TessdataDir string
	Language    string // default "eng"
}

// Extractor runs the tesseract CLI over image bytes via stdin/stdout.
// Each call is independent; the extractor is safe for concurrent use.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// NewExtractorWithRunner is the test seam.
func NewExtractorWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	e := NewExtractor(cfg, logger)
	e.runner = runner
	return e
}

// ExtractText runs `tesseract stdin stdout -l <lang>` over the image bytes.
func (e *Extractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	start := time.Now()

	args := []string{"stdin", "stdout", "-l", e.cfg.Language}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, image, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}

	text := strings.TrimSpace(string(out))
	e.logger.Debug("ocr.extract.ok",
		"bytes_in", len(image),
		"chars_out", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
