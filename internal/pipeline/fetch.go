package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Fetcher retrieves document bytes for a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// maxDocumentBytes caps a single fetched document. Scanned invoices are
// megabytes at most; anything larger is not worth OCR time.
const maxDocumentBytes = 20 << 20

// HTTPFetcher fetches documents over HTTP with a per-request deadline.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewHTTPFetcher(timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warn("fetch body close error", "url", url, "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document body: %w", err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("document exceeds %d byte limit", maxDocumentBytes)
	}

	f.logger.Debug("fetch.ok",
		"url", url,
		"bytes", len(body),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
