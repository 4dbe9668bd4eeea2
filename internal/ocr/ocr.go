// Package ocr defines the text-recognition collaborator contract and ships
// a tesseract-backed implementation. The pipeline treats OCR errors as an
// empty result; the text gate then rejects with a precise reason.
package ocr

import "context"

// TextExtractor is the collaborator contract: image bytes in, raw text out.
// Implementations may return an empty string when nothing is recognizable.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}
