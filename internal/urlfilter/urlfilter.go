// Package urlfilter validates and deduplicates candidate source URLs before
// any OCR or LLM cost is incurred. Everything here is pure; no network I/O.
package urlfilter

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/invoicetools/extraction-service/constants"
)

// Normalize trims whitespace and control characters, requires an http/https
// scheme with a non-empty host, strips a single trailing slash, and requires
// the path extension (case-insensitive) to be in the allowed set.
func Normalize(raw string) (string, error) {
	// IsSpace covers U+00A0 (non-breaking space); U+200B and U+FEFF do not
	// count as space but show up in pasted spreadsheet cells.
	cleaned := strings.TrimFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r) || r == '\u200b' || r == '\ufeff'
	})
	if cleaned == "" {
		return "", fmt.Errorf("empty url")
	}
	cleaned = strings.TrimSuffix(cleaned, "/")

	u, err := url.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	ext := constants.NormalizeExt(path.Ext(strings.ToLower(u.Path)))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return "", fmt.Errorf("extension %q not allowed", ext)
	}

	return cleaned, nil
}

// FilterBatch applies Normalize to each candidate. With dedupe enabled, the
// first occurrence of a normalized URL wins and later duplicates are silently
// dropped from valid (they are not reported as invalid).
func FilterBatch(urls []string, dedupe bool) (valid []string, invalid []string) {
	seen := make(map[string]struct{}, len(urls))

	for _, raw := range urls {
		cleaned, err := Normalize(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		if dedupe {
			if _, dup := seen[cleaned]; dup {
				continue
			}
			seen[cleaned] = struct{}{}
		}
		valid = append(valid, cleaned)
	}
	return valid, invalid
}
