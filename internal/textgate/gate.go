// Package textgate scores raw OCR output to decide whether it is plausibly
// an invoice, so garbage and blank scans never reach the LLM.
package textgate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Config holds the empirically chosen gate thresholds. They are knobs, not
// fixed truths; zero values fall back to the defaults below.
type Config struct {
	MinScore              int     // signals required out of 5
	MinLength             int     // stripped rune count floor
	MinNumericRuns        int     // digit runs required anywhere in the text
	MinDigitDensity       float64 // digits / runes
	MinStructuredLines    int     // lines longer than 3 chars
	MultilingualMinLength int     // stripped floor when non-Latin scripts present
	MinLatinWords         int     // words of length >= 3 on the pure-Latin path
}

// DefaultConfig returns the thresholds the production pipeline runs with.
func DefaultConfig() Config {
	return Config{
		MinScore:              3,
		MinLength:             30,
		MinNumericRuns:        4,
		MinDigitDensity:       0.05,
		MinStructuredLines:    6,
		MultilingualMinLength: 40,
		MinLatinWords:         8,
	}
}

// Gate is the OCR-input quality gate. Assess is a pure function of the text.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MinNumericRuns <= 0 {
		cfg.MinNumericRuns = def.MinNumericRuns
	}
	if cfg.MinDigitDensity <= 0 {
		cfg.MinDigitDensity = def.MinDigitDensity
	}
	if cfg.MinStructuredLines <= 0 {
		cfg.MinStructuredLines = def.MinStructuredLines
	}
	if cfg.MultilingualMinLength <= 0 {
		cfg.MultilingualMinLength = def.MultilingualMinLength
	}
	if cfg.MinLatinWords <= 0 {
		cfg.MinLatinWords = def.MinLatinWords
	}
	return &Gate{cfg: cfg}
}

var (
	// DD/MM/YYYY-like or YYYY/MM/DD-like, with - or / separators.
	reDatePattern = regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b|\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`)
	reNumericRun  = regexp.MustCompile(`\d+`)
)

const separatorChars = ":-/|：－／｜"

// Assess returns whether the text is worth an LLM call and, on rejection,
// a human-readable reason suitable for the failure audit record.
func (g *Gate) Assess(text string) (bool, string) {
	if text == "" {
		return false, "empty OCR text"
	}

	stripped := strings.Join(strings.Fields(text), " ")
	strippedLen := len([]rune(stripped))
	if strippedLen < g.cfg.MinLength {
		return false, fmt.Sprintf("OCR text too short (%d chars, minimum %d required)", strippedLen, g.cfg.MinLength)
	}

	if runs := len(reNumericRun.FindAllString(text, -1)); runs < g.cfg.MinNumericRuns {
		return false, fmt.Sprintf("too few numeric runs (%d, minimum %d required)", runs, g.cfg.MinNumericRuns)
	}

	scripts := DetectScripts(text)

	score := 0
	if reDatePattern.MatchString(text) {
		score++
	}
	if digitDensity(stripped) >= g.cfg.MinDigitDensity {
		score++
	}
	if strings.ContainsAny(text, separatorChars) {
		score++
	}
	if structuredLines(text) >= g.cfg.MinStructuredLines {
		score++
	}
	if len(scripts) > 0 {
		score++
	}

	if score < g.cfg.MinScore {
		return false, fmt.Sprintf("structure score %d below threshold %d (likely not an invoice)", score, g.cfg.MinScore)
	}

	// Short multilingual fragments are unreliable even when they look structured.
	if len(scripts) > 0 {
		if strippedLen < g.cfg.MultilingualMinLength {
			return false, fmt.Sprintf("multilingual text too short (%d chars, minimum %d required)", strippedLen, g.cfg.MultilingualMinLength)
		}
		return true, ""
	}

	if words := meaningfulWords(stripped); words < g.cfg.MinLatinWords {
		return false, fmt.Sprintf("too few meaningful words (%d, minimum %d required)", words, g.cfg.MinLatinWords)
	}
	return true, ""
}

func digitDensity(s string) float64 {
	total, digits := 0, 0
	for _, r := range s {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(digits) / float64(total)
}

func structuredLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if len([]rune(strings.TrimSpace(line))) > 3 {
			n++
		}
	}
	return n
}

// meaningfulWords counts whitespace-separated tokens of length >= 3 that
// contain at least one letter, so rows of amounts do not count as prose.
func meaningfulWords(s string) int {
	n := 0
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) < 3 {
			continue
		}
		for _, r := range w {
			if unicode.IsLetter(r) {
				n++
				break
			}
		}
	}
	return n
}
