// Package respgate detects LLM responses that parsed cleanly but carry no
// information: an "empty template" where every field is a placeholder.
package respgate

import "strings"

// placeholders are the lower-cased sentinel values that mean "not found".
var placeholders = map[string]struct{}{
	"-": {}, "0": {}, "0.0": {}, "0.00": {}, "0.000": {},
	"n/a": {}, "na": {}, "null": {}, "none": {}, "": {},
	"not available": {}, "not found": {}, "nil": {}, "blank": {},
}

// DefaultPlaceholderRatio is the rejection threshold: at or above this
// fraction of placeholder values, the response is an empty template.
const DefaultPlaceholderRatio = 0.7

// Gate holds the configurable rejection threshold.
type Gate struct {
	ratio float64
}

func NewGate(ratio float64) *Gate {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultPlaceholderRatio
	}
	return &Gate{ratio: ratio}
}

// IsGenuine reports whether the extracted mapping carries usable signal.
// Empty mappings are never genuine.
func (g *Gate) IsGenuine(data map[string]string) bool {
	if len(data) == 0 {
		return false
	}

	placeholderCount := 0
	for _, v := range data {
		norm := strings.ToLower(strings.TrimSpace(v))
		if _, ok := placeholders[norm]; ok {
			placeholderCount++
		}
	}

	return float64(placeholderCount)/float64(len(data)) < g.ratio
}
