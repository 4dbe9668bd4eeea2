package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractJSONObject locates the first '{' and last '}' in an LLM response
// and parses the substring as a JSON object. Model chatter around the
// object (markdown fences, prose) is tolerated; a missing or malformed
// object is an extraction-format error. The raw substring is returned
// alongside the coerced mapping for audit storage and schema validation.
func ExtractJSONObject(output string) (map[string]string, []byte, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start == -1 || end == -1 || end < start {
		return nil, nil, fmt.Errorf("response contains no JSON object")
	}
	raw := []byte(output[start : end+1])

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, raw, fmt.Errorf("parse extracted JSON: %w", err)
	}

	out := make(map[string]string, len(parsed))
	for k, v := range parsed {
		out[k] = stringifyValue(v)
	}
	return out, raw, nil
}

// stringifyValue renders scalar JSON values the way the prompt's typed
// defaults expect: numbers without exponent noise, null as the empty
// placeholder, nested structures as compact JSON.
func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
