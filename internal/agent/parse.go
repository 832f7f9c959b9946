package agent

import (
	"encoding/json"
	"strings"
)

type synthesisResponse struct {
	FinalAnswer      json.RawMessage `json:"final_answer"`
	ShortExplanation string          `json:"short_explanation"`
}

// parseSynthesisResponse extracts the answer and explanation from the
// model's output. If no well-formed JSON object is found, the whole trimmed
// response becomes the answer.
func parseSynthesisResponse(response string) (final any, explanation string) {
	if jsonStr := extractJSON(response); jsonStr != "" {
		var parsed synthesisResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil && len(parsed.FinalAnswer) > 0 {
			var value any
			if err := json.Unmarshal(parsed.FinalAnswer, &value); err == nil {
				return value, parsed.ShortExplanation
			}
		}
	}
	return strings.TrimSpace(response), ""
}

// extractJSON returns the first balanced top-level JSON object in the text,
// or "" when there is none. Braces inside string literals are accounted for.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
