package llm

import (
	"encoding/json"
	"strings"
)

// fenceMarkers are code-fence prefixes models wrap JSON output in.
// Ordered longest first so "```json" is stripped before "```".
var fenceMarkers = []string{"```json", "```yaml", "```text", "```", "`json", "`"}

// ExtractJSON pulls the first JSON object out of model output. Models
// routinely wrap JSON in markdown fences or surround it with prose, so
// the text is de-fenced and scanned for a balanced object before
// parsing. When no parseable object is found the raw text is returned
// under a "raw_response" key.
func ExtractJSON(text string) map[string]any {
	cleaned := stripFences(text)

	if candidate := firstJSONObject(cleaned); candidate != "" {
		var out map[string]any
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out
		}
	}

	return map[string]any{"raw_response": strings.TrimSpace(text)}
}

// stripFences removes markdown code-fence markers from the text.
func stripFences(text string) string {
	cleaned := strings.ReplaceAll(text, "\r\n", "\n")
	for _, marker := range fenceMarkers {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}
	return strings.TrimSpace(cleaned)
}

// firstJSONObject returns the first balanced {...} span. Braces inside
// JSON strings are skipped, including escaped quotes.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
