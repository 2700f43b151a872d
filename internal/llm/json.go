package llm

import "strings"

// CleanJSON extracts the JSON document from an LLM response: strips
// markdown code fences and any prose before the first brace or bracket
// and after the last one.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip fenced code blocks (```json ... ``` or plain ```)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Trim prose around the outermost JSON value
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
