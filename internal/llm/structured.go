package llm

import (
	"encoding/json"
	"strings"
)

// ParseStructuredOrDefault decodes a JSON object from model output.
//
// It tries, in order: the whole text (after removing a Markdown code fence),
// then every balanced {...} span found by brace matching. If nothing decodes,
// def is returned unchanged. Callers document def as their fallback contract.
func ParseStructuredOrDefault[T any](text string, def T) T {
	text = stripFence(strings.TrimSpace(text))

	var out T
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			var candidate T
			if err := json.Unmarshal([]byte(text[start:end+1]), &candidate); err == nil {
				return candidate
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return def
}

// matchBrace returns the index of the brace closing text[start], honouring
// JSON string literals, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
