package qualifier

import (
	"strings"
)

// extractJSONPayload strips an optional fenced code block wrapper from a
// model response, returning the bare payload for JSON parsing.
func extractJSONPayload(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// looksTruncated reports whether a payload opens an array under the given
// key without a matching top-level close, the signature of a response cut
// off mid-generation.
func looksTruncated(payload, arrayKey string) bool {
	keyIdx := strings.Index(payload, `"`+arrayKey+`"`)
	if keyIdx == -1 {
		return false
	}
	openIdx := strings.Index(payload[keyIdx:], "[")
	if openIdx == -1 {
		return false
	}

	depth := 0
	inString := false
	escaped := false
	for _, r := range payload[keyIdx+openIdx:] {
		switch {
		case escaped:
			escaped = false
		case inString:
			if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
		case r == '"':
			inString = true
		case r == '[':
			depth++
		case r == ']':
			depth--
			if depth == 0 {
				return false
			}
		}
	}
	return true
}

// completeObjects scans the array opened by arrayKey and returns every
// complete top-level {...} object found before the truncation point.
// String contents and escapes are respected so braces inside quoted text
// do not confuse the scan.
func completeObjects(payload, arrayKey string) []string {
	keyIdx := strings.Index(payload, `"`+arrayKey+`"`)
	if keyIdx == -1 {
		return nil
	}
	openIdx := strings.Index(payload[keyIdx:], "[")
	if openIdx == -1 {
		return nil
	}
	body := payload[keyIdx+openIdx+1:]

	var objects []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range body {
		switch {
		case escaped:
			escaped = false
		case inString:
			if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
		case r == '"':
			inString = true
		case r == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case r == '}':
			depth--
			if depth == 0 && start != -1 {
				objects = append(objects, body[start:i+1])
				start = -1
			}
		case r == ']' && depth == 0:
			return objects
		}
	}
	return objects
}
