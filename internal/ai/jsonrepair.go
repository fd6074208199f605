package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON means no usable JSON could be recovered from a response.
var ErrNoJSON = errors.New("no recoverable JSON in response")

// Recovery tiers, in the order they are attempted.
const (
	TierStrict   = "strict"
	TierRepaired = "repaired"
)

// RecoverJSON pulls a usable JSON object out of a model response. Models wrap
// output in markdown fences, prepend prose, and truncate mid-array, so parsing
// runs in tiers: strict unmarshal of the cleaned text, then extraction of the
// first balanced object, then truncation repair. The returned tier records how
// much surgery was needed.
func RecoverJSON(resp string) (json.RawMessage, string, error) {
	cleaned := stripFences(resp)

	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), TierStrict, nil
	}

	if obj, ok := firstJSONObject(cleaned); ok && json.Valid([]byte(obj)) {
		return json.RawMessage(obj), TierStrict, nil
	}

	repaired := repairTruncated(cleaned)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), TierRepaired, nil
	}

	return nil, "", ErrNoJSON
}

// ExtractObjects scans a broken response for every balanced, valid top-level
// object. Last-ditch recovery when the envelope is unparseable but individual
// entries survived.
func ExtractObjects(resp string) []json.RawMessage {
	s := stripFences(resp)
	var objects []json.RawMessage
	for {
		obj, ok := firstJSONObject(s)
		if !ok {
			break
		}
		if json.Valid([]byte(obj)) {
			objects = append(objects, json.RawMessage(obj))
		}
		idx := strings.Index(s, obj)
		s = s[idx+len(obj):]
	}
	return objects
}

func stripFences(resp string) string {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// firstJSONObject finds the first outermost balanced {...}
func firstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}

// repairTruncated rebuilds a response that was cut off mid-stream: close any
// unterminated string, balance the open brackets, and if the result still
// does not parse, trim back to the previous complete element and try again.
func repairTruncated(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}
	s = s[start:]

	for attempt := 0; attempt < 64; attempt++ {
		candidate := closeBrackets(s)
		if json.Valid([]byte(candidate)) {
			return candidate
		}
		cut := lastStructuralComma(s)
		if cut <= 0 {
			break
		}
		s = s[:cut]
	}
	return s
}

// closeBrackets terminates a dangling string literal, strips a trailing
// comma, and closes every bracket still open at end of input.
func closeBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{', '[':
			stack = append(stack, char)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSuffix(s, ",")

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

// lastStructuralComma returns the index of the last comma outside any string
// literal, or -1.
func lastStructuralComma(s string) int {
	inString := false
	escaped := false
	last := -1

	for i := 0; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if !inString && char == ',' {
			last = i
		}
	}
	return last
}
