package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseJSON turns raw model text into a JSON document. It tolerates code
// fences, prose around the payload, double-encoded strings and the usual
// syntax slips (trailing commas, single quotes, unquoted keys).
func ParseJSON(text string) (json.RawMessage, error) {
	s := stripCodeFence(strings.TrimSpace(text))
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}

	if raw, ok := validDocument(s); ok {
		return raw, nil
	}

	// Double-encoded: "{\"a\": 1}"
	var asString string
	if err := json.Unmarshal([]byte(s), &asString); err == nil {
		s = strings.TrimSpace(stripCodeFence(asString))
		if raw, ok := validDocument(s); ok {
			return raw, nil
		}
	}

	if sliced := sliceOutermost(s); sliced != "" {
		if raw, ok := validDocument(sliced); ok {
			return raw, nil
		}
		s = sliced
	}

	s = stripDuplicateLeadingBrace(s)
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, fmt.Errorf("json repair failed: %w", err)
	}
	if raw, ok := validDocument(repaired); ok {
		return raw, nil
	}
	return nil, fmt.Errorf("response is not a JSON object or array after repair")
}

// validDocument accepts only objects and arrays; a bare string or number from
// the model is never a usable extraction result.
func validDocument(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// sliceOutermost returns the text between the first opening brace or bracket
// and the last matching closer.
func sliceOutermost(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}
