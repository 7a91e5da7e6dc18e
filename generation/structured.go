package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedOutput indicates generated text did not decode into the expected
// schema. Callers recover from it with a schema-specific fallback.
var ErrMalformedOutput = errors.New("malformed structured output")

// StripFences removes an incidental markdown code fence around a payload,
// with or without a language tag ("```json ... ```").
func StripFences(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	// Drop the language tag, if any, up to the first newline.
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		tag := strings.TrimSpace(content[:nl])
		if tag == "" || isFenceTag(tag) {
			content = content[nl+1:]
		}
	} else {
		content = strings.TrimPrefix(content, "json")
	}

	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// DecodeObject strips fences and decodes a single JSON object into v.
// Any failure, including a non-object payload or trailing data, returns an
// error wrapping ErrMalformedOutput.
func DecodeObject(raw string, v any) error {
	content := StripFences(raw)
	if !strings.HasPrefix(content, "{") {
		return fmt.Errorf("%w: payload is not a JSON object", ErrMalformedOutput)
	}

	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after object", ErrMalformedOutput)
	}
	return nil
}
