package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when model output holds no usable JSON object.
var ErrNoJSON = errors.New("no JSON object found in model output")

// flatObject matches a brace pair with no nested braces.
var flatObject = regexp.MustCompile(`\{[^{}]*\}`)

// ExtractObject finds a JSON object in model output that carries every key in
// keys. The whole text is tried first, then each flat brace pair, then the span
// from the first '{' to the last '}'. It never guesses: if no candidate parses
// and carries the keys, it returns ErrNoJSON.
func ExtractObject(text string, keys ...string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", ErrNoJSON
	}

	if hasKeys(s, keys) {
		return s, nil
	}

	for _, candidate := range flatObject.FindAllString(s, -1) {
		if hasKeys(candidate, keys) {
			return candidate, nil
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w (len=%d)", ErrNoJSON, len(s))
	}
	sub := s[start : end+1]
	if !hasKeys(sub, keys) {
		return "", fmt.Errorf("%w: outermost object invalid or missing keys %v", ErrNoJSON, keys)
	}
	return sub, nil
}

// DecodeObject extracts a JSON object carrying keys and unmarshals it into v.
func DecodeObject(text string, v any, keys ...string) error {
	obj, err := ExtractObject(text, keys...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("unmarshal extracted JSON (len=%d): %w", len(obj), err)
	}
	return nil
}

func hasKeys(candidate string, keys []string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return false
	}
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			return false
		}
	}
	return true
}
