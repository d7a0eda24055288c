package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no JSON value can be recovered from a completion.
var ErrNoJSON = errors.New("llm: no JSON found in completion")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// DecodeJSON recovers a JSON value from a model completion and decodes it
// into out. It tries, in order: the whole text, the first fenced code block,
// and the widest {...} (or [...]) substring.
func DecodeJSON(raw string, out any) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ErrNoJSON
	}

	if json.Unmarshal([]byte(text), out) == nil {
		return nil
	}

	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if json.Unmarshal([]byte(strings.TrimSpace(m[1])), out) == nil {
			return nil
		}
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start >= 0 && end > start {
			if json.Unmarshal([]byte(text[start:end+1]), out) == nil {
				return nil
			}
		}
	}

	return ErrNoJSON
}
