package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseLinks decodes a link list from any of the shapes found in stored or
// submitted data: null, "", a bare URL string, a JSON-encoded string holding
// an array, an array of URL strings, or an array of {label, url} objects.
func ParseLinks(raw json.RawMessage) ([]Link, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Link{}, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("records: parse links: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return []Link{}, nil
		}
		if strings.HasPrefix(s, "[") {
			return ParseLinks(json.RawMessage(s))
		}
		return []Link{{URL: s}}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("records: parse links: %w", err)
		}
		out := make([]Link, 0, len(items))
		for _, it := range items {
			it = bytes.TrimSpace(it)
			if len(it) > 0 && it[0] == '"' {
				var s string
				if err := json.Unmarshal(it, &s); err != nil {
					return nil, fmt.Errorf("records: parse links: %w", err)
				}
				if s != "" {
					out = append(out, Link{URL: s})
				}
				continue
			}
			var l Link
			if err := json.Unmarshal(it, &l); err != nil {
				return nil, fmt.Errorf("records: parse links: %w", err)
			}
			if l.URL != "" {
				out = append(out, l)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("records: parse links: unsupported value %s", raw)
	}
}

// SplitFacts turns newline-separated text into a fact list, dropping blanks.
func SplitFacts(text string) []string {
	return compact(strings.Split(text, "\n"))
}
