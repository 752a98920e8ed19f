package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Jiangye-Song/resume-agent/internal/records"
)

// flexInt accepts 5, 5.0 and "5". Models are inconsistent about numbers.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	if f != float64(int(f)) {
		return fmt.Errorf("not an integer: %s", b)
	}
	*n = flexInt(f)
	return nil
}

// flexBool accepts true and "true".
type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("not a boolean: %s", b)
	}
	*v = flexBool(parsed)
	return nil
}

// decodeArgs unmarshals args into dst. Empty input decodes as {}.
func decodeArgs(args json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// intArg applies a default and checks [lo, hi].
func intArg(name string, v *flexInt, def, lo, hi int) (int, error) {
	if v == nil {
		return def, nil
	}
	n := int(*v)
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", name, lo, hi, n)
	}
	return n, nil
}

// recordType validates an optional record type. Empty means any type.
func recordType(s string) (records.Type, error) {
	t := records.Type(strings.ToLower(strings.TrimSpace(s)))
	if t == "" || t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("record_type must be one of %s, got %q", strings.Join(records.TypeStrings(), ", "), s)
}

// optionalDate parses an optional YYYY-MM-DD argument.
func optionalDate(name, s string) (*records.Date, error) {
	d, err := records.ParseOptionalDate(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

// nullable returns nil for "" so metadata shows null rather than "".
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// publicRecords strips summaries and guarantees non-null sequences.
func publicRecords(rs []records.Record) []records.Record {
	out := make([]records.Record, len(rs))
	for i, r := range rs {
		out[i] = r.Public()
	}
	return out
}
