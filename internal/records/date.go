package records

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date without time of day. It marshals as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate builds a Date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses "YYYY-MM-DD". Longer timestamps such as
// "2025-08-01T00:00:00Z" are accepted and truncated to the date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("records: invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// ParseOptionalDate returns nil for an empty string.
func ParseOptionalDate(s string) (*Date, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// String formats the date as "YYYY-MM-DD".
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("records: date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FormatOptional renders d or "" when nil.
func FormatOptional(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
