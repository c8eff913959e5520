package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateTime is a thin wrapper around time.Time with custom JSON parsing.
//
// It accepts either:
//   - a date-only string in the form "2006-01-02" (interpreted as UTC midnight)
//   - a full RFC3339 / RFC3339Nano timestamp
//   - null
//
// Bucket listings report LastModified as an RFC3339 timestamp; the daily
// counts CSV only carries dates. Both funnel through here so "latest update"
// comparisons are deterministic and timezone independent.
type DateTime struct {
	time.Time
}

const dateOnlyLayout = "2006-01-02"

func ParseDateTime(s string) (DateTime, error) {
	var d DateTime
	if err := d.parseString(s); err != nil {
		return DateTime{}, err
	}

	return d, nil
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	// allow null
	if string(b) == "null" {
		d.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	return d.parseString(s)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return []byte("null"), nil
	}
	// Always emit RFC3339 for stability.
	return json.Marshal(d.Time.Format(time.RFC3339Nano))
}

func (d *DateTime) parseString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}

	if len(s) == len(dateOnlyLayout) {
		if t, err := time.ParseInLocation(dateOnlyLayout, s, time.UTC); err == nil {
			d.Time = t
			return nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		d.Time = t
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d.Time = t
		return nil
	}

	return fmt.Errorf("invalid datetime %q (expected %s or RFC3339)", s, dateOnlyLayout)
}

// maxDateTime returns the later of the current value and a raw candidate
// timestamp. An unparsable candidate leaves the current value untouched, and
// ties keep the existing value.
func maxDateTime(current *DateTime, candidate string) *DateTime {
	parsed, err := ParseDateTime(candidate)
	if err != nil || parsed.IsZero() {
		return current
	}

	if current == nil || parsed.After(current.Time) {
		return &parsed
	}

	return current
}
