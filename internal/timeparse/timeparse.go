// Package timeparse normalizes the datetime formats accepted on the CLI and
// returned by the reservation backend into UTC ISO 8601.
package timeparse

import (
	"time"

	"github.com/envagent/envboot/fault"
)

// ISO is the canonical output layout: UTC ISO 8601 without fractional seconds.
const ISO = "2006-01-02T15:04:05Z"

// Blazar is the layout the reservation backend expects for lease start/end.
const Blazar = "2006-01-02 15:04"

var layouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05.000000Z",
	ISO,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	Blazar,
}

// Parse accepts any of the known layouts and returns the instant in UTC.
func Parse(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fault.New(fault.Validation, "empty datetime string")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fault.New(fault.Validation, "unrecognized datetime format: %q", s)
}

// Normalize parses s and re-renders it in the canonical ISO layout.
func Normalize(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.Format(ISO), nil
}

// Overlap reports whether the [start1, end1) and [start2, end2) windows intersect.
func Overlap(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}
