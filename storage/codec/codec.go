// Package codec converts Go values to and from their stored textual form.
// Store implementations receive a Codec at construction time, so the
// encoding lives at the store's read / write boundary
package codec

import (
	"fmt"
	"strconv"
	"time"
)

// timeLayout is fixed-width and always UTC, so the encoded values sort
// lexically in chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Codec encodes and decodes stored values
type Codec interface {
	// EncodeTime encodes the instant
	EncodeTime(time.Time) string

	// DecodeTime decodes a previously encoded instant
	DecodeTime(string) (time.Time, error)

	// EncodeID encodes a message identifier
	EncodeID(int64) string

	// DecodeID decodes a previously encoded message identifier
	DecodeID(string) (int64, error)
}

// Text is the plain-text codec. Decoded instants are expressed in its location
type Text struct {
	loc *time.Location
}

// NewText creates a text codec that decodes instants into the given location.
// A nil location defaults to UTC
func NewText(loc *time.Location) *Text {
	if loc == nil {
		loc = time.UTC
	}

	return &Text{
		loc: loc,
	}
}

func (c *Text) EncodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (c *Text) DecodeTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		// Fall back to RFC3339, for hand-edited rows
		t, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("unable to decode time %q: %w", v, err)
		}
	}

	return t.In(c.loc), nil
}

func (c *Text) EncodeID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (c *Text) DecodeID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to decode id %q: %w", v, err)
	}

	return id, nil
}
