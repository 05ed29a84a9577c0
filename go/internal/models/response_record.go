package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ResponseRecord is one past repetition of a card as reported by the host.
type ResponseRecord struct {
	ResponseTime float64    `json:"responseTime,omitempty"` // milliseconds, zero when missing
	Date         ReviewDate `json:"date"`
}

// ReviewDate is a repetition timestamp. Hosts send either epoch milliseconds
// or a date string; both normalize to epoch milliseconds.
type ReviewDate struct {
	Time  time.Time
	Valid bool
}

// dateLayouts are tried in order for string timestamps.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// NewReviewDate wraps t as a valid review date.
func NewReviewDate(t time.Time) ReviewDate {
	return ReviewDate{Time: t, Valid: true}
}

// ReviewDateMillis builds a review date from epoch milliseconds.
func ReviewDateMillis(ms int64) ReviewDate {
	return ReviewDate{Time: time.UnixMilli(ms), Valid: true}
}

// UnixMilli returns the comparable numeric form. Unparseable or absent dates
// sort as the oldest possible entry.
func (d ReviewDate) UnixMilli() int64 {
	if !d.Valid {
		return 0
	}
	return d.Time.UnixMilli()
}

// ParseReviewDate parses a string timestamp. The second return is false when
// no known layout matches.
func ParseReviewDate(s string) (ReviewDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ReviewDate{}, false
	}
	// Strip a trailing zone name such as " (Coordinated Universal Time)".
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewReviewDate(t), true
		}
	}
	return ReviewDate{}, false
}

// UnmarshalJSON accepts a number (epoch ms), a string or null. Strings that
// cannot be parsed leave the date invalid rather than failing the decode.
func (d *ReviewDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = ReviewDate{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("review date: %w", err)
		}
		parsed, _ := ParseReviewDate(s)
		*d = parsed
		return nil
	default:
		var ms float64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("review date must be a number or string: %w", err)
		}
		*d = ReviewDateMillis(int64(ms))
		return nil
	}
}

// MarshalJSON writes epoch milliseconds, or null for an invalid date.
func (d ReviewDate) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.UnixMilli())
}
