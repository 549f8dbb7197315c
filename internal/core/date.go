package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the textual form used by the upstream API and the store.
const DateLayout = "02.01.2006"

// ISOLayout is the form used in outbound API requests.
const ISOLayout = "2006-01-02"

// Date is a calendar day at UTC midnight. The text it was parsed from is
// kept so that re-encoding reproduces the stored file byte for byte.
type Date struct {
	time.Time
	text string
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses "dd.mm.yyyy", tolerating non-padded day and month.
func ParseDate(s string) (Date, error) {
	raw := s
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "2.1.2006"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Date{Time: t, text: raw}, nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// ParseISODate parses "yyyy-mm-dd".
func ParseISODate(s string) (Date, error) {
	t, err := time.ParseInLocation(ISOLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String returns the original text when the date was parsed, dd.mm.yyyy otherwise.
func (d Date) String() string {
	if d.text != "" {
		return d.text
	}
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// ISO returns the date as yyyy-mm-dd.
func (d Date) ISO() string {
	return d.Format(ISOLayout)
}

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// AddMonths shifts the first day of d's month by n months.
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.FirstOfMonth().Time.AddDate(0, n, 0)}
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is an earlier day than o.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// After reports whether d is a later day than o.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

// Equal compares calendar days, ignoring the original text.
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
