package core

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Reading is a parameter result as delivered upstream: a JSON number, a
// string (possibly with a decimal comma or a qualifier such as "<0.5"), or null.
// The raw JSON is kept so the stored file round-trips unchanged.
type Reading struct {
	raw json.RawMessage
}

// NumberReading builds a numeric reading.
func NumberReading(v string) Reading {
	return Reading{raw: json.RawMessage(v)}
}

// TextReading builds a textual reading.
func TextReading(s string) Reading {
	b, _ := json.Marshal(s)
	return Reading{raw: b}
}

// IsNull reports whether the reading is absent or JSON null.
func (r Reading) IsNull() bool {
	return len(r.raw) == 0 || bytes.Equal(r.raw, []byte("null"))
}

// Text returns the reading as text, unquoting strings.
func (r Reading) Text() string {
	if r.IsNull() {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.raw, &s); err == nil {
		return s
	}
	return string(r.raw)
}

// Decimal coerces the reading to a number. Decimal commas are accepted;
// qualified values ("<0.5") and free text are not numeric.
func (r Reading) Decimal() (decimal.Decimal, bool) {
	if r.IsNull() {
		return decimal.Decimal{}, false
	}
	s := strings.TrimSpace(r.Text())
	if s == "" {
		return decimal.Decimal{}, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	r.raw = append(r.raw[:0], b...)
	return nil
}
