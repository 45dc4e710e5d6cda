package cgi

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Delimiter is the single control-character field separator the feeder
// specification allows. Everything else is positional.
const Delimiter = "\x1d"

// LineEnding terminates every record.
const LineEnding = "\n"

// ErrFieldOverflow is returned when a value exceeds the width of a field that
// is not declared truncatable. Identifiers, amounts and GL segments must never
// be silently cut.
var ErrFieldOverflow = fmt.Errorf("cgi: field overflow")

// Field describes one positional slot of a record layout.
type Field struct {
	Name        string
	Width       int
	Truncatable bool
	// ZeroPad left-pads with zeroes instead of right-padding with spaces.
	ZeroPad bool
}

// encode renders a value into the field's exact width.
func (f Field) encode(value string) (string, error) {
	if len(value) > f.Width {
		if !f.Truncatable {
			return "", fmt.Errorf("%w: field %s value %q exceeds width %d", ErrFieldOverflow, f.Name, value, f.Width)
		}
		value = value[:f.Width]
	}
	if f.ZeroPad {
		return strings.Repeat("0", f.Width-len(value)) + value, nil
	}
	return value + strings.Repeat(" ", f.Width-len(value)), nil
}

// compose renders an ordered field table against a value map. Missing values
// encode as empty (filler) fields.
func compose(fields []Field, values map[string]string) (string, error) {
	var b strings.Builder
	for _, f := range fields {
		s, err := f.encode(values[f.Name])
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Amount renders a non-negative amount as a 15-character zero-padded string
// with two fixed decimals. The sign is never embedded; callers carry it in
// the credit/debit marker.
func Amount(amount decimal.Decimal) (string, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("%w: amount %s must carry its sign in the credit/debit marker", ErrFieldOverflow, amount)
	}
	s := amount.StringFixed(2)
	if len(s) > 15 {
		return "", fmt.Errorf("%w: amount %s exceeds 15 characters", ErrFieldOverflow, amount)
	}
	return strings.Repeat("0", 15-len(s)) + s, nil
}

// Date renders a date as YYYYMMDD.
func Date(t time.Time) string {
	return t.Format("20060102")
}

// FiscalYear returns the provincial fiscal year label (April to March,
// labelled by the ending year) for the given date.
func FiscalYear(t time.Time) string {
	year := t.Year()
	if t.Month() >= time.April {
		year++
	}
	return fmt.Sprintf("%04d", year)
}

// NearestBusinessDay rolls weekend dates forward to the following Monday.
// Statutory holidays are handled downstream by the ledger system.
func NearestBusinessDay(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

// PadRight space-pads (or truncates) a free-text value to width.
func PadRight(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// PadLeftZero zero-pads a numeric value to width.
func PadLeftZero(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
