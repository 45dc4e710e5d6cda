package cgi

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFieldEncodePadsToWidth(t *testing.T) {
	f := Field{Name: "code", Width: 6}
	got, err := f.encode("AB")
	require.NoError(t, err)
	require.Equal(t, "AB    ", got)
}

func TestFieldEncodeZeroPadsLeft(t *testing.T) {
	f := Field{Name: "lineNumber", Width: 5, ZeroPad: true}
	got, err := f.encode("42")
	require.NoError(t, err)
	require.Equal(t, "00042", got)
}

func TestFieldEncodeOverflowFails(t *testing.T) {
	f := Field{Name: "supplierNumber", Width: 9}
	_, err := f.encode("1234567890")
	require.ErrorIs(t, err, ErrFieldOverflow)
}

func TestFieldEncodeTruncatableCuts(t *testing.T) {
	f := Field{Name: "description", Width: 4, Truncatable: true}
	got, err := f.encode("ABCDEFGH")
	require.NoError(t, err)
	require.Equal(t, "ABCD", got)
}

func TestAmountFixedWidth(t *testing.T) {
	got, err := Amount(decimal.NewFromFloat(1234.5))
	require.NoError(t, err)
	require.Equal(t, "000000001234.50", got)
	require.Len(t, got, 15)
}

func TestAmountZero(t *testing.T) {
	got, err := Amount(decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, "000000000000.00", got)
}

func TestAmountRejectsNegative(t *testing.T) {
	_, err := Amount(decimal.NewFromInt(-5))
	require.ErrorIs(t, err, ErrFieldOverflow)
}

func TestFiscalYearRollsOverInApril(t *testing.T) {
	require.Equal(t, "2026", FiscalYear(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "2027", FiscalYear(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNearestBusinessDaySkipsWeekend(t *testing.T) {
	saturday := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, time.August, 30, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, time.August, 31, 10, 0, 0, 0, time.UTC)

	require.Equal(t, monday, NearestBusinessDay(saturday))
	require.Equal(t, monday, NearestBusinessDay(sunday))
	require.Equal(t, monday, NearestBusinessDay(monday))
}

func TestPadRight(t *testing.T) {
	require.Equal(t, "AB   ", PadRight("AB", 5))
	require.Equal(t, "ABCDE", PadRight("ABCDEFG", 5))
}
