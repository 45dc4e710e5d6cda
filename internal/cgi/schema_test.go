package cgi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSliceNamedFields(t *testing.T) {
	schema := RecordSchema{Name: "X", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "value", Width: 5},
	}}

	rec, err := schema.Slice("APBHab   ")
	require.NoError(t, err)
	require.Equal(t, "APBH", rec.Get("typeCode"))
	require.Equal(t, "ab   ", rec.Get("value"))
	require.Equal(t, "ab", rec.Trimmed("value"))
}

func TestSliceShortLineFailsOnNamedField(t *testing.T) {
	schema := RecordSchema{Name: "X", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "value", Width: 5},
	}}

	_, err := schema.Slice("APBH")
	require.Error(t, err)
	require.Contains(t, err.Error(), "value")
}

func TestSliceShortLineToleratesFillerAndMessage(t *testing.T) {
	schema := RecordSchema{Name: "X", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "filler1", Width: 10},
		{Name: "returnMessage", Width: 150},
	}}

	rec, err := schema.Slice("APBH")
	require.NoError(t, err)
	require.Equal(t, "", rec.Get("filler1"))
	require.Equal(t, "", rec.Get("returnMessage"))
}

func TestSliceTruncatedTrailingField(t *testing.T) {
	schema := RecordSchema{Name: "X", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "returnMessage", Width: 150},
	}}

	rec, err := schema.Slice("APBHpartial message")
	require.NoError(t, err)
	require.Equal(t, "partial message", rec.Trimmed("returnMessage"))
}

func TestFeedbackBatchHeaderOffsets(t *testing.T) {
	line := "APBH" + "   " + "0001" + "Insufficient funds" + strings.Repeat(" ", 130)
	rec, err := FeedbackBatchHeaderSchema.Slice(line)
	require.NoError(t, err)
	require.Equal(t, "0001", rec.Get("returnCode"))
	require.Equal(t, "Insufficient funds", rec.Trimmed("returnMessage"))
}
