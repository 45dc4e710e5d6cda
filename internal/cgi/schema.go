package cgi

import (
	"fmt"
	"strings"
)

// SchemaField is one positional slot of a feedback record.
type SchemaField struct {
	Name  string
	Width int
}

// RecordSchema describes a feedback record as an ordered list of widths
// consumed by one generic slicer, so each record type is data, not code.
type RecordSchema struct {
	Name   string
	Fields []SchemaField
}

// Record is one sliced feedback line.
type Record struct {
	Raw    string
	values map[string]string
}

// Get returns a field value with trailing padding intact.
func (r Record) Get(name string) string {
	return r.values[name]
}

// Trimmed returns a field value with surrounding whitespace removed.
func (r Record) Trimmed(name string) string {
	return strings.TrimSpace(r.values[name])
}

// filler fields only hold an offset open; they may be absent from short lines.
func isFiller(name string) bool {
	return strings.HasPrefix(name, "filler")
}

// Slice cuts a fixed-width line into named fields. A line too short to reach
// a named field is a parse error; trailing free-text fields may run short.
func (s RecordSchema) Slice(line string) (Record, error) {
	values := make(map[string]string, len(s.Fields))
	offset := 0
	for _, f := range s.Fields {
		end := offset + f.Width
		switch {
		case offset >= len(line):
			if !isFiller(f.Name) && f.Name != "returnMessage" {
				return Record{}, fmt.Errorf("cgi: %s record: line length %d does not reach field %s at offset %d",
					s.Name, len(line), f.Name, offset)
			}
			values[f.Name] = ""
		case end > len(line):
			values[f.Name] = line[offset:]
		default:
			values[f.Name] = line[offset:end]
		}
		offset = end
	}
	return Record{Raw: line, values: values}, nil
}

// Feedback record schemas. Offsets follow the ministry feedback layout; the
// leading four characters are the batch type and record code.
var (
	FeedbackBatchGroupSchema = RecordSchema{Name: "BG", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "filler1", Width: 11},
		{Name: "batchNumber", Width: 9},
	}}
	FeedbackBatchHeaderSchema = RecordSchema{Name: "BH", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "filler1", Width: 3},
		{Name: "returnCode", Width: 4},
		{Name: "returnMessage", Width: 150},
	}}
	FeedbackJVHeaderSchema = RecordSchema{Name: "JH", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "filler1", Width: 3},
		{Name: "journalName", Width: 10},
		{Name: "journalBatchName", Width: 25},
		{Name: "amount", Width: 15},
		{Name: "filler2", Width: 214},
		{Name: "returnCode", Width: 4},
		{Name: "returnMessage", Width: 150},
	}}
	FeedbackJVDetailSchema = RecordSchema{Name: "JD", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "filler1", Width: 3},
		{Name: "journalName", Width: 10},
		{Name: "lineNumber", Width: 5},
		{Name: "effectiveDate", Width: 8},
		{Name: "glClient", Width: 3},
		{Name: "glRemainder", Width: 56},
		{Name: "amount", Width: 15},
		{Name: "creditDebit", Width: 1},
		{Name: "filler2", Width: 100},
		{Name: "flowThrough", Width: 110},
		{Name: "returnCode", Width: 4},
		{Name: "returnMessage", Width: 150},
	}}
	FeedbackAPHeaderSchema = RecordSchema{Name: "IH", Fields: []SchemaField{
		{Name: "typeCode", Width: 4},
		{Name: "filler1", Width: 15},
		{Name: "invoiceNumber", Width: 50},
		{Name: "filler2", Width: 345},
		{Name: "returnCode", Width: 4},
		{Name: "returnMessage", Width: 150},
	}}
)

// SuccessReturnCode is the all-zero code the ledger system returns for an
// accepted record. Anything else is an error outcome.
const SuccessReturnCode = "0000"
