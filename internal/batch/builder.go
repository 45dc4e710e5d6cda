package batch

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Builder accumulates record strings for one batch together with the running
// control and batch totals the trailer must carry. Totals are stateful running
// sums; a single builder must never be shared across goroutines.
type Builder struct {
	content      strings.Builder
	controlTotal int
	batchTotal   decimal.Decimal
	transactions int
}

// NewBuilder returns an empty accumulator.
func NewBuilder() *Builder {
	return &Builder{batchTotal: decimal.Zero}
}

// Add appends a record contributing the given number of control-total units
// and a signed amount to the batch total. Records that carry no amount (AP
// address and comment records) pass decimal.Zero.
func (b *Builder) Add(record string, units int, amount decimal.Decimal) {
	b.content.WriteString(record)
	b.controlTotal += units
	b.batchTotal = b.batchTotal.Add(amount)
}

// AddTransaction counts one transactable entity against the per-file cap.
func (b *Builder) AddTransaction() {
	b.transactions++
}

// Empty reports whether nothing was accumulated; an empty batch must not
// produce a file.
func (b *Builder) Empty() bool {
	return b.content.Len() == 0
}

// ControlTotal is the count of detail-record-equivalents written so far.
func (b *Builder) ControlTotal() int {
	return b.controlTotal
}

// BatchTotal is the arithmetic sum of signed detail amounts written so far.
func (b *Builder) BatchTotal() decimal.Decimal {
	return b.batchTotal
}

// Transactions is the number of transactable entities accumulated.
func (b *Builder) Transactions() int {
	return b.transactions
}

// Content returns the accumulated record text between header and trailer.
func (b *Builder) Content() string {
	return b.content.String()
}
