package dispatch

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finbatch/internal/ledger"
)

func TestPayableNonGovDropsZeroNetInvoices(t *testing.T) {
	invoices := []ledger.Invoice{
		{ID: 1, Total: decimal.NewFromInt(100), ServiceFees: decimal.NewFromInt(100)},
		{ID: 2, Total: decimal.NewFromInt(100), ServiceFees: decimal.NewFromInt(30)},
		{ID: 3},
	}

	payable := payableNonGov(invoices)
	require.Len(t, payable, 1)
	require.Equal(t, int64(2), payable[0].ID)
}
