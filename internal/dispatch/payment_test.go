package dispatch

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finbatch/internal/distribution"
	"github.com/odyssey-erp/finbatch/internal/ledger"
)

type fakeCodeFinder map[int64]distribution.Code

func (f fakeCodeFinder) FindByID(ctx context.Context, id int64) (distribution.Code, error) {
	code, ok := f[id]
	if !ok {
		return distribution.Code{}, distribution.ErrCodeNotFound
	}
	return code, nil
}

func int64p(v int64) *int64 { return &v }

func TestLineItemTxnsSplitsServiceFeesAndGST(t *testing.T) {
	finder := fakeCodeFinder{
		1: {ID: 1, ServiceFeeDistributionID: int64p(2), ServiceFeeGSTDistributionID: int64p(3), StatutoryFeesGSTDistributionID: int64p(4)},
		2: {ID: 2},
		3: {ID: 3},
		4: {ID: 4},
	}
	li := ledger.PaymentLineItem{
		InvoiceID:         42,
		Total:             decimal.NewFromFloat(31.50),
		ServiceFees:       decimal.NewFromFloat(1.50),
		ServiceFeesGST:    decimal.NewFromFloat(0.08),
		StatutoryFeesGST:  decimal.NewFromFloat(1.58),
		FeeDistributionID: 1,
	}

	txns, err := lineItemTxns(context.Background(), finder, li, "REGISTRY#42", true)
	require.NoError(t, err)
	require.Len(t, txns, 4)

	require.Equal(t, int64(1), txns[0].lineDist.ID)
	require.Equal(t, int64(2), txns[1].lineDist.ID)
	require.Equal(t, int64(3), txns[2].lineDist.ID)
	require.Equal(t, int64(4), txns[3].lineDist.ID)
	require.True(t, decimal.NewFromFloat(31.50).Equal(txns[0].amount))
	require.True(t, decimal.NewFromFloat(1.50).Equal(txns[1].amount))
	require.True(t, decimal.NewFromFloat(0.08).Equal(txns[2].amount))
	require.True(t, decimal.NewFromFloat(1.58).Equal(txns[3].amount))
	for _, txn := range txns {
		require.Equal(t, "42", txn.flowThrough)
		require.Equal(t, int64(42), txn.targetID)
		require.True(t, txn.reversal)
	}
}

func TestLineItemTxnsSkipsZeroSplits(t *testing.T) {
	finder := fakeCodeFinder{1: {ID: 1}}
	li := ledger.PaymentLineItem{
		InvoiceID:         7,
		Total:             decimal.NewFromInt(10),
		FeeDistributionID: 1,
	}

	txns, err := lineItemTxns(context.Background(), finder, li, "REGISTRY#7", false)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, int64(1), txns[0].lineDist.ID)
}

func TestLineItemTxnsFailsOnUnlinkedGSTSplit(t *testing.T) {
	finder := fakeCodeFinder{1: {ID: 1}}
	li := ledger.PaymentLineItem{
		InvoiceID:         7,
		Total:             decimal.NewFromInt(10),
		StatutoryFeesGST:  decimal.NewFromFloat(0.50),
		FeeDistributionID: 1,
	}

	_, err := lineItemTxns(context.Background(), finder, li, "REGISTRY#7", false)
	require.ErrorIs(t, err, distribution.ErrUnconfigured)
}
