package distribution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func feeCode() Code {
	return Code{
		ID:                   1,
		Client:               "112",
		ResponsibilityCentre: "30580",
		ServiceLine:          "25000",
		STOB:                 "2528",
		ProjectCode:          "0000000",
	}
}

func partnerCode() Code {
	return Code{
		ID:                   2,
		Client:               "034",
		ResponsibilityCentre: "11111",
		ServiceLine:          "22222",
		STOB:                 "3333",
		ProjectCode:          "4444444",
	}
}

func TestGLStringWidth(t *testing.T) {
	gl, err := feeCode().GLString()
	require.NoError(t, err)
	require.Len(t, gl, 50)
}

func TestGLStringRejectsMalformedSegments(t *testing.T) {
	bad := feeCode()
	bad.STOB = "25"
	_, err := bad.GLString()
	require.Error(t, err)
}

func TestForPartnerDisbursementDirection(t *testing.T) {
	feeGL, _ := feeCode().GLString()
	partnerGL, _ := partnerCode().GLString()

	pair, err := ForPartnerDisbursement(feeCode(), partnerCode(), false)
	require.NoError(t, err)
	require.Equal(t, feeGL, pair.Debit)
	require.Equal(t, partnerGL, pair.Credit)

	pair, err = ForPartnerDisbursement(feeCode(), partnerCode(), true)
	require.NoError(t, err)
	require.Equal(t, partnerGL, pair.Debit)
	require.Equal(t, feeGL, pair.Credit)
}

func TestForGovPaymentDirection(t *testing.T) {
	lineGL, _ := feeCode().GLString()
	accountGL, _ := partnerCode().GLString()

	pair, err := ForGovPayment(feeCode(), partnerCode(), false)
	require.NoError(t, err)
	require.Equal(t, accountGL, pair.Debit)
	require.Equal(t, lineGL, pair.Credit)

	pair, err = ForGovPayment(feeCode(), partnerCode(), true)
	require.NoError(t, err)
	require.Equal(t, lineGL, pair.Debit)
	require.Equal(t, accountGL, pair.Credit)
}

func TestForEFTTransferDirection(t *testing.T) {
	pair, err := ForEFTTransfer("HOLDING", "PARTNER", false)
	require.NoError(t, err)
	require.Equal(t, "HOLDING", pair.Debit)
	require.Equal(t, "PARTNER", pair.Credit)

	pair, err = ForEFTTransfer("HOLDING", "PARTNER", true)
	require.NoError(t, err)
	require.Equal(t, "PARTNER", pair.Debit)
	require.Equal(t, "HOLDING", pair.Credit)
}

func TestForEFTTransferRequiresBothGLs(t *testing.T) {
	_, err := ForEFTTransfer("", "PARTNER", false)
	require.ErrorIs(t, err, ErrUnconfigured)
	_, err = ForEFTTransfer("HOLDING", "", false)
	require.ErrorIs(t, err, ErrUnconfigured)
}
