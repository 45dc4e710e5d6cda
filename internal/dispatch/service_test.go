package dispatch

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finbatch/internal/batch"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/ledger"
)

func testService(now time.Time) *Service {
	s := NewService(nil, nil, cgi.Constants{
		FeederNumber:   "3535",
		MinistryPrefix: "RG",
		MessageVersion: "4010",
		TriggerSuffix:  "TRG",
	}, Config{
		DisbursementDesc: "BCREGISTRIES %s %s DISBURSEMENTS",
		TransferDesc:     "BCREGISTRIES %s %s EFT TRANSFER",
	}, slog.Default())
	s.now = func() time.Time { return now }
	return s
}

func TestNextFileNameBumpsOnCollision(t *testing.T) {
	now := time.Date(2026, time.August, 31, 9, 30, 15, 0, time.UTC)
	s := testService(now)

	first := s.nextFileName()
	second := s.nextFileName()
	third := s.nextFileName()

	require.Equal(t, "INBOX.F3535.20260831093015", first)
	require.Equal(t, "INBOX.F3535.20260831093016", second)
	require.Equal(t, "INBOX.F3535.20260831093017", third)
}

func TestDescriptionFormatsDate(t *testing.T) {
	now := time.Date(2026, time.August, 5, 9, 0, 0, 0, time.UTC)
	s := testService(now)

	desc := s.description(s.cfg.DisbursementDesc)
	require.Equal(t, "BCREGISTRIES AUGUST 05 DISBURSEMENTS", desc)
}

func TestDescriptionCapsAtHundred(t *testing.T) {
	now := time.Date(2026, time.August, 5, 9, 0, 0, 0, time.UTC)
	s := testService(now)

	desc := s.description(strings.Repeat("N", 120) + " %s %s")
	require.Len(t, desc, 100)
}

func TestAccountDescriptionAppendsInvoiceMarker(t *testing.T) {
	require.Equal(t, "Ministry of Finance#42", accountDescription("Ministry of Finance", 42))

	long := accountDescription(strings.Repeat("A", 120), 1234)
	require.Len(t, long, 100)
	require.True(t, strings.HasSuffix(long, "#1234"))
}

func invoicesOf(n int) []ledger.Invoice {
	invoices := make([]ledger.Invoice, n)
	for i := range invoices {
		invoices[i] = ledger.Invoice{ID: int64(i + 1)}
	}
	return invoices
}

func TestPackPartnerUnitsKeepsSmallUnitsTogether(t *testing.T) {
	units := []partnerUnit{
		{partner: ledger.Partner{Code: "VS"}, invoices: invoicesOf(100)},
		{partner: ledger.Partner{Code: "CP"}, invoices: invoicesOf(100)},
	}

	files := packPartnerUnits(units, 250)
	require.Len(t, files, 1)
	require.Len(t, files[0], 2)
}

func TestPackPartnerUnitsSplitsAtCap(t *testing.T) {
	units := []partnerUnit{
		{partner: ledger.Partner{Code: "VS"}, invoices: invoicesOf(200)},
		{partner: ledger.Partner{Code: "CP"}, invoices: invoicesOf(100)},
	}

	files := packPartnerUnits(units, 250)
	require.Len(t, files, 2)
	require.Equal(t, "VS", files[0][0].partner.Code)
	require.Equal(t, "CP", files[1][0].partner.Code)
}

func TestPackPartnerUnitsSplitsOversizedPartner(t *testing.T) {
	units := []partnerUnit{
		{partner: ledger.Partner{Code: "VS"}, invoices: invoicesOf(251)},
	}

	files := packPartnerUnits(units, 250)
	require.Len(t, files, 2)
	require.Len(t, files[0][0].invoices, 250)
	require.Len(t, files[1][0].invoices, 1)
}

func TestPackPartnerUnitsSplitsOversizedLedgerPartner(t *testing.T) {
	rows := make([]ledger.PartnerDisbursement, 300)
	for i := range rows {
		rows[i] = ledger.PartnerDisbursement{ID: int64(i + 1)}
	}
	units := []partnerUnit{
		{partner: ledger.Partner{Code: "VS", HasPartnerDisbursements: true}, rows: rows},
	}

	files := packPartnerUnits(units, 250)
	require.Len(t, files, 2)
	require.Len(t, files[0][0].rows, 250)
	require.Len(t, files[1][0].rows, 50)
}

func TestPackAccountUnitsSplitsAtCap(t *testing.T) {
	txnsOf := func(n int) []paymentTxn {
		txns := make([]paymentTxn, n)
		for i := range txns {
			txns[i] = paymentTxn{targetID: int64(i + 1), linkType: batch.LinkTypeInvoice}
		}
		return txns
	}
	units := []accountUnit{
		{accountID: 1, txns: txnsOf(150)},
		{accountID: 2, txns: txnsOf(150)},
	}

	files := packAccountUnits(units, 250)
	require.Len(t, files, 2)
	require.Equal(t, int64(1), files[0][0].accountID)
	require.Equal(t, int64(2), files[1][0].accountID)
}

func TestPackTransferUnitsSplitsAtCap(t *testing.T) {
	transfersOf := func(n int) []ledger.EFTTransfer {
		transfers := make([]ledger.EFTTransfer, n)
		for i := range transfers {
			transfers[i] = ledger.EFTTransfer{ID: int64(i + 1)}
		}
		return transfers
	}
	units := []transferUnit{
		{shortNameID: 1, transfers: transfersOf(200)},
		{shortNameID: 2, transfers: transfersOf(100)},
	}

	files := packTransferUnits(units, 250)
	require.Len(t, files, 2)
	require.Equal(t, int64(1), files[0][0].shortNameID)
	require.Equal(t, int64(2), files[1][0].shortNameID)
}
