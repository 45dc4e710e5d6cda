package cgi

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testConstants() Constants {
	return Constants{
		FeederNumber:      "3535",
		MinistryPrefix:    "RG",
		MessageVersion:    "4010",
		EJVSupplierNumber: "078766BC ",
		TriggerSuffix:     "TRG",

		APSupplierNumber:   "383042   ",
		APSupplierLocation: "001",
		APDistribution:     "112305802500025280000000000000000",
		APRemittanceCode:   "78  ",

		BCASupplierNumber:   "123456   ",
		BCASupplierLocation: "002",
		EFTAPDistribution:   "112305802500025280000000000000001",
	}
}

func TestFileNameAndTrigger(t *testing.T) {
	c := testConstants()
	at := time.Date(2026, time.August, 31, 9, 30, 15, 0, time.UTC)

	name := c.FileName(at)
	require.Equal(t, "INBOX.F3535.20260831093015", name)
	require.Equal(t, "INBOX.F3535.20260831093015.TRG", c.TriggerName(name))
}

func TestFileNameRollsWeekendForward(t *testing.T) {
	c := testConstants()
	saturday := time.Date(2026, time.August, 29, 9, 30, 15, 0, time.UTC)
	require.Equal(t, "INBOX.F3535.20260831093015", c.FileName(saturday))
}

func TestBatchNumberAndJournalName(t *testing.T) {
	c := testConstants()
	require.Equal(t, "000000042", c.BatchNumber(42))
	require.Equal(t, "RG00000007", c.JournalName(7))
	require.Len(t, c.JournalBatchName(c.BatchNumber(42)), 25)
}

func TestBatchHeaderLayout(t *testing.T) {
	c := testConstants()
	now := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

	rec, err := c.BatchHeader("GI", c.BatchNumber(42), now)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(rec, "3535GIBH"+Delimiter))
	require.True(t, strings.HasSuffix(rec, Delimiter+LineEnding))

	body := rec[len("3535GIBH")+1 : len(rec)-2]
	require.Equal(t, "3535", body[0:4])
	require.Equal(t, "2027", body[4:8])
	require.Equal(t, "000000042", body[8:17])
	require.Equal(t, "4010", body[17:21])
}

func TestBatchTrailerCarriesTotals(t *testing.T) {
	c := testConstants()
	now := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

	rec, err := c.BatchTrailer("GI", c.BatchNumber(42), 6, decimal.NewFromFloat(250.75), now)
	require.NoError(t, err)

	body := rec[len("3535GIBT")+1 : len(rec)-2]
	require.Equal(t, "000000000000006", body[17:32])
	require.Equal(t, "000000000250.75", body[32:47])
}

func TestJVDetailRoundTripsThroughFeedbackSchema(t *testing.T) {
	c := testConstants()
	gl, err := DistributionGL("112", "30580", "25000", "2528", "0000000")
	require.NoError(t, err)

	rec, err := c.JVDetail(JVDetailParams{
		BatchType:     "GI",
		JournalName:   c.JournalName(7),
		LineNumber:    1,
		EffectiveDate: time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC),
		Distribution:  gl,
		Amount:        decimal.NewFromFloat(101.50),
		CreditDebit:   "C",
		Description:   "BCREGISTRIES AUGUST 31 DISBURSEMENTS",
		FlowThrough:   "12345",
	})
	require.NoError(t, err)

	// Feedback lines echo the record body behind a four-character type code
	// and three filler characters; rebuild that shape to pin the offsets.
	line := "GIJD" + "   " + rec[len("3535GIJD")+1:len(rec)-2] + SuccessReturnCode
	parsed, err := FeedbackJVDetailSchema.Slice(line)
	require.NoError(t, err)

	require.Equal(t, "RG00000007", parsed.Trimmed("journalName"))
	require.Equal(t, "20260831", parsed.Get("effectiveDate"))
	require.Equal(t, "112", parsed.Get("glClient"))
	require.Equal(t, "000000000101.50", parsed.Get("amount"))
	require.Equal(t, "C", parsed.Get("creditDebit"))
	require.Equal(t, "12345", parsed.Trimmed("flowThrough"))
	require.Equal(t, SuccessReturnCode, parsed.Get("returnCode"))
}

func TestDistributionGLWidth(t *testing.T) {
	gl, err := DistributionGL("112", "30580", "25000", "2528", "0000000")
	require.NoError(t, err)
	require.Len(t, gl, 50)
	require.Equal(t, "1123058025000252800000000000000", gl[:31])
}

func TestDistributionGLRejectsWrongSegmentWidth(t *testing.T) {
	_, err := DistributionGL("11", "30580", "25000", "2528", "0000000")
	require.ErrorIs(t, err, ErrFieldOverflow)
}

func TestSupplierNumberPerFlow(t *testing.T) {
	c := testConstants()

	got, err := c.SupplierNumber(APFlowRoutingSlipToCheque, "")
	require.NoError(t, err)
	require.Equal(t, "383042   ", got)

	got, err = c.SupplierNumber(APFlowNonGovToEFT, "")
	require.NoError(t, err)
	require.Equal(t, "123456   ", got)

	got, err = c.SupplierNumber(APFlowEFTToEFT, "999888   ")
	require.NoError(t, err)
	require.Equal(t, "999888   ", got)

	_, err = c.SupplierNumber(APFlowEFTToEFT, " ")
	require.ErrorIs(t, err, ErrFlowUnconfigured)
}

func TestSupplierNumberUnconfiguredFails(t *testing.T) {
	var empty Constants
	_, err := empty.SupplierNumber(APFlowRoutingSlipToCheque, "")
	require.ErrorIs(t, err, ErrFlowUnconfigured)
}

func TestOracleBatchNamePerFlow(t *testing.T) {
	c := testConstants()

	name, err := c.OracleBatchName(APFlowRoutingSlipToCheque, "123456789")
	require.NoError(t, err)
	require.Equal(t, "REFUND_FAS_RS_123456789", name)

	name, err = c.OracleBatchName(APFlowEFTToCheque, "42")
	require.NoError(t, err)
	require.Equal(t, "REFUND_EFT_42", name)

	name, err = c.OracleBatchName(APFlowNonGovToEFT, "42")
	require.NoError(t, err)
	require.Equal(t, "42", name)

	name, err = c.OracleBatchName(APFlowRoutingSlipToCheque, strings.Repeat("9", 30))
	require.NoError(t, err)
	require.Len(t, name, 30)
}

func TestAPHeaderMethodAndRemit(t *testing.T) {
	c := testConstants()
	now := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

	rec, err := c.APHeader(APHeaderParams{
		Flow:          APFlowRoutingSlipToCheque,
		InvoiceNumber: "123456789",
		InvoiceDate:   now,
		Total:         decimal.NewFromFloat(50.00),
		Now:           now,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rec, "3535APIH"+Delimiter))

	body := rec[len("3535APIH")+1 : len(rec)-2]
	require.Equal(t, "383042   ", body[0:9])
	require.Equal(t, "001", body[9:12])
	require.Equal(t, "123456789", strings.TrimSpace(body[12:62]))
	require.Equal(t, "ST", body[82:84])
	require.Equal(t, "CHQ", body[96:99])
	require.Equal(t, "000000000050.00", body[105:120])
}

func TestAPHeaderRoundTripsThroughFeedbackSchema(t *testing.T) {
	c := testConstants()
	now := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

	rec, err := c.APHeader(APHeaderParams{
		Flow:          APFlowNonGovToEFT,
		InvoiceNumber: "987654",
		InvoiceDate:   now,
		Total:         decimal.NewFromFloat(75.25),
		Now:           now,
	})
	require.NoError(t, err)

	line := "APIH" + "   " + rec[len("3535APIH")+1:len(rec)-2] + SuccessReturnCode + "Success"
	parsed, err := FeedbackAPHeaderSchema.Slice(line)
	require.NoError(t, err)
	require.Equal(t, "987654", parsed.Trimmed("invoiceNumber"))
	require.Equal(t, SuccessReturnCode, parsed.Get("returnCode"))
	require.Equal(t, "Success", parsed.Trimmed("returnMessage"))
}

func TestAPLineCreditDebit(t *testing.T) {
	forward := APLineParams{Flow: APFlowNonGovToEFT}
	require.Equal(t, "D", forward.lineCode())

	reversal := APLineParams{Flow: APFlowNonGovToEFT, IsReversal: true}
	require.Equal(t, "C", reversal.lineCode())

	refund := APLineParams{Flow: APFlowEFTToCheque, IsReversal: true}
	require.Equal(t, "D", refund.lineCode())
}

func TestAPAddressWrapsLongStreet(t *testing.T) {
	street := strings.Repeat("A", 50)
	a1, a2, a3 := wrapStreet(street, "Suite 2")
	require.Equal(t, strings.Repeat("A", 40), a1)
	require.Equal(t, strings.Repeat("A", 10), a2)
	require.Equal(t, "Suite 2", a3)
}

func TestAPAddressDropsAdditionalWhenStreetFillsAllLines(t *testing.T) {
	street := strings.Repeat("B", 95)
	a1, a2, a3 := wrapStreet(street, "Suite 2")
	require.Equal(t, strings.Repeat("B", 40), a1)
	require.Equal(t, strings.Repeat("B", 40), a2)
	require.Equal(t, strings.Repeat("B", 15), a3)
}

func TestAPAddressStripsPostalSpaces(t *testing.T) {
	c := testConstants()
	rec, err := c.APAddress(APAddressParams{
		Flow:          APFlowRoutingSlipToCheque,
		InvoiceNumber: "123456789",
		Name:          "Jay Smith",
		Street:        "123 Fort St",
		City:          "Victoria",
		Region:        "BC",
		PostalCode:    "V8V 3K4",
		Country:       "CA",
	})
	require.NoError(t, err)
	require.Contains(t, rec, "V8V3K4")
	require.NotContains(t, rec, "V8V 3K4")
}

func TestAPCommentCapsAtForty(t *testing.T) {
	c := testConstants()
	rec, err := c.APComment(APCommentParams{
		Flow:          APFlowRoutingSlipToCheque,
		InvoiceNumber: "123456789",
		Comment:       strings.Repeat("X", 60),
	})
	require.NoError(t, err)

	body := rec[len("3535APIC")+1 : len(rec)-2]
	require.Equal(t, "0001", body[62:66])
	require.Equal(t, strings.Repeat("X", 40), body[66:106])
	require.Len(t, body, 106)
}
