package cgi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrFlowUnconfigured is returned when an AP flow resolves to supplier or
// distribution constants that were never configured. The batch run must abort
// rather than emit a record against a blank supplier.
var ErrFlowUnconfigured = errors.New("cgi: ap flow not configured")

// APFlow selects which constant supplier/location/distribution set an AP
// record is keyed by.
type APFlow string

const (
	APFlowRoutingSlipToCheque APFlow = "ROUTING_SLIP_TO_CHEQUE"
	APFlowEFTToCheque         APFlow = "EFT_TO_CHEQUE"
	APFlowEFTToEFT            APFlow = "EFT_TO_EFT"
	APFlowNonGovToEFT         APFlow = "NON_GOV_TO_EFT"
)

// Constants is the externally supplied record-layout constant table. Values
// come from configuration, not code.
type Constants struct {
	FeederNumber      string
	MinistryPrefix    string
	MessageVersion    string
	EJVSupplierNumber string
	TriggerSuffix     string

	APSupplierNumber   string
	APSupplierLocation string
	APDistribution     string
	APRemittanceCode   string

	BCASupplierNumber   string
	BCASupplierLocation string
	EFTAPDistribution   string
}

// Record layout tables. Field ordering is data, not code, so near-identical
// layouts stay declarative.
var (
	batchHeaderFields = []Field{
		{Name: "feeder", Width: 4},
		{Name: "fiscalYear", Width: 4},
		{Name: "batchNumber", Width: 9, ZeroPad: true},
		{Name: "messageVersion", Width: 4},
	}
	batchTrailerFields = []Field{
		{Name: "feeder", Width: 4},
		{Name: "fiscalYear", Width: 4},
		{Name: "batchNumber", Width: 9, ZeroPad: true},
		{Name: "controlTotal", Width: 15, ZeroPad: true},
		{Name: "batchTotal", Width: 15},
	}
	jvHeaderFields = []Field{
		{Name: "journalName", Width: 10},
		{Name: "journalBatchName", Width: 25},
		{Name: "total", Width: 15},
		{Name: "currencyType", Width: 4},
		{Name: "filler1", Width: 100},
		{Name: "filler2", Width: 110},
	}
	jvDetailFields = []Field{
		{Name: "journalName", Width: 10},
		{Name: "lineNumber", Width: 5, ZeroPad: true},
		{Name: "effectiveDate", Width: 8},
		{Name: "distribution", Width: 50},
		{Name: "supplierNumber", Width: 9},
		{Name: "amount", Width: 15},
		{Name: "creditDebit", Width: 1},
		{Name: "description", Width: 100, Truncatable: true},
		{Name: "flowThrough", Width: 110},
	}
	apHeaderFields = []Field{
		{Name: "supplierNumber", Width: 9},
		{Name: "supplierSite", Width: 3},
		{Name: "invoiceNumber", Width: 50},
		{Name: "poNumber", Width: 20},
		{Name: "invoiceType", Width: 2},
		{Name: "invoiceDate", Width: 8},
		{Name: "paymentGroup", Width: 4},
		{Name: "disbursementMethod", Width: 3},
		{Name: "taxFlag", Width: 2},
		{Name: "remitCode", Width: 4},
		{Name: "grossAmount", Width: 15},
		{Name: "currency", Width: 3},
		{Name: "effectiveDate", Width: 8},
		{Name: "term", Width: 50},
		{Name: "filler1", Width: 60},
		{Name: "filler2", Width: 8},
		{Name: "filler3", Width: 8},
		{Name: "oracleBatchName", Width: 30, Truncatable: true},
		{Name: "filler4", Width: 9},
		{Name: "payFlag", Width: 1},
		{Name: "filler5", Width: 110},
	}
	apLineFields = []Field{
		{Name: "supplierNumber", Width: 9},
		{Name: "supplierSite", Width: 3},
		{Name: "invoiceNumber", Width: 50},
		{Name: "lineNumber", Width: 4, ZeroPad: true},
		{Name: "commitLineNumber", Width: 4},
		{Name: "amount", Width: 15},
		{Name: "lineCode", Width: 1},
		{Name: "distribution", Width: 50},
		{Name: "filler1", Width: 55},
		{Name: "effectiveDate", Width: 8},
		{Name: "filler2", Width: 10},
		{Name: "filler3", Width: 15},
		{Name: "filler4", Width: 15},
		{Name: "filler5", Width: 15},
		{Name: "filler6", Width: 15},
		{Name: "filler7", Width: 20},
		{Name: "filler8", Width: 4},
		{Name: "filler9", Width: 30},
		{Name: "filler10", Width: 25},
		{Name: "filler11", Width: 30},
		{Name: "filler12", Width: 8},
		{Name: "filler13", Width: 1},
		{Name: "distVendor", Width: 30},
		{Name: "filler14", Width: 110},
	}
	apAddressFields = []Field{
		{Name: "supplierNumber", Width: 9},
		{Name: "supplierSite", Width: 3},
		{Name: "invoiceNumber", Width: 50},
		{Name: "name1", Width: 40, Truncatable: true},
		{Name: "name2", Width: 40, Truncatable: true},
		{Name: "address1", Width: 40, Truncatable: true},
		{Name: "address2", Width: 40, Truncatable: true},
		{Name: "address3", Width: 40, Truncatable: true},
		{Name: "city", Width: 25, Truncatable: true},
		{Name: "region", Width: 2, Truncatable: true},
		{Name: "postalCode", Width: 10, Truncatable: true},
		{Name: "country", Width: 2, Truncatable: true},
	}
	apCommentFields = []Field{
		{Name: "supplierNumber", Width: 9},
		{Name: "supplierSite", Width: 3},
		{Name: "invoiceNumber", Width: 50},
		{Name: "lineText", Width: 4},
		{Name: "comment", Width: 40, Truncatable: true},
	}
)

// record prefixes every layout with feeder number, batch type and the
// two-character record code, then wraps body and trailing delimiter.
func (c Constants) record(batchType, code string, fields []Field, values map[string]string) (string, error) {
	body, err := compose(fields, values)
	if err != nil {
		return "", fmt.Errorf("cgi: %s%s record: %w", batchType, code, err)
	}
	return c.FeederNumber + batchType + code + Delimiter + body + Delimiter + LineEnding, nil
}

// FileName returns the inbox object name for a batch produced at t.
func (c Constants) FileName(t time.Time) string {
	return fmt.Sprintf("INBOX.F%s.%s", c.FeederNumber, NearestBusinessDay(t).Format("20060102150405"))
}

// TriggerName returns the paired trigger object name for a data file.
func (c Constants) TriggerName(fileName string) string {
	return fileName + "." + c.TriggerSuffix
}

// BatchNumber renders a batch file id as the nine-digit batch number.
func (c Constants) BatchNumber(fileID int64) string {
	return fmt.Sprintf("%09d", fileID)
}

// JournalName renders a batch header id as the ten-character journal name.
func (c Constants) JournalName(headerID int64) string {
	return fmt.Sprintf("%s%08d", c.MinistryPrefix, headerID)
}

// JournalBatchName returns the 25-character journal batch name.
func (c Constants) JournalBatchName(batchNumber string) string {
	return PadRight(c.MinistryPrefix+batchNumber, 25)
}

// BatchHeader renders the BH record opening a batch.
func (c Constants) BatchHeader(batchType, batchNumber string, now time.Time) (string, error) {
	return c.record(batchType, "BH", batchHeaderFields, map[string]string{
		"feeder":         c.FeederNumber,
		"fiscalYear":     FiscalYear(now),
		"batchNumber":    batchNumber,
		"messageVersion": c.MessageVersion,
	})
}

// BatchTrailer renders the BT record closing a batch with its control totals.
func (c Constants) BatchTrailer(batchType, batchNumber string, controlTotal int, batchTotal decimal.Decimal, now time.Time) (string, error) {
	total, err := Amount(batchTotal)
	if err != nil {
		return "", err
	}
	return c.record(batchType, "BT", batchTrailerFields, map[string]string{
		"feeder":       c.FeederNumber,
		"fiscalYear":   FiscalYear(now),
		"batchNumber":  batchNumber,
		"controlTotal": fmt.Sprintf("%d", controlTotal),
		"batchTotal":   total,
	})
}

// JVHeader renders the JH record opening one journal voucher.
func (c Constants) JVHeader(batchType, journalName, journalBatchName string, total decimal.Decimal) (string, error) {
	amount, err := Amount(total)
	if err != nil {
		return "", err
	}
	return c.record(batchType, "JH", jvHeaderFields, map[string]string{
		"journalName":      journalName,
		"journalBatchName": journalBatchName,
		"total":            amount,
		"currencyType":     "ACAD",
	})
}

// JVDetailParams carries one journal voucher detail posting.
type JVDetailParams struct {
	BatchType     string
	JournalName   string
	LineNumber    int
	EffectiveDate time.Time
	Distribution  string
	Amount        decimal.Decimal
	CreditDebit   string
	Description   string
	FlowThrough   string
}

// JVDetail renders the JD record for one posting.
func (c Constants) JVDetail(p JVDetailParams) (string, error) {
	amount, err := Amount(p.Amount)
	if err != nil {
		return "", err
	}
	return c.record(p.BatchType, "JD", jvDetailFields, map[string]string{
		"journalName":    p.JournalName,
		"lineNumber":     fmt.Sprintf("%d", p.LineNumber),
		"effectiveDate":  Date(p.EffectiveDate),
		"distribution":   p.Distribution,
		"supplierNumber": c.EJVSupplierNumber,
		"amount":         amount,
		"creditDebit":    p.CreditDebit,
		"description":    p.Description,
		"flowThrough":    p.FlowThrough,
	})
}

// DistributionGL concatenates GL segments into the 50-character distribution
// string. Every segment must already be at its exact width.
func DistributionGL(client, responsibilityCentre, serviceLine, stob, project string) (string, error) {
	widths := []struct {
		name  string
		value string
		width int
	}{
		{"client", client, 3},
		{"responsibility centre", responsibilityCentre, 5},
		{"service line", serviceLine, 5},
		{"stob", stob, 4},
		{"project", project, 7},
	}
	var b strings.Builder
	for _, seg := range widths {
		if len(seg.value) != seg.width {
			return "", fmt.Errorf("%w: gl segment %s %q must be %d characters", ErrFieldOverflow, seg.name, seg.value, seg.width)
		}
		b.WriteString(seg.value)
	}
	b.WriteString("0000000000")
	b.WriteString(strings.Repeat(" ", 16))
	return b.String(), nil
}

// SupplierNumber resolves the nine-character supplier for an AP flow.
func (c Constants) SupplierNumber(flow APFlow, supplierNumber string) (string, error) {
	switch flow {
	case APFlowNonGovToEFT:
		return c.required(c.BCASupplierNumber, flow)
	case APFlowRoutingSlipToCheque, APFlowEFTToCheque:
		return c.required(c.APSupplierNumber, flow)
	case APFlowEFTToEFT:
		return c.required(supplierNumber, flow)
	default:
		return "", fmt.Errorf("%w: supplier number for flow %q", ErrFlowUnconfigured, flow)
	}
}

// SupplierLocation resolves the three-character supplier site for an AP flow.
func (c Constants) SupplierLocation(flow APFlow, supplierSite string) (string, error) {
	switch flow {
	case APFlowNonGovToEFT:
		return c.required(c.BCASupplierLocation, flow)
	case APFlowRoutingSlipToCheque, APFlowEFTToCheque:
		return c.required(c.APSupplierLocation, flow)
	case APFlowEFTToEFT:
		return c.required(supplierSite, flow)
	default:
		return "", fmt.Errorf("%w: supplier location for flow %q", ErrFlowUnconfigured, flow)
	}
}

// APDistributionString resolves the 50-character distribution for an AP line.
// Non-gov disbursements carry the partner's own GL; refund flows post against
// the configured constant distribution.
func (c Constants) APDistributionString(flow APFlow, partnerGL string) (string, error) {
	switch flow {
	case APFlowNonGovToEFT:
		if partnerGL == "" {
			return "", fmt.Errorf("%w: non-gov distribution", ErrFlowUnconfigured)
		}
		return partnerGL, nil
	case APFlowRoutingSlipToCheque:
		gl, err := c.required(c.APDistribution, flow)
		if err != nil {
			return "", err
		}
		return PadRight(gl, 50), nil
	case APFlowEFTToCheque, APFlowEFTToEFT:
		gl, err := c.required(c.EFTAPDistribution, flow)
		if err != nil {
			return "", err
		}
		return PadRight(gl, 50), nil
	default:
		return "", fmt.Errorf("%w: distribution for flow %q", ErrFlowUnconfigured, flow)
	}
}

func (c Constants) required(value string, flow APFlow) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: flow %q", ErrFlowUnconfigured, flow)
	}
	return value, nil
}

func (c Constants) disbursementMethod(flow APFlow) (string, error) {
	switch flow {
	case APFlowNonGovToEFT, APFlowEFTToEFT:
		return "EFT", nil
	case APFlowRoutingSlipToCheque, APFlowEFTToCheque:
		return "CHQ", nil
	default:
		return "", fmt.Errorf("%w: disbursement method for flow %q", ErrFlowUnconfigured, flow)
	}
}

// OracleBatchName derives the AP invoice batch name for the flow.
func (c Constants) OracleBatchName(flow APFlow, invoiceNumber string) (string, error) {
	var name string
	switch flow {
	case APFlowNonGovToEFT:
		name = invoiceNumber
	case APFlowRoutingSlipToCheque:
		name = "REFUND_FAS_RS_" + invoiceNumber
	case APFlowEFTToEFT, APFlowEFTToCheque:
		name = "REFUND_EFT_" + invoiceNumber
	default:
		return "", fmt.Errorf("%w: oracle batch name for flow %q", ErrFlowUnconfigured, flow)
	}
	if len(name) > 30 {
		name = name[:30]
	}
	return name, nil
}

// APHeaderParams carries one AP invoice header.
type APHeaderParams struct {
	Flow           APFlow
	SupplierNumber string
	SupplierSite   string
	InvoiceNumber  string
	InvoiceDate    time.Time
	Total          decimal.Decimal
	Now            time.Time
}

// APHeader renders the IH record opening one AP invoice.
func (c Constants) APHeader(p APHeaderParams) (string, error) {
	supplier, err := c.SupplierNumber(p.Flow, p.SupplierNumber)
	if err != nil {
		return "", err
	}
	site, err := c.SupplierLocation(p.Flow, p.SupplierSite)
	if err != nil {
		return "", err
	}
	method, err := c.disbursementMethod(p.Flow)
	if err != nil {
		return "", err
	}
	oracleBatch, err := c.OracleBatchName(p.Flow, p.InvoiceNumber)
	if err != nil {
		return "", err
	}
	amount, err := Amount(p.Total)
	if err != nil {
		return "", err
	}
	return c.record("AP", "IH", apHeaderFields, map[string]string{
		"supplierNumber":     supplier,
		"supplierSite":       site,
		"invoiceNumber":      p.InvoiceNumber,
		"invoiceType":        "ST",
		"invoiceDate":        Date(p.InvoiceDate),
		"paymentGroup":       "GEN ",
		"disbursementMethod": method,
		"taxFlag":            " N",
		"remitCode":          c.APRemittanceCode,
		"grossAmount":        amount,
		"currency":           "CAD",
		"effectiveDate":      Date(NearestBusinessDay(p.Now)),
		"term":               "Immediate",
		"oracleBatchName":    oracleBatch,
		"payFlag":            "Y",
	})
}

// APLineParams carries one AP invoice line.
type APLineParams struct {
	Flow           APFlow
	SupplierNumber string
	SupplierSite   string
	InvoiceNumber  string
	LineNumber     int
	Amount         decimal.Decimal
	// IsReversal flips the non-gov line code from debit to credit.
	IsReversal bool
	PartnerGL  string
	Now        time.Time
}

// lineCode reports C or D for the AP line. Refund flows always debit; the
// non-gov disbursement flow credits on reversal.
func (p APLineParams) lineCode() string {
	if p.Flow == APFlowNonGovToEFT && p.IsReversal {
		return "C"
	}
	return "D"
}

// APLine renders the IL record for one AP invoice line.
func (c Constants) APLine(p APLineParams) (string, error) {
	supplier, err := c.SupplierNumber(p.Flow, p.SupplierNumber)
	if err != nil {
		return "", err
	}
	site, err := c.SupplierLocation(p.Flow, p.SupplierSite)
	if err != nil {
		return "", err
	}
	distribution, err := c.APDistributionString(p.Flow, p.PartnerGL)
	if err != nil {
		return "", err
	}
	amount, err := Amount(p.Amount)
	if err != nil {
		return "", err
	}
	return c.record("AP", "IL", apLineFields, map[string]string{
		"supplierNumber": supplier,
		"supplierSite":   site,
		"invoiceNumber":  p.InvoiceNumber,
		"lineNumber":     fmt.Sprintf("%d", p.LineNumber),
		"amount":         amount,
		"lineCode":       p.lineCode(),
		"distribution":   distribution,
		"effectiveDate":  Date(NearestBusinessDay(p.Now)),
		"distVendor":     supplier,
	})
}

// APAddressParams carries the cheque mailing address override.
type APAddressParams struct {
	Flow             APFlow
	SupplierNumber   string
	SupplierSite     string
	InvoiceNumber    string
	Name             string
	Street           string
	StreetAdditional string
	City             string
	Region           string
	PostalCode       string
	Country          string
}

// APAddress renders the NA record. Streets longer than one 40-character line
// wrap onto the second and third address lines; the additional street line is
// only emitted while a slot remains.
func (c Constants) APAddress(p APAddressParams) (string, error) {
	supplier, err := c.SupplierNumber(p.Flow, p.SupplierNumber)
	if err != nil {
		return "", err
	}
	site, err := c.SupplierLocation(p.Flow, p.SupplierSite)
	if err != nil {
		return "", err
	}
	address1, address2, address3 := wrapStreet(p.Street, p.StreetAdditional)
	name1, name2 := p.Name, ""
	if len(name1) > 40 {
		name1, name2 = p.Name[:40], p.Name[40:]
	}
	return c.record("AP", "NA", apAddressFields, map[string]string{
		"supplierNumber": supplier,
		"supplierSite":   site,
		"invoiceNumber":  p.InvoiceNumber,
		"name1":          name1,
		"name2":          name2,
		"address1":       address1,
		"address2":       address2,
		"address3":       address3,
		"city":           p.City,
		"region":         p.Region,
		"postalCode":     strings.ReplaceAll(p.PostalCode, " ", ""),
		"country":        p.Country,
	})
}

// wrapStreet splits a street across up to three 40-character lines. The
// additional street line rides in the first free slot and is dropped once the
// street itself fills all three.
func wrapStreet(street, streetAdditional string) (string, string, string) {
	switch {
	case len(street) > 80:
		return street[:40], street[40:80], street[80:]
	case len(street) > 40:
		return street[:40], street[40:], streetAdditional
	default:
		return street, streetAdditional, ""
	}
}

// APCommentParams carries the cheque advice comment.
type APCommentParams struct {
	Flow           APFlow
	SupplierNumber string
	SupplierSite   string
	InvoiceNumber  string
	Comment        string
}

// APComment renders the IC record; comments are capped at 40 characters.
func (c Constants) APComment(p APCommentParams) (string, error) {
	supplier, err := c.SupplierNumber(p.Flow, p.SupplierNumber)
	if err != nil {
		return "", err
	}
	site, err := c.SupplierLocation(p.Flow, p.SupplierSite)
	if err != nil {
		return "", err
	}
	return c.record("AP", "IC", apCommentFields, map[string]string{
		"supplierNumber": supplier,
		"supplierSite":   site,
		"invoiceNumber":  p.InvoiceNumber,
		"lineText":       "0001",
		"comment":        p.Comment,
	})
}
