package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finbatch/internal/batch"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/distribution"
	"github.com/odyssey-erp/finbatch/internal/ledger"
)

// paymentTxn is one balanced posting inside a government account journal:
// credit the fee GL and debit the account GL, swapped on reversal.
type paymentTxn struct {
	lineDist    distribution.Code
	amount      decimal.Decimal
	flowThrough string
	description string
	reversal    bool
	linkType    batch.LinkType
	targetID    int64
}

// accountUnit is one government account's slice of a payment file.
type accountUnit struct {
	accountID int64
	debitDist distribution.Code
	txns      []paymentTxn
}

// RunGovPayment builds the GI and GA journal voucher files that settle
// government account invoices against ministry GLs, including refund
// reversals and partial refunds.
func (s *Service) RunGovPayment(ctx context.Context) error {
	for _, batchType := range []string{"GI", "GA"} {
		units, err := s.collectAccountUnits(ctx, batchType)
		if err != nil {
			return err
		}
		for _, fileUnits := range packAccountUnits(units, batch.MaxTransactionsPerFile) {
			fu := fileUnits
			err := s.runFile(ctx, batch.FileTypePayment, batchType, func(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder) error {
				return s.buildPaymentFile(ctx, tx, file, batchType, batchNumber, b, fu)
			})
			if err != nil {
				return fmt.Errorf("dispatch: gov payment %s: %w", batchType, err)
			}
		}
	}
	return nil
}

func (s *Service) collectAccountUnits(ctx context.Context, batchType string) ([]accountUnit, error) {
	led := ledger.NewRepository(s.pool)
	dist := distribution.NewRepository(s.pool)

	accountIDs, err := dist.ListGovAccountIDs(ctx, batchType, s.cfg.RegistryClientCode)
	if err != nil {
		return nil, err
	}

	var units []accountUnit
	for _, accountID := range accountIDs {
		unit, err := s.collectAccountTransactions(ctx, led, dist, accountID)
		if err != nil {
			return nil, err
		}
		if len(unit.txns) > 0 {
			units = append(units, unit)
		}
	}
	return units, nil
}

func (s *Service) collectAccountTransactions(ctx context.Context, led *ledger.Repository, dist *distribution.Repository, accountID int64) (accountUnit, error) {
	unit := accountUnit{accountID: accountID}

	invoices, err := led.InvoicesForPayment(ctx, accountID)
	if err != nil {
		return unit, err
	}
	partialRefunds, err := led.PartialRefundsForAccount(ctx, accountID)
	if err != nil {
		return unit, err
	}
	if len(invoices) == 0 && len(partialRefunds) == 0 {
		return unit, nil
	}

	unit.debitDist, err = dist.FindActiveForAccount(ctx, accountID)
	if err != nil {
		return unit, err
	}
	accountName, err := led.AccountName(ctx, accountID)
	if err != nil {
		return unit, err
	}

	for _, inv := range invoices {
		reversal := inv.Status == ledger.InvoiceStatusRefundRequested
		desc := accountDescription(accountName, inv.ID)

		items, err := led.LineItems(ctx, []int64{inv.ID})
		if err != nil {
			return unit, err
		}
		for _, li := range items {
			txns, err := lineItemTxns(ctx, dist, li, desc, reversal)
			if err != nil {
				return unit, err
			}
			unit.txns = append(unit.txns, txns...)
		}
	}

	for _, pr := range partialRefunds {
		li, err := led.FindLineItem(ctx, pr.PaymentLineItemID)
		if err != nil {
			return unit, err
		}
		lineDist, err := dist.FindByID(ctx, li.FeeDistributionID)
		if err != nil {
			return unit, err
		}
		if pr.IsServiceFee {
			if lineDist.ServiceFeeDistributionID == nil {
				return unit, fmt.Errorf("%w: service fee distribution for code %d", distribution.ErrUnconfigured, lineDist.ID)
			}
			lineDist, err = dist.FindByID(ctx, *lineDist.ServiceFeeDistributionID)
			if err != nil {
				return unit, err
			}
		}
		unit.txns = append(unit.txns, paymentTxn{
			lineDist:    lineDist,
			amount:      pr.RefundAmount,
			flowThrough: fmt.Sprintf("%d-PR-%d", pr.InvoiceID, pr.ID),
			description: accountDescription(accountName, pr.InvoiceID),
			reversal:    true,
			linkType:    batch.LinkTypePartialRefund,
			targetID:    pr.ID,
		})
	}

	return unit, nil
}

// codeFinder resolves distribution codes; satisfied by *distribution.Repository.
type codeFinder interface {
	FindByID(ctx context.Context, id int64) (distribution.Code, error)
}

// lineItemTxns expands one payment line item into its postings. A line can
// carry up to four: the fee total plus the service fee, service fee GST and
// statutory fee GST splits, each against its own linked distribution code.
func lineItemTxns(ctx context.Context, dist codeFinder, li ledger.PaymentLineItem, desc string, reversal bool) ([]paymentTxn, error) {
	lineDist, err := dist.FindByID(ctx, li.FeeDistributionID)
	if err != nil {
		return nil, err
	}

	var txns []paymentTxn
	add := func(code distribution.Code, amount decimal.Decimal) {
		txns = append(txns, paymentTxn{
			lineDist:    code,
			amount:      amount,
			flowThrough: fmt.Sprintf("%d", li.InvoiceID),
			description: desc,
			reversal:    reversal,
			linkType:    batch.LinkTypeInvoice,
			targetID:    li.InvoiceID,
		})
	}

	if li.Total.IsPositive() {
		add(lineDist, li.Total)
	}
	splits := []struct {
		amount decimal.Decimal
		distID *int64
	}{
		{li.ServiceFees, lineDist.ServiceFeeDistributionID},
		{li.ServiceFeesGST, lineDist.ServiceFeeGSTDistributionID},
		{li.StatutoryFeesGST, lineDist.StatutoryFeesGSTDistributionID},
	}
	for _, split := range splits {
		if !split.amount.IsPositive() {
			continue
		}
		if split.distID == nil {
			return nil, fmt.Errorf("%w: split distribution for code %d", distribution.ErrUnconfigured, lineDist.ID)
		}
		code, err := dist.FindByID(ctx, *split.distID)
		if err != nil {
			return nil, err
		}
		add(code, split.amount)
	}
	return txns, nil
}

func packAccountUnits(units []accountUnit, cap int) [][]accountUnit {
	var split []accountUnit
	for _, u := range units {
		if len(u.txns) <= cap {
			split = append(split, u)
			continue
		}
		for _, txns := range batch.Chunk(u.txns, cap) {
			split = append(split, accountUnit{accountID: u.accountID, debitDist: u.debitDist, txns: txns})
		}
	}

	var files [][]accountUnit
	var current []accountUnit
	used := 0
	for _, u := range split {
		if used > 0 && used+len(u.txns) > cap {
			files = append(files, current)
			current, used = nil, 0
		}
		current = append(current, u)
		used += len(u.txns)
	}
	if len(current) > 0 {
		files = append(files, current)
	}
	return files
}

func (s *Service) buildPaymentFile(ctx context.Context, tx pgx.Tx, file batch.File, batchType, batchNumber string, b *batch.Builder, units []accountUnit) error {
	batches := batch.NewRepository(tx)
	led := ledger.NewRepository(tx)
	effective := cgi.NearestBusinessDay(s.now())

	for _, unit := range units {
		if err := s.buildAccountJournal(ctx, b, batches, led, file, unit, batchType, batchNumber, effective); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) buildAccountJournal(ctx context.Context, b *batch.Builder, batches *batch.Repository, led *ledger.Repository, file batch.File, unit accountUnit, batchType, batchNumber string, effective time.Time) error {
	accountID := unit.accountID
	header, err := batches.CreateHeader(ctx, file.ID, "", &accountID)
	if err != nil {
		return err
	}
	journalName := s.cons.JournalName(header.ID)

	// Claim targets first; transactions on an entity another run already
	// claimed are dropped as a set.
	claimed := make(map[string]bool)
	var txns []paymentTxn
	for _, t := range unit.txns {
		key := fmt.Sprintf("%s:%d", t.linkType, t.targetID)
		if _, seen := claimed[key]; !seen {
			ok, err := s.claimPaymentTarget(ctx, led, t)
			if err != nil {
				return err
			}
			if !ok {
				s.log.Warn("payment target already claimed", "link_type", t.linkType, "target_id", t.targetID)
			}
			claimed[key] = ok
		}
		if claimed[key] {
			txns = append(txns, t)
		}
	}
	if len(txns) == 0 {
		return nil
	}

	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.amount)
	}

	jh, err := s.cons.JVHeader(batchType, journalName, s.cons.JournalBatchName(batchNumber), total)
	if err != nil {
		return err
	}
	b.Add(jh, 1, total)

	lineNumber := 0
	for _, t := range txns {
		pair, err := distribution.ForGovPayment(t.lineDist, unit.debitDist, t.reversal)
		if err != nil {
			return err
		}
		// Fee GL line first, then the account GL counter-line.
		fee := struct{ gl, cd string }{pair.Credit, "C"}
		account := struct{ gl, cd string }{pair.Debit, "D"}
		if t.reversal {
			fee = struct{ gl, cd string }{pair.Debit, "D"}
			account = struct{ gl, cd string }{pair.Credit, "C"}
		}
		for _, side := range []struct{ gl, cd string }{fee, account} {
			lineNumber++
			jd, err := s.cons.JVDetail(cgi.JVDetailParams{
				BatchType:     batchType,
				JournalName:   journalName,
				LineNumber:    lineNumber,
				EffectiveDate: effective,
				Distribution:  side.gl,
				Amount:        t.amount,
				CreditDebit:   side.cd,
				Description:   t.description,
				FlowThrough:   t.flowThrough,
			})
			if err != nil {
				return err
			}
			b.Add(jd, 1, decimal.Zero)
		}
	}

	sequence := 1
	linked := make(map[string]bool)
	for _, t := range txns {
		key := fmt.Sprintf("%s:%d", t.linkType, t.targetID)
		if linked[key] {
			continue
		}
		linked[key] = true
		if err := batches.CreateLink(ctx, header.ID, t.targetID, t.linkType, sequence); err != nil {
			return err
		}
		sequence++
		b.AddTransaction()
	}
	return nil
}

func (s *Service) claimPaymentTarget(ctx context.Context, led *ledger.Repository, t paymentTxn) (bool, error) {
	switch t.linkType {
	case batch.LinkTypePartialRefund:
		if err := led.SetPartialRefundStatus(ctx, t.targetID, ledger.PartialRefundProcessing, nil, ""); err != nil {
			return false, err
		}
		return true, nil
	default:
		return led.ClaimInvoiceDisbursement(ctx, t.targetID)
	}
}
