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

// partnerUnit is one partner's slice of a disbursement file. Partners on the
// disbursement ledger carry rows; legacy partners carry invoices.
type partnerUnit struct {
	partner  ledger.Partner
	invoices []ledger.Invoice
	rows     []ledger.PartnerDisbursement
}

func (u partnerUnit) count() int {
	return len(u.invoices) + len(u.rows)
}

// RunPartnerDistribution builds the GI and GA journal voucher files that
// disburse collected fees to partners.
func (s *Service) RunPartnerDistribution(ctx context.Context) error {
	for _, batchType := range []string{"GI", "GA"} {
		units, err := s.collectPartnerUnits(ctx, batchType)
		if err != nil {
			return err
		}
		for _, fileUnits := range packPartnerUnits(units, batch.MaxTransactionsPerFile) {
			fu := fileUnits
			err := s.runFile(ctx, batch.FileTypeDisbursement, batchType, func(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder) error {
				return s.buildPartnerFile(ctx, tx, file, batchType, batchNumber, b, fu)
			})
			if err != nil {
				return fmt.Errorf("dispatch: partner distribution %s: %w", batchType, err)
			}
		}
	}
	return nil
}

// collectPartnerUnits selects candidates per partner. Selection runs outside
// the file transaction; the conditional claims inside it are what prevent
// double-batching.
func (s *Service) collectPartnerUnits(ctx context.Context, batchType string) ([]partnerUnit, error) {
	led := ledger.NewRepository(s.pool)

	partners, err := led.ListPartners(ctx, batchType)
	if err != nil {
		return nil, err
	}

	var units []partnerUnit
	for _, partner := range partners {
		if partner.Code == s.cfg.NonGovPartnerCode {
			// Disbursed through the AP family instead.
			continue
		}
		unit := partnerUnit{partner: partner}
		if partner.HasPartnerDisbursements {
			unit.rows, err = led.PendingPartnerDisbursements(ctx, partner.Code)
		} else {
			unit.invoices, err = led.InvoicesForDisbursement(ctx, partner.Code)
		}
		if err != nil {
			return nil, err
		}
		if unit.count() > 0 {
			units = append(units, unit)
		}
	}
	return units, nil
}

// packPartnerUnits splits oversized partners by the per-file cap, then packs
// consecutive units into files without crossing it.
func packPartnerUnits(units []partnerUnit, cap int) [][]partnerUnit {
	var split []partnerUnit
	for _, u := range units {
		if u.count() <= cap {
			split = append(split, u)
			continue
		}
		for _, invoices := range batch.Chunk(u.invoices, cap) {
			split = append(split, partnerUnit{partner: u.partner, invoices: invoices})
		}
		for _, rows := range batch.Chunk(u.rows, cap) {
			split = append(split, partnerUnit{partner: u.partner, rows: rows})
		}
	}

	var files [][]partnerUnit
	var current []partnerUnit
	used := 0
	for _, u := range split {
		if used > 0 && used+u.count() > cap {
			files = append(files, current)
			current, used = nil, 0
		}
		current = append(current, u)
		used += u.count()
	}
	if len(current) > 0 {
		files = append(files, current)
	}
	return files
}

func (s *Service) buildPartnerFile(ctx context.Context, tx pgx.Tx, file batch.File, batchType, batchNumber string, b *batch.Builder, units []partnerUnit) error {
	batches := batch.NewRepository(tx)
	led := ledger.NewRepository(tx)
	dist := distribution.NewRepository(tx)
	desc := s.description(s.cfg.DisbursementDesc)
	effective := cgi.NearestBusinessDay(s.now())

	for _, unit := range units {
		header, err := batches.CreateHeader(ctx, file.ID, unit.partner.Code, nil)
		if err != nil {
			return err
		}
		journalName := s.cons.JournalName(header.ID)

		if unit.partner.HasPartnerDisbursements {
			err = s.buildLedgerJournal(ctx, b, led, dist, batches, header, unit, batchType, batchNumber, journalName, desc, effective)
		} else {
			err = s.buildLegacyJournal(ctx, b, led, dist, batches, header, unit, batchType, batchNumber, journalName, desc, effective)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// buildLegacyJournal groups a partner's invoices by fee distribution and
// emits one journal per distribution, crediting the partner GL and debiting
// the registry fee GL per line item.
func (s *Service) buildLegacyJournal(ctx context.Context, b *batch.Builder, led *ledger.Repository, dist *distribution.Repository, batches *batch.Repository, header batch.Header, unit partnerUnit, batchType, batchNumber, journalName, desc string, effective time.Time) error {
	claim := ledger.NewInvoiceDisbursal(led)

	var claimedIDs []int64
	for _, inv := range unit.invoices {
		ok, err := claim.Claim(ctx, inv.ID)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("invoice already claimed by another run", "invoice_id", inv.ID)
			continue
		}
		claimedIDs = append(claimedIDs, inv.ID)
	}
	if len(claimedIDs) == 0 {
		return nil
	}

	items, err := led.LineItems(ctx, claimedIDs)
	if err != nil {
		return err
	}

	// Group by fee distribution, preserving first-seen order.
	var order []int64
	groups := make(map[int64][]ledger.PaymentLineItem)
	for _, li := range items {
		if li.Total.IsZero() {
			continue
		}
		if _, seen := groups[li.FeeDistributionID]; !seen {
			order = append(order, li.FeeDistributionID)
		}
		groups[li.FeeDistributionID] = append(groups[li.FeeDistributionID], li)
	}

	for _, distID := range order {
		lines := groups[distID]
		fee, err := dist.FindByID(ctx, distID)
		if err != nil {
			return err
		}
		if fee.DisbursementDistributionID == nil {
			s.log.Warn("fee distribution has no partner mapping", "distribution_id", distID)
			continue
		}
		partnerCode, err := dist.FindByID(ctx, *fee.DisbursementDistributionID)
		if err != nil {
			return err
		}
		if partnerCode.StopEJV {
			continue
		}
		pair, err := distribution.ForPartnerDisbursement(fee, partnerCode, false)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, li := range lines {
			total = total.Add(li.Total)
		}

		jh, err := s.cons.JVHeader(batchType, journalName, s.cons.JournalBatchName(batchNumber), total)
		if err != nil {
			return err
		}
		b.Add(jh, 1, total)

		lineNumber := 0
		for _, li := range lines {
			flowThrough := fmt.Sprintf("%d", li.InvoiceID)
			for _, posting := range []struct {
				gl string
				cd string
			}{{pair.Credit, "C"}, {pair.Debit, "D"}} {
				lineNumber++
				jd, err := s.cons.JVDetail(cgi.JVDetailParams{
					BatchType:     batchType,
					JournalName:   journalName,
					LineNumber:    lineNumber,
					EffectiveDate: effective,
					Distribution:  posting.gl,
					Amount:        li.Total,
					CreditDebit:   posting.cd,
					Description:   desc,
					FlowThrough:   flowThrough,
				})
				if err != nil {
					return err
				}
				b.Add(jd, 1, decimal.Zero)
			}
		}
	}

	for i, id := range claimedIDs {
		if err := batches.CreateLink(ctx, header.ID, id, batch.LinkTypeInvoice, i+1); err != nil {
			return err
		}
		b.AddTransaction()
	}
	return nil
}

// buildLedgerJournal emits one journal covering a partner's pending
// disbursement ledger rows. Each row resolves its posting pair through the
// underlying line item and flips direction on reversal.
func (s *Service) buildLedgerJournal(ctx context.Context, b *batch.Builder, led *ledger.Repository, dist *distribution.Repository, batches *batch.Repository, header batch.Header, unit partnerUnit, batchType, batchNumber, journalName, desc string, effective time.Time) error {
	claim := ledger.NewPartnerLedgerDisbursal(led)

	type posting struct {
		row         ledger.PartnerDisbursement
		pair        distribution.Pair
		flowThrough string
	}
	var postings []posting
	total := decimal.Zero

	for _, row := range unit.rows {
		ok, err := claim.Claim(ctx, row.ID)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("partner disbursement already claimed", "partner_disbursement_id", row.ID)
			continue
		}

		invoiceID, feeDistID, err := s.resolveLedgerTarget(ctx, led, row)
		if err != nil {
			return err
		}
		fee, err := dist.FindByID(ctx, feeDistID)
		if err != nil {
			return err
		}
		if fee.DisbursementDistributionID == nil {
			s.log.Warn("fee distribution has no partner mapping", "distribution_id", feeDistID)
			continue
		}
		partnerCode, err := dist.FindByID(ctx, *fee.DisbursementDistributionID)
		if err != nil {
			return err
		}
		if partnerCode.StopEJV {
			continue
		}
		pair, err := distribution.ForPartnerDisbursement(fee, partnerCode, row.IsReversal)
		if err != nil {
			return err
		}

		postings = append(postings, posting{
			row:         row,
			pair:        pair,
			flowThrough: fmt.Sprintf("%d-%d", invoiceID, row.ID),
		})
		total = total.Add(row.Amount)
	}
	if len(postings) == 0 {
		return nil
	}

	jh, err := s.cons.JVHeader(batchType, journalName, s.cons.JournalBatchName(batchNumber), total)
	if err != nil {
		return err
	}
	b.Add(jh, 1, total)

	lineNumber := 0
	for _, p := range postings {
		for _, side := range []struct {
			gl string
			cd string
		}{{p.pair.Credit, "C"}, {p.pair.Debit, "D"}} {
			lineNumber++
			jd, err := s.cons.JVDetail(cgi.JVDetailParams{
				BatchType:     batchType,
				JournalName:   journalName,
				LineNumber:    lineNumber,
				EffectiveDate: effective,
				Distribution:  side.gl,
				Amount:        p.row.Amount,
				CreditDebit:   side.cd,
				Description:   desc,
				FlowThrough:   p.flowThrough,
			})
			if err != nil {
				return err
			}
			b.Add(jd, 1, decimal.Zero)
		}
	}

	for i, p := range postings {
		if err := batches.CreateLink(ctx, header.ID, p.row.ID, batch.LinkTypePartnerDisbursement, i+1); err != nil {
			return err
		}
		b.AddTransaction()
	}
	return nil
}

// resolveLedgerTarget resolves a ledger row to its invoice id and fee
// distribution: directly for invoice targets, through the refunded line item
// for partial refunds.
func (s *Service) resolveLedgerTarget(ctx context.Context, led *ledger.Repository, row ledger.PartnerDisbursement) (int64, int64, error) {
	if row.TargetType == batch.LinkTypePartialRefund {
		pr, err := led.FindPartialRefund(ctx, row.TargetID)
		if err != nil {
			return 0, 0, err
		}
		li, err := led.FindLineItem(ctx, pr.PaymentLineItemID)
		if err != nil {
			return 0, 0, err
		}
		return pr.InvoiceID, li.FeeDistributionID, nil
	}

	items, err := led.LineItems(ctx, []int64{row.TargetID})
	if err != nil {
		return 0, 0, err
	}
	if len(items) == 0 {
		return 0, 0, fmt.Errorf("%w: invoice %d has no line items", ledger.ErrNotFound, row.TargetID)
	}
	return row.TargetID, items[0].FeeDistributionID, nil
}
