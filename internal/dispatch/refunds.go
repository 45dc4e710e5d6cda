package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finbatch/internal/batch"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/distribution"
	"github.com/odyssey-erp/finbatch/internal/ledger"
)

// RunAPRefunds builds the accounts payable files: routing slip cheque
// refunds, non-gov partner disbursements and EFT short name refunds. The
// sub-families are independent; one failing does not stop the others.
func (s *Service) RunAPRefunds(ctx context.Context) error {
	var errs []error
	if err := s.runRoutingSlipRefunds(ctx); err != nil {
		s.log.Error("routing slip refund file failed", "error", err)
		errs = append(errs, fmt.Errorf("routing slip refunds: %w", err))
	}
	if err := s.runNonGovDisbursements(ctx); err != nil {
		s.log.Error("non-gov disbursement file failed", "error", err)
		errs = append(errs, fmt.Errorf("non-gov disbursements: %w", err))
	}
	if err := s.runEFTRefunds(ctx); err != nil {
		s.log.Error("eft refund file failed", "error", err)
		errs = append(errs, fmt.Errorf("eft refunds: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("dispatch: ap refunds: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Service) runRoutingSlipRefunds(ctx context.Context) error {
	led := ledger.NewRepository(s.pool)
	slips, err := led.RoutingSlipsForRefund(ctx)
	if err != nil {
		return err
	}

	for _, chunk := range batch.Chunk(slips, batch.MaxTransactionsPerFile) {
		slips := chunk
		err := s.runFile(ctx, batch.FileTypeRefund, "AP", func(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder) error {
			return s.buildRoutingSlipFile(ctx, tx, b, slips)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// buildRoutingSlipFile writes one cheque per routing slip: invoice header,
// one line for the unused balance, the mailing address and an optional
// cheque advice comment. The slip number itself is the invoice number the
// feedback file echoes back.
func (s *Service) buildRoutingSlipFile(ctx context.Context, tx pgx.Tx, b *batch.Builder, slips []ledger.RoutingSlip) error {
	led := ledger.NewRepository(tx)
	now := s.now()

	for _, rs := range slips {
		ok, err := led.ClaimRoutingSlipRefund(ctx, rs.ID)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("routing slip already claimed", "routing_slip_id", rs.ID)
			continue
		}
		refund, err := led.FindRefundByRoutingSlip(ctx, rs.ID)
		if err != nil {
			return err
		}

		flow := cgi.APFlowRoutingSlipToCheque
		ih, err := s.cons.APHeader(cgi.APHeaderParams{
			Flow:          flow,
			InvoiceNumber: rs.Number,
			InvoiceDate:   now,
			Total:         rs.RefundAmount,
			Now:           now,
		})
		if err != nil {
			return err
		}
		b.Add(ih, 1, rs.RefundAmount)

		il, err := s.cons.APLine(cgi.APLineParams{
			Flow:          flow,
			InvoiceNumber: rs.Number,
			LineNumber:    1,
			Amount:        rs.RefundAmount,
			Now:           now,
		})
		if err != nil {
			return err
		}
		b.Add(il, 1, decimal.Zero)

		na, err := s.cons.APAddress(cgi.APAddressParams{
			Flow:             flow,
			InvoiceNumber:    rs.Number,
			Name:             refund.Details.Name,
			Street:           refund.Details.Street,
			StreetAdditional: refund.Details.StreetAdditional,
			City:             refund.Details.City,
			Region:           refund.Details.Region,
			PostalCode:       refund.Details.PostalCode,
			Country:          refund.Details.Country,
		})
		if err != nil {
			return err
		}
		b.Add(na, 1, decimal.Zero)

		if refund.Details.ChequeAdvice != "" {
			ic, err := s.cons.APComment(cgi.APCommentParams{
				Flow:          flow,
				InvoiceNumber: rs.Number,
				Comment:       refund.Details.ChequeAdvice,
			})
			if err != nil {
				return err
			}
			b.Add(ic, 1, decimal.Zero)
		}
		b.AddTransaction()
	}
	return nil
}

func (s *Service) runEFTRefunds(ctx context.Context) error {
	led := ledger.NewRepository(s.pool)
	refunds, err := led.EFTRefundsApproved(ctx)
	if err != nil {
		return err
	}

	for _, chunk := range batch.Chunk(refunds, batch.MaxTransactionsPerFile) {
		refunds := chunk
		err := s.runFile(ctx, batch.FileTypeEFTRefund, "AP", func(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder) error {
			return s.buildEFTRefundFile(ctx, tx, b, refunds)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) buildEFTRefundFile(ctx context.Context, tx pgx.Tx, b *batch.Builder, refunds []ledger.EFTRefund) error {
	led := ledger.NewRepository(tx)
	now := s.now()

	for _, er := range refunds {
		ok, err := led.SetEFTRefundUploaded(ctx, er.ID)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("eft refund already claimed", "eft_refund_id", er.ID)
			continue
		}

		flow := cgi.APFlowEFTToCheque
		if er.RefundMethod == ledger.RefundMethodEFT {
			flow = cgi.APFlowEFTToEFT
		}
		invoiceNumber := fmt.Sprintf("%d", er.ID)

		ih, err := s.cons.APHeader(cgi.APHeaderParams{
			Flow:           flow,
			SupplierNumber: er.SupplierNumber,
			SupplierSite:   er.SupplierSite,
			InvoiceNumber:  invoiceNumber,
			InvoiceDate:    er.CreatedOn,
			Total:          er.RefundAmount,
			Now:            now,
		})
		if err != nil {
			return err
		}
		b.Add(ih, 1, er.RefundAmount)

		il, err := s.cons.APLine(cgi.APLineParams{
			Flow:           flow,
			SupplierNumber: er.SupplierNumber,
			SupplierSite:   er.SupplierSite,
			InvoiceNumber:  invoiceNumber,
			LineNumber:     1,
			Amount:         er.RefundAmount,
			Now:            now,
		})
		if err != nil {
			return err
		}
		b.Add(il, 1, decimal.Zero)

		if flow == cgi.APFlowEFTToCheque {
			na, err := s.cons.APAddress(cgi.APAddressParams{
				Flow:             flow,
				SupplierNumber:   er.SupplierNumber,
				SupplierSite:     er.SupplierSite,
				InvoiceNumber:    invoiceNumber,
				Name:             er.Address.Name,
				Street:           er.Address.Street,
				StreetAdditional: er.Address.StreetAdditional,
				City:             er.Address.City,
				Region:           er.Address.Region,
				PostalCode:       er.Address.PostalCode,
				Country:          er.Address.Country,
			})
			if err != nil {
				return err
			}
			b.Add(na, 1, decimal.Zero)
		}

		ic, err := s.cons.APComment(cgi.APCommentParams{
			Flow:           flow,
			SupplierNumber: er.SupplierNumber,
			SupplierSite:   er.SupplierSite,
			InvoiceNumber:  invoiceNumber,
			Comment:        fmt.Sprintf(" %d - %s", er.ShortNameID, er.Comment),
		})
		if err != nil {
			return err
		}
		b.Add(ic, 1, decimal.Zero)
		b.AddTransaction()
	}
	return nil
}

func (s *Service) runNonGovDisbursements(ctx context.Context) error {
	led := ledger.NewRepository(s.pool)

	forward, err := led.NonGovInvoicesForDisbursement(ctx, s.cfg.NonGovPartnerCode)
	if err != nil {
		return err
	}
	reversals, err := led.NonGovInvoicesForReversal(ctx, s.cfg.NonGovPartnerCode)
	if err != nil {
		return err
	}
	invoices := payableNonGov(append(forward, reversals...))

	for _, chunk := range batch.Chunk(invoices, batch.MaxTransactionsPerFile) {
		invoices := chunk
		err := s.runFile(ctx, batch.FileTypeNonGovDisbursement, "AP", func(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder) error {
			return s.buildNonGovFile(ctx, tx, file, b, invoices)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// payableNonGov drops invoices whose partner amount nets to zero. Filtering
// happens before the claim, so a zero-total invoice is never marked claimed
// without a line link for feedback to settle.
func payableNonGov(invoices []ledger.Invoice) []ledger.Invoice {
	var payable []ledger.Invoice
	for _, inv := range invoices {
		if inv.Total.Sub(inv.ServiceFees).IsZero() {
			continue
		}
		payable = append(payable, inv)
	}
	return payable
}

// buildNonGovFile disburses to a partner without a GL by paying its supplier
// record via EFT. One invoice header per invoice, one line per fee line, the
// partner amount excluding service fees.
func (s *Service) buildNonGovFile(ctx context.Context, tx pgx.Tx, file batch.File, b *batch.Builder, invoices []ledger.Invoice) error {
	batches := batch.NewRepository(tx)
	led := ledger.NewRepository(tx)
	dist := distribution.NewRepository(tx)
	now := s.now()
	flow := cgi.APFlowNonGovToEFT

	partnerDist, err := dist.FindByName(ctx, s.cfg.NonGovDistributionName)
	if err != nil {
		return err
	}
	// The AP line carries the raw GL segments; the record pads to width.
	partnerGL := partnerDist.Client + partnerDist.ResponsibilityCentre +
		partnerDist.ServiceLine + partnerDist.STOB + partnerDist.ProjectCode

	// The feedback file does not echo journal headers for AP, but one header
	// row keeps the file -> header -> link chain queryable.
	header, err := batches.CreateHeader(ctx, file.ID, s.cfg.NonGovPartnerCode, nil)
	if err != nil {
		return err
	}

	sequence := 1
	for _, inv := range invoices {
		reversal := inv.Status == ledger.InvoiceStatusRefunded || inv.Status == ledger.InvoiceStatusRefundRequested

		var ok bool
		if reversal {
			ok, err = led.ClaimInvoiceReversal(ctx, inv.ID)
		} else {
			ok, err = led.ClaimInvoiceDisbursement(ctx, inv.ID)
		}
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("non-gov invoice already claimed", "invoice_id", inv.ID)
			continue
		}

		total := inv.Total.Sub(inv.ServiceFees)
		invoiceNumber := fmt.Sprintf("%d", inv.ID)

		ih, err := s.cons.APHeader(cgi.APHeaderParams{
			Flow:          flow,
			InvoiceNumber: invoiceNumber,
			InvoiceDate:   inv.CreatedOn,
			Total:         total,
			Now:           now,
		})
		if err != nil {
			return err
		}
		b.Add(ih, 1, total)

		items, err := led.LineItems(ctx, []int64{inv.ID})
		if err != nil {
			return err
		}
		lineNumber := 0
		for _, li := range items {
			if li.Total.IsZero() {
				continue
			}
			lineNumber++
			il, err := s.cons.APLine(cgi.APLineParams{
				Flow:          flow,
				InvoiceNumber: invoiceNumber,
				LineNumber:    lineNumber,
				Amount:        li.Total,
				IsReversal:    reversal,
				PartnerGL:     partnerGL,
				Now:           now,
			})
			if err != nil {
				return err
			}
			b.Add(il, 1, decimal.Zero)
		}

		if err := batches.CreateLink(ctx, header.ID, inv.ID, batch.LinkTypeInvoice, sequence); err != nil {
			return err
		}
		sequence++
		b.AddTransaction()
	}
	return nil
}
