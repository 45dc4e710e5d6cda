package dispatch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finbatch/internal/batch"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/distribution"
	"github.com/odyssey-erp/finbatch/internal/ledger"
)

// transferUnit is one EFT short name's slice of a transfer file.
type transferUnit struct {
	shortNameID int64
	transfers   []ledger.EFTTransfer
}

// RunEFTTransfer builds the GA journal voucher file moving settled EFT funds
// between the holding GL and partner GLs.
func (s *Service) RunEFTTransfer(ctx context.Context) error {
	if s.cfg.EFTHoldingGL == "" {
		return fmt.Errorf("dispatch: eft transfer: %w", distribution.ErrUnconfigured)
	}

	led := ledger.NewRepository(s.pool)
	transfers, err := led.PendingEFTTransfers(ctx)
	if err != nil {
		return err
	}

	// Transfers arrive ordered by short name; group adjacent rows.
	var units []transferUnit
	for _, t := range transfers {
		if len(units) == 0 || units[len(units)-1].shortNameID != t.ShortNameID {
			units = append(units, transferUnit{shortNameID: t.ShortNameID})
		}
		last := &units[len(units)-1]
		last.transfers = append(last.transfers, t)
	}

	for _, fileUnits := range packTransferUnits(units, batch.MaxTransactionsPerFile) {
		fu := fileUnits
		err := s.runFile(ctx, batch.FileTypeTransfer, "GA", func(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder) error {
			return s.buildTransferFile(ctx, tx, file, batchNumber, b, fu)
		})
		if err != nil {
			return fmt.Errorf("dispatch: eft transfer: %w", err)
		}
	}
	return nil
}

func packTransferUnits(units []transferUnit, cap int) [][]transferUnit {
	var split []transferUnit
	for _, u := range units {
		if len(u.transfers) <= cap {
			split = append(split, u)
			continue
		}
		for _, transfers := range batch.Chunk(u.transfers, cap) {
			split = append(split, transferUnit{shortNameID: u.shortNameID, transfers: transfers})
		}
	}

	var files [][]transferUnit
	var current []transferUnit
	used := 0
	for _, u := range split {
		if used > 0 && used+len(u.transfers) > cap {
			files = append(files, current)
			current, used = nil, 0
		}
		current = append(current, u)
		used += len(u.transfers)
	}
	if len(current) > 0 {
		files = append(files, current)
	}
	return files
}

func (s *Service) buildTransferFile(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder, units []transferUnit) error {
	const batchType = "GA"
	batches := batch.NewRepository(tx)
	led := ledger.NewRepository(tx)
	dist := distribution.NewRepository(tx)
	desc := s.description(s.cfg.TransferDesc)
	effective := cgi.NearestBusinessDay(s.now())
	holdingGL := cgi.PadRight(s.cfg.EFTHoldingGL, 50)

	for _, unit := range units {
		header, err := batches.CreateHeader(ctx, file.ID, "", nil)
		if err != nil {
			return err
		}
		journalName := s.cons.JournalName(header.ID)

		type posting struct {
			transfer ledger.EFTTransfer
			pair     distribution.Pair
		}
		var postings []posting
		total := decimal.Zero

		for _, t := range unit.transfers {
			ok, err := led.ClaimEFTTransfer(ctx, t.ID)
			if err != nil {
				return err
			}
			if !ok {
				s.log.Warn("eft transfer already claimed", "transfer_id", t.ID)
				continue
			}

			lineDist, err := dist.FindByID(ctx, t.LineDistributionID)
			if err != nil {
				return err
			}
			partnerGL, err := lineDist.GLString()
			if err != nil {
				return err
			}
			pair, err := distribution.ForEFTTransfer(holdingGL, partnerGL, t.TransferType == ledger.EFTTransferReversal)
			if err != nil {
				return err
			}
			postings = append(postings, posting{transfer: t, pair: pair})
			total = total.Add(t.Amount)
		}
		if len(postings) == 0 {
			continue
		}

		jh, err := s.cons.JVHeader(batchType, journalName, s.cons.JournalBatchName(batchNumber), total)
		if err != nil {
			return err
		}
		b.Add(jh, 1, total)

		lineNumber := 0
		for _, p := range postings {
			flowThrough := fmt.Sprintf("%d", p.transfer.ID)
			for _, side := range []struct{ gl, cd string }{{p.pair.Credit, "C"}, {p.pair.Debit, "D"}} {
				lineNumber++
				jd, err := s.cons.JVDetail(cgi.JVDetailParams{
					BatchType:     batchType,
					JournalName:   journalName,
					LineNumber:    lineNumber,
					EffectiveDate: effective,
					Distribution:  side.gl,
					Amount:        p.transfer.Amount,
					CreditDebit:   side.cd,
					Description:   desc,
					FlowThrough:   flowThrough,
				})
				if err != nil {
					return err
				}
				b.Add(jd, 1, decimal.Zero)
			}
		}

		for i, p := range postings {
			if err := batches.CreateLink(ctx, header.ID, p.transfer.ID, batch.LinkTypeEFTTransfer, i+1); err != nil {
				return err
			}
			b.AddTransaction()
		}
	}
	return nil
}
