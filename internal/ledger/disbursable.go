package ledger

import (
	"context"
	"time"

	"github.com/odyssey-erp/finbatch/internal/batch"
)

// Disbursable abstracts how an entity's disbursement lifecycle is tracked.
// Legacy invoice flows keep status columns on the invoice row; newer partner
// flows write to the partner_disbursements ledger instead.
type Disbursable interface {
	// Claim marks the entity as picked up by an outgoing batch. It reports
	// false when a concurrent run already claimed it, in which case the
	// caller must drop the entity from its batch.
	Claim(ctx context.Context, id int64) (bool, error)
	// Complete records successful feedback with the effective posting date.
	Complete(ctx context.Context, id int64, effective time.Time) error
	// Reverse records a successful reversal posting.
	Reverse(ctx context.Context, id int64, effective time.Time) error
	// MarkErrored flags a rejected entity so the next run retries it.
	MarkErrored(ctx context.Context, id int64) error
}

// InvoiceDisbursal tracks disbursement on the invoice's own status columns.
type InvoiceDisbursal struct {
	repo *Repository
}

// NewInvoiceDisbursal wraps a repository in the legacy column tracker.
func NewInvoiceDisbursal(repo *Repository) *InvoiceDisbursal {
	return &InvoiceDisbursal{repo: repo}
}

func (d *InvoiceDisbursal) Claim(ctx context.Context, id int64) (bool, error) {
	return d.repo.ClaimInvoiceDisbursement(ctx, id)
}

func (d *InvoiceDisbursal) Complete(ctx context.Context, id int64, effective time.Time) error {
	return d.repo.SetInvoiceDisbursement(ctx, id, batch.StatusCompleted, &effective)
}

func (d *InvoiceDisbursal) Reverse(ctx context.Context, id int64, effective time.Time) error {
	return d.repo.SetInvoiceDisbursement(ctx, id, batch.StatusReversed, &effective)
}

func (d *InvoiceDisbursal) MarkErrored(ctx context.Context, id int64) error {
	return d.repo.SetInvoiceDisbursement(ctx, id, batch.StatusErrored, nil)
}

// PartnerLedgerDisbursal tracks disbursement on partner_disbursements rows.
type PartnerLedgerDisbursal struct {
	repo *Repository
}

// NewPartnerLedgerDisbursal wraps a repository in the ledger tracker.
func NewPartnerLedgerDisbursal(repo *Repository) *PartnerLedgerDisbursal {
	return &PartnerLedgerDisbursal{repo: repo}
}

func (d *PartnerLedgerDisbursal) Claim(ctx context.Context, id int64) (bool, error) {
	return d.repo.ClaimPartnerDisbursement(ctx, id)
}

func (d *PartnerLedgerDisbursal) Complete(ctx context.Context, id int64, effective time.Time) error {
	return d.repo.SettlePartnerDisbursement(ctx, id, batch.StatusCompleted, &effective)
}

func (d *PartnerLedgerDisbursal) Reverse(ctx context.Context, id int64, effective time.Time) error {
	return d.repo.SettlePartnerDisbursement(ctx, id, batch.StatusReversed, &effective)
}

func (d *PartnerLedgerDisbursal) MarkErrored(ctx context.Context, id int64) error {
	return d.repo.SettlePartnerDisbursement(ctx, id, batch.StatusErrored, nil)
}
