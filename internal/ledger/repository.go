package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/finbatch/internal/batch"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists transactable entities and their disbursement state.
type Repository struct {
	db DBTX
}

// NewRepository constructs a Repository over a pool or transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// ListPartners returns the partners for a batch type in stable code order.
func (r *Repository) ListPartners(ctx context.Context, batchType string) ([]Partner, error) {
	const query = `
		SELECT code, batch_type, COALESCE(has_partner_disbursements, false)
		FROM corp_types WHERE batch_type = $1 ORDER BY code`
	rows, err := r.db.Query(ctx, query, batchType)
	if err != nil {
		return nil, fmt.Errorf("ledger: list partners: %w", err)
	}
	defer rows.Close()

	var partners []Partner
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.Code, &p.BatchType, &p.HasPartnerDisbursements); err != nil {
			return nil, fmt.Errorf("ledger: list partners: %w", err)
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

const invoiceColumns = `
	id, invoice_status, payment_method, corp_type_code, payment_account_id,
	total, COALESCE(service_fees, 0), disbursement_status, payment_date, refund_date, created_on`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.Status, &inv.PaymentMethod, &inv.CorpTypeCode, &inv.PaymentAccountID,
		&inv.Total, &inv.ServiceFees, &inv.DisbursementStatus, &inv.PaymentDate, &inv.RefundDate, &inv.CreatedOn,
	)
	return inv, err
}

// FindInvoice loads one invoice.
func (r *Repository) FindInvoice(ctx context.Context, id int64) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w: invoice %d", ErrNotFound, id)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("ledger: find invoice: %w", err)
	}
	return inv, nil
}

// InvoicesForDisbursement returns paid partner invoices not yet claimed by an
// open batch. The status predicate is the advisory lock against
// double-batching: anything already UPLOADED or ACKNOWLEDGED is excluded.
func (r *Repository) InvoicesForDisbursement(ctx context.Context, partnerCode string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE invoice_status = $1
		  AND (disbursement_status IS NULL OR disbursement_status = $2)
		  AND corp_type_code = $3
		ORDER BY id`
	return r.listInvoices(ctx, query, InvoiceStatusPaid, batch.StatusErrored, partnerCode)
}

// InvoicesForPayment returns EJV invoices awaiting payment or reversal for a
// government account.
func (r *Repository) InvoicesForPayment(ctx context.Context, accountID int64) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE invoice_status IN ($1, $2)
		  AND payment_method = $3
		  AND payment_account_id = $4
		  AND (disbursement_status IS NULL OR disbursement_status = $5)
		ORDER BY id`
	return r.listInvoices(ctx, query,
		InvoiceStatusApproved, InvoiceStatusRefundRequested, PaymentMethodEJV, accountID, batch.StatusErrored)
}

func (r *Repository) listInvoices(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: list invoices: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// NonGovInvoicesForDisbursement returns paid non-gov partner invoices that
// still owe an AP disbursement. EFT-settled invoices ride the transfer flow
// instead.
func (r *Repository) NonGovInvoicesForDisbursement(ctx context.Context, partnerCode string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE invoice_status = $1
		  AND payment_method <> $2
		  AND (disbursement_status IS NULL OR disbursement_status = $3)
		  AND corp_type_code = $4
		ORDER BY id`
	return r.listInvoices(ctx, query, InvoiceStatusPaid, PaymentMethodEFT, batch.StatusErrored, partnerCode)
}

// NonGovInvoicesForReversal returns refunded non-gov partner invoices whose
// completed disbursement must be clawed back.
func (r *Repository) NonGovInvoicesForReversal(ctx context.Context, partnerCode string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE invoice_status IN ($1, $2)
		  AND payment_method <> $3
		  AND disbursement_status = $4
		  AND corp_type_code = $5
		ORDER BY id`
	return r.listInvoices(ctx, query,
		InvoiceStatusRefunded, InvoiceStatusRefundRequested, PaymentMethodEFT, batch.StatusCompleted, partnerCode)
}

// AccountName returns a payment account's display name for journal
// descriptions.
func (r *Repository) AccountName(ctx context.Context, accountID int64) (string, error) {
	var name string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(name, '') FROM payment_accounts WHERE id = $1`, accountID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: payment account %d", ErrNotFound, accountID)
	}
	if err != nil {
		return "", fmt.Errorf("ledger: account name: %w", err)
	}
	return name, nil
}

// LineItems returns the payment line items for a set of invoices in
// selection order.
func (r *Repository) LineItems(ctx context.Context, invoiceIDs []int64) ([]PaymentLineItem, error) {
	const query = `
		SELECT id, invoice_id, COALESCE(description, ''), total, COALESCE(service_fees, 0),
			COALESCE(service_fees_gst, 0), COALESCE(statutory_fees_gst, 0), fee_distribution_id
		FROM payment_line_items WHERE invoice_id = ANY($1) ORDER BY invoice_id, id`
	rows, err := r.db.Query(ctx, query, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("ledger: line items: %w", err)
	}
	defer rows.Close()

	var items []PaymentLineItem
	for rows.Next() {
		var li PaymentLineItem
		if err := rows.Scan(&li.ID, &li.InvoiceID, &li.Description, &li.Total, &li.ServiceFees, &li.ServiceFeesGST, &li.StatutoryFeesGST, &li.FeeDistributionID); err != nil {
			return nil, fmt.Errorf("ledger: line items: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// FindLineItem loads one payment line item.
func (r *Repository) FindLineItem(ctx context.Context, id int64) (PaymentLineItem, error) {
	const query = `
		SELECT id, invoice_id, COALESCE(description, ''), total, COALESCE(service_fees, 0),
			COALESCE(service_fees_gst, 0), COALESCE(statutory_fees_gst, 0), fee_distribution_id
		FROM payment_line_items WHERE id = $1`
	var li PaymentLineItem
	err := r.db.QueryRow(ctx, query, id).Scan(&li.ID, &li.InvoiceID, &li.Description, &li.Total, &li.ServiceFees, &li.ServiceFeesGST, &li.StatutoryFeesGST, &li.FeeDistributionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentLineItem{}, fmt.Errorf("%w: payment line item %d", ErrNotFound, id)
	}
	if err != nil {
		return PaymentLineItem{}, fmt.Errorf("ledger: find line item: %w", err)
	}
	return li, nil
}

// ClaimInvoiceDisbursement marks an invoice UPLOADED if it is still
// unclaimed (NULL or ERRORED). It reports false when a concurrent run got
// there first.
func (r *Repository) ClaimInvoiceDisbursement(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE invoices SET disbursement_status = $2
		WHERE id = $1 AND (disbursement_status IS NULL OR disbursement_status = $3)`
	tag, err := r.db.Exec(ctx, query, id, batch.StatusUploaded, batch.StatusErrored)
	if err != nil {
		return false, fmt.Errorf("ledger: claim invoice: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimInvoiceReversal marks a completed disbursement as re-uploaded for a
// clawback. False means the invoice left COMPLETED in the meantime.
func (r *Repository) ClaimInvoiceReversal(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE invoices SET disbursement_status = $2
		WHERE id = $1 AND disbursement_status = $3`
	tag, err := r.db.Exec(ctx, query, id, batch.StatusUploaded, batch.StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("ledger: claim invoice reversal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetInvoiceDisbursement records the terminal disbursement outcome and its
// effective date on an invoice.
func (r *Repository) SetInvoiceDisbursement(ctx context.Context, id int64, status batch.Status, effective *time.Time) error {
	const query = `
		UPDATE invoices SET disbursement_status = $2,
			disbursement_date = CASE WHEN $2 = 'COMPLETED' THEN $3 ELSE disbursement_date END,
			disbursement_reversal_date = CASE WHEN $2 = 'REVERSED' THEN $3 ELSE disbursement_reversal_date END
		WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status, effective); err != nil {
		return fmt.Errorf("ledger: set invoice disbursement: %w", err)
	}
	return nil
}

// SettleInvoice advances the invoice's own business status once payment
// feedback completes: PAID with a payment date, or REFUNDED with the refund
// date when the invoice was mid-reversal.
func (r *Repository) SettleInvoice(ctx context.Context, id int64, reversal bool, effective time.Time) error {
	if reversal {
		const query = `UPDATE invoices SET invoice_status = $2, refund_date = $3 WHERE id = $1`
		if _, err := r.db.Exec(ctx, query, id, InvoiceStatusRefunded, effective); err != nil {
			return fmt.Errorf("ledger: settle invoice: %w", err)
		}
		return nil
	}
	const query = `UPDATE invoices SET invoice_status = $2, payment_date = $3, paid = total WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, InvoiceStatusPaid, effective); err != nil {
		return fmt.Errorf("ledger: settle invoice: %w", err)
	}
	return nil
}

// PartialRefundsForAccount returns requested partial refunds on paid EJV
// invoices for an account.
func (r *Repository) PartialRefundsForAccount(ctx context.Context, accountID int64) ([]PartialRefund, error) {
	const query = `
		SELECT pr.id, pr.invoice_id, pr.payment_line_item_id, pr.refund_amount,
		       pr.is_service_fee, pr.status, pr.gl_posted, COALESCE(pr.gl_error, '')
		FROM refunds_partial pr
		JOIN invoices i ON i.id = pr.invoice_id
		WHERE i.payment_method = $1
		  AND i.invoice_status = $2
		  AND i.payment_account_id = $3
		  AND pr.status = $4
		ORDER BY pr.invoice_id, pr.id`
	rows, err := r.db.Query(ctx, query, PaymentMethodEJV, InvoiceStatusPaid, accountID, PartialRefundRequested)
	if err != nil {
		return nil, fmt.Errorf("ledger: partial refunds: %w", err)
	}
	defer rows.Close()

	var refunds []PartialRefund
	for rows.Next() {
		var pr PartialRefund
		if err := rows.Scan(&pr.ID, &pr.InvoiceID, &pr.PaymentLineItemID, &pr.RefundAmount,
			&pr.IsServiceFee, &pr.Status, &pr.GLPosted, &pr.GLError); err != nil {
			return nil, fmt.Errorf("ledger: partial refunds: %w", err)
		}
		refunds = append(refunds, pr)
	}
	return refunds, rows.Err()
}

// FindPartialRefund loads one partial refund.
func (r *Repository) FindPartialRefund(ctx context.Context, id int64) (PartialRefund, error) {
	const query = `
		SELECT id, invoice_id, payment_line_item_id, refund_amount, is_service_fee, status, gl_posted, COALESCE(gl_error, '')
		FROM refunds_partial WHERE id = $1`
	var pr PartialRefund
	err := r.db.QueryRow(ctx, query, id).Scan(&pr.ID, &pr.InvoiceID, &pr.PaymentLineItemID,
		&pr.RefundAmount, &pr.IsServiceFee, &pr.Status, &pr.GLPosted, &pr.GLError)
	if errors.Is(err, pgx.ErrNoRows) {
		return PartialRefund{}, fmt.Errorf("%w: partial refund %d", ErrNotFound, id)
	}
	if err != nil {
		return PartialRefund{}, fmt.Errorf("ledger: find partial refund: %w", err)
	}
	return pr, nil
}

// SetPartialRefundStatus advances a partial refund's lifecycle.
func (r *Repository) SetPartialRefundStatus(ctx context.Context, id int64, status PartialRefundStatus, glPosted *time.Time, glError string) error {
	const query = `
		UPDATE refunds_partial SET status = $2,
			gl_posted = COALESCE($3, gl_posted),
			gl_error = NULLIF($4, '')
		WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status, glPosted, glError); err != nil {
		return fmt.Errorf("ledger: set partial refund status: %w", err)
	}
	return nil
}

// SetPartialRefundGLError records a posting failure without moving the
// refund's lifecycle, so the next run retries it.
func (r *Repository) SetPartialRefundGLError(ctx context.Context, id int64, message string) error {
	const query = `UPDATE refunds_partial SET gl_error = $2 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, message); err != nil {
		return fmt.Errorf("ledger: set partial refund gl error: %w", err)
	}
	return nil
}

// RoutingSlipsForRefund returns authorized routing slip refunds with a
// positive balance.
func (r *Repository) RoutingSlipsForRefund(ctx context.Context) ([]RoutingSlip, error) {
	const query = `
		SELECT id, number, refund_amount, status FROM routing_slips
		WHERE status = $1 AND refund_amount > 0 ORDER BY id`
	rows, err := r.db.Query(ctx, query, RoutingSlipRefundAuthorized)
	if err != nil {
		return nil, fmt.Errorf("ledger: routing slips: %w", err)
	}
	defer rows.Close()

	var slips []RoutingSlip
	for rows.Next() {
		var rs RoutingSlip
		if err := rows.Scan(&rs.ID, &rs.Number, &rs.RefundAmount, &rs.Status); err != nil {
			return nil, fmt.Errorf("ledger: routing slips: %w", err)
		}
		slips = append(slips, rs)
	}
	return slips, rows.Err()
}

// FindRoutingSlipByNumber resolves the routing slip echoed back on an AP
// feedback header.
func (r *Repository) FindRoutingSlipByNumber(ctx context.Context, number string) (RoutingSlip, error) {
	const query = `SELECT id, number, refund_amount, status FROM routing_slips WHERE number = $1`
	var rs RoutingSlip
	err := r.db.QueryRow(ctx, query, number).Scan(&rs.ID, &rs.Number, &rs.RefundAmount, &rs.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoutingSlip{}, fmt.Errorf("%w: routing slip %s", ErrNotFound, number)
	}
	if err != nil {
		return RoutingSlip{}, fmt.Errorf("ledger: find routing slip: %w", err)
	}
	return rs, nil
}

// ClaimRoutingSlipRefund moves an authorized routing slip refund to
// REFUND_UPLOADED; false means another run claimed it first.
func (r *Repository) ClaimRoutingSlipRefund(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE routing_slips SET status = $2
		WHERE id = $1 AND status = $3`
	tag, err := r.db.Exec(ctx, query, id, RoutingSlipRefundUploaded, RoutingSlipRefundAuthorized)
	if err != nil {
		return false, fmt.Errorf("ledger: claim routing slip refund: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetRoutingSlipStatus advances a routing slip refund.
func (r *Repository) SetRoutingSlipStatus(ctx context.Context, id int64, status RoutingSlipStatus) error {
	if _, err := r.db.Exec(ctx, `UPDATE routing_slips SET status = $2 WHERE id = $1`, id, status); err != nil {
		return fmt.Errorf("ledger: set routing slip status: %w", err)
	}
	return nil
}

// FindRefundByRoutingSlip loads the refund request riding a routing slip.
func (r *Repository) FindRefundByRoutingSlip(ctx context.Context, routingSlipID int64) (Refund, error) {
	const query = `
		SELECT id, routing_slip_id, COALESCE(name, ''), COALESCE(street, ''), COALESCE(street_additional, ''),
		       COALESCE(city, ''), COALESCE(region, ''), COALESCE(postal_code, ''), COALESCE(country, ''),
		       COALESCE(cheque_advice, ''), gl_posted
		FROM refunds WHERE routing_slip_id = $1`
	var rf Refund
	err := r.db.QueryRow(ctx, query, routingSlipID).Scan(
		&rf.ID, &rf.RoutingSlipID, &rf.Details.Name, &rf.Details.Street, &rf.Details.StreetAdditional,
		&rf.Details.City, &rf.Details.Region, &rf.Details.PostalCode, &rf.Details.Country,
		&rf.Details.ChequeAdvice, &rf.GLPosted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Refund{}, fmt.Errorf("%w: refund for routing slip %d", ErrNotFound, routingSlipID)
	}
	if err != nil {
		return Refund{}, fmt.Errorf("ledger: find refund: %w", err)
	}
	return rf, nil
}

// MarkRefundPosted stamps the GL posting date on a refund request.
func (r *Repository) MarkRefundPosted(ctx context.Context, id int64, posted time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE refunds SET gl_posted = $2 WHERE id = $1`, id, posted); err != nil {
		return fmt.Errorf("ledger: mark refund posted: %w", err)
	}
	return nil
}

const eftRefundColumns = `
	id, short_name_id, refund_amount, refund_method, status, disbursement_status, disbursement_date,
	COALESCE(cheque_processed, false), COALESCE(cas_supplier_number, ''), COALESCE(cas_supplier_site, ''),
	COALESCE(comment, ''), COALESCE(entity_name, ''), COALESCE(street, ''), COALESCE(street_additional, ''),
	COALESCE(city, ''), COALESCE(region, ''), COALESCE(postal_code, ''), COALESCE(country, ''), created_on`

func scanEFTRefund(row pgx.Row) (EFTRefund, error) {
	var er EFTRefund
	err := row.Scan(
		&er.ID, &er.ShortNameID, &er.RefundAmount, &er.RefundMethod, &er.Status, &er.DisbursementStatus,
		&er.DisbursementDate, &er.ChequeProcessed, &er.SupplierNumber, &er.SupplierSite, &er.Comment,
		&er.Address.Name, &er.Address.Street, &er.Address.StreetAdditional, &er.Address.City,
		&er.Address.Region, &er.Address.PostalCode, &er.Address.Country, &er.CreatedOn,
	)
	return er, err
}

// EFTRefundsApproved returns approved, unclaimed EFT refunds.
func (r *Repository) EFTRefundsApproved(ctx context.Context) ([]EFTRefund, error) {
	query := `SELECT ` + eftRefundColumns + `
		FROM eft_refunds
		WHERE status = $1 AND disbursement_status IS NULL AND refund_amount > 0
		ORDER BY id`
	rows, err := r.db.Query(ctx, query, EFTRefundApproved)
	if err != nil {
		return nil, fmt.Errorf("ledger: eft refunds: %w", err)
	}
	defer rows.Close()

	var refunds []EFTRefund
	for rows.Next() {
		er, err := scanEFTRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: eft refunds: %w", err)
		}
		refunds = append(refunds, er)
	}
	return refunds, rows.Err()
}

// FindEFTRefund loads one EFT refund.
func (r *Repository) FindEFTRefund(ctx context.Context, id int64) (EFTRefund, error) {
	query := `SELECT ` + eftRefundColumns + ` FROM eft_refunds WHERE id = $1`
	er, err := scanEFTRefund(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return EFTRefund{}, fmt.Errorf("%w: eft refund %d", ErrNotFound, id)
	}
	if err != nil {
		return EFTRefund{}, fmt.Errorf("ledger: find eft refund: %w", err)
	}
	return er, nil
}

// SetEFTRefundUploaded claims an EFT refund for an outgoing batch.
func (r *Repository) SetEFTRefundUploaded(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE eft_refunds SET disbursement_status = $2
		WHERE id = $1 AND disbursement_status IS NULL`
	tag, err := r.db.Exec(ctx, query, id, batch.StatusUploaded)
	if err != nil {
		return false, fmt.Errorf("ledger: claim eft refund: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SettleEFTRefund records the feedback outcome for an EFT refund.
func (r *Repository) SettleEFTRefund(ctx context.Context, id int64, status EFTRefundStatus, disbursement batch.Status, chequeProcessed bool, when time.Time) error {
	const query = `
		UPDATE eft_refunds SET status = $2, disbursement_status = $3,
			disbursement_date = CASE WHEN $3 = 'COMPLETED' THEN $5 ELSE disbursement_date END,
			cheque_processed = $4
		WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status, disbursement, chequeProcessed, when); err != nil {
		return fmt.Errorf("ledger: settle eft refund: %w", err)
	}
	return nil
}

// PendingEFTTransfers returns holding-account transfers awaiting a batch.
func (r *Repository) PendingEFTTransfers(ctx context.Context) ([]EFTTransfer, error) {
	const query = `
		SELECT id, short_name_id, transfer_type, amount, line_distribution_id, disbursement_status
		FROM eft_gl_transfers
		WHERE disbursement_status IS NULL OR disbursement_status = $1
		ORDER BY short_name_id, id`
	rows, err := r.db.Query(ctx, query, batch.StatusErrored)
	if err != nil {
		return nil, fmt.Errorf("ledger: eft transfers: %w", err)
	}
	defer rows.Close()

	var transfers []EFTTransfer
	for rows.Next() {
		var t EFTTransfer
		if err := rows.Scan(&t.ID, &t.ShortNameID, &t.TransferType, &t.Amount, &t.LineDistributionID, &t.DisbursementStatus); err != nil {
			return nil, fmt.Errorf("ledger: eft transfers: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// ClaimEFTTransfer marks a transfer UPLOADED if it is still unclaimed.
func (r *Repository) ClaimEFTTransfer(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE eft_gl_transfers SET disbursement_status = $2
		WHERE id = $1 AND (disbursement_status IS NULL OR disbursement_status = $3)`
	tag, err := r.db.Exec(ctx, query, id, batch.StatusUploaded, batch.StatusErrored)
	if err != nil {
		return false, fmt.Errorf("ledger: claim eft transfer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetEFTTransferStatus records the feedback outcome for a transfer.
func (r *Repository) SetEFTTransferStatus(ctx context.Context, id int64, status batch.Status) error {
	const query = `UPDATE eft_gl_transfers SET disbursement_status = $2 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status); err != nil {
		return fmt.Errorf("ledger: set eft transfer status: %w", err)
	}
	return nil
}

// PendingPartnerDisbursements returns ledger rows waiting for a batch run,
// in stable order.
func (r *Repository) PendingPartnerDisbursements(ctx context.Context, partnerCode string) ([]PartnerDisbursement, error) {
	const query = `
		SELECT id, target_id, target_type, partner_code, amount, is_reversal, status_code, processed_on, feedback_on
		FROM partner_disbursements
		WHERE partner_code = $1 AND status_code = $2
		ORDER BY id`
	rows, err := r.db.Query(ctx, query, partnerCode, batch.StatusWaitingForJob)
	if err != nil {
		return nil, fmt.Errorf("ledger: partner disbursements: %w", err)
	}
	defer rows.Close()

	var out []PartnerDisbursement
	for rows.Next() {
		var pd PartnerDisbursement
		if err := rows.Scan(&pd.ID, &pd.TargetID, &pd.TargetType, &pd.PartnerCode, &pd.Amount,
			&pd.IsReversal, &pd.Status, &pd.ProcessedOn, &pd.FeedbackOn); err != nil {
			return nil, fmt.Errorf("ledger: partner disbursements: %w", err)
		}
		out = append(out, pd)
	}
	return out, rows.Err()
}

// FindPartnerDisbursement loads one ledger row.
func (r *Repository) FindPartnerDisbursement(ctx context.Context, id int64) (PartnerDisbursement, error) {
	const query = `
		SELECT id, target_id, target_type, partner_code, amount, is_reversal, status_code, processed_on, feedback_on
		FROM partner_disbursements WHERE id = $1`
	var pd PartnerDisbursement
	err := r.db.QueryRow(ctx, query, id).Scan(&pd.ID, &pd.TargetID, &pd.TargetType, &pd.PartnerCode,
		&pd.Amount, &pd.IsReversal, &pd.Status, &pd.ProcessedOn, &pd.FeedbackOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return PartnerDisbursement{}, fmt.Errorf("%w: partner disbursement %d", ErrNotFound, id)
	}
	if err != nil {
		return PartnerDisbursement{}, fmt.Errorf("ledger: find partner disbursement: %w", err)
	}
	return pd, nil
}

// ClaimPartnerDisbursement moves a ledger row from WAITING_FOR_JOB to
// UPLOADED; false means another run claimed it.
func (r *Repository) ClaimPartnerDisbursement(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE partner_disbursements SET status_code = $2
		WHERE id = $1 AND status_code = $3`
	tag, err := r.db.Exec(ctx, query, id, batch.StatusUploaded, batch.StatusWaitingForJob)
	if err != nil {
		return false, fmt.Errorf("ledger: claim partner disbursement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SettlePartnerDisbursement records the feedback outcome on a ledger row.
func (r *Repository) SettlePartnerDisbursement(ctx context.Context, id int64, status batch.Status, feedbackOn *time.Time) error {
	const query = `
		UPDATE partner_disbursements SET status_code = $2, processed_on = now(), feedback_on = $3
		WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status, feedbackOn); err != nil {
		return fmt.Errorf("ledger: settle partner disbursement: %w", err)
	}
	return nil
}

// UpsertReceipt adds to an existing receipt or creates one; a single invoice
// can appear on multiple feedback rows within one file.
func (r *Repository) UpsertReceipt(ctx context.Context, receipt Receipt) error {
	const query = `
		INSERT INTO receipts (invoice_id, receipt_number, receipt_amount, receipt_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (invoice_id, receipt_number)
		DO UPDATE SET receipt_amount = receipts.receipt_amount + EXCLUDED.receipt_amount`
	if _, err := r.db.Exec(ctx, query, receipt.InvoiceID, receipt.ReceiptNumber, receipt.Amount, receipt.Date); err != nil {
		return fmt.Errorf("ledger: upsert receipt: %w", err)
	}
	return nil
}
