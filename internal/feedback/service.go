package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finbatch/internal/batch"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/distribution"
	"github.com/odyssey-erp/finbatch/internal/ledger"
	"github.com/odyssey-erp/finbatch/internal/platform/db"
)

// Bucket is the inbound file transport.
type Bucket interface {
	Fetch(ctx context.Context, folder, name string) ([]byte, error)
}

// Publisher pushes the error notification event.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// ErrorNotification is the mailer event raised once per errored feedback
// file.
type ErrorNotification struct {
	FileName string `json:"fileName"`
	Location string `json:"location"`
}

// batchStore is the slice of the batch repository the state machine consumes.
type batchStore interface {
	ClaimFeedback(ctx context.Context, id int64, feedbackRef string) (bool, error)
	GetFile(ctx context.Context, id int64) (batch.File, error)
	UpdateFileStatus(ctx context.Context, id int64, status batch.Status, message string) error
	UpdateHeaderStatus(ctx context.Context, id int64, status batch.Status, message string) error
	FindLink(ctx context.Context, headerID, linkID int64, linkType batch.LinkType) (batch.LineLink, error)
	FindLinkByFile(ctx context.Context, fileID, linkID int64, linkType batch.LinkType) (batch.LineLink, error)
	TransitionLink(ctx context.Context, id int64, from []batch.Status, to batch.Status, message string) (bool, error)
}

// ledgerStore is the slice of the ledger repository the state machine
// consumes directly; disbursement transitions go through the Disbursable
// capabilities instead.
type ledgerStore interface {
	FindInvoice(ctx context.Context, id int64) (ledger.Invoice, error)
	LineItems(ctx context.Context, invoiceIDs []int64) ([]ledger.PaymentLineItem, error)
	FindLineItem(ctx context.Context, id int64) (ledger.PaymentLineItem, error)
	SettleInvoice(ctx context.Context, id int64, reversal bool, effective time.Time) error
	FindPartialRefund(ctx context.Context, id int64) (ledger.PartialRefund, error)
	SetPartialRefundStatus(ctx context.Context, id int64, status ledger.PartialRefundStatus, glPosted *time.Time, glError string) error
	SetPartialRefundGLError(ctx context.Context, id int64, message string) error
	FindPartnerDisbursement(ctx context.Context, id int64) (ledger.PartnerDisbursement, error)
	UpsertReceipt(ctx context.Context, receipt ledger.Receipt) error
	SetEFTTransferStatus(ctx context.Context, id int64, status batch.Status) error
	FindRoutingSlipByNumber(ctx context.Context, number string) (ledger.RoutingSlip, error)
	SetRoutingSlipStatus(ctx context.Context, id int64, status ledger.RoutingSlipStatus) error
	FindRefundByRoutingSlip(ctx context.Context, routingSlipID int64) (ledger.Refund, error)
	MarkRefundPosted(ctx context.Context, id int64, posted time.Time) error
	FindEFTRefund(ctx context.Context, id int64) (ledger.EFTRefund, error)
	SettleEFTRefund(ctx context.Context, id int64, status ledger.EFTRefundStatus, disbursement batch.Status, chequeProcessed bool, when time.Time) error
}

type distStore interface {
	FindByID(ctx context.Context, id int64) (distribution.Code, error)
	FindActiveForAccount(ctx context.Context, accountID int64) (distribution.Code, error)
	SetStopEJV(ctx context.Context, id int64) error
}

// stores bundles the repositories bound to one feedback transaction.
type stores struct {
	batches  batchStore
	led      ledgerStore
	dist     distStore
	invoices ledger.Disbursable
	partners ledger.Disbursable
}

// Config carries the feedback-side settings.
type Config struct {
	FeedbackFolder string
	// RegistryClientCode is the GL client whose presence on a successful
	// credit line marks the posting as a reversal.
	RegistryClientCode string
	DisableErrorEmail  bool
}

// Service replays feedback files onto the reconciliation state machine.
type Service struct {
	pool      *pgxpool.Pool
	bucket    Bucket
	publisher Publisher
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
	runTx     func(ctx context.Context, fn func(stores) error) error
}

// NewService constructs the feedback service.
func NewService(pool *pgxpool.Pool, bucket Bucket, publisher Publisher, cfg Config, log *slog.Logger) *Service {
	s := &Service{
		pool:      pool,
		bucket:    bucket,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(stores) error) error {
		return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			led := ledger.NewRepository(tx)
			return fn(stores{
				batches:  batch.NewRepository(tx),
				led:      led,
				dist:     distribution.NewRepository(tx),
				invoices: ledger.NewInvoiceDisbursal(led),
				partners: ledger.NewPartnerLedgerDisbursal(led),
			})
		})
	}
	return s
}

// ProcessAck records an acknowledgement file. The file carries no batch
// reference, so this only logs; re-delivery is harmless.
func (s *Service) ProcessAck(ctx context.Context, fileName string) error {
	s.log.Info("ack file received", "file_name", fileName)
	return nil
}

// errAlreadyProcessed aborts the transaction when another run claimed one of
// the file's batches; the whole file is skipped without changes.
var errAlreadyProcessed = errors.New("feedback: file already processed")

// ProcessFeedback fetches a feedback file and applies every group in one
// transaction. The notification event for an errored file fires only after
// the commit succeeds.
func (s *Service) ProcessFeedback(ctx context.Context, fileName string) error {
	data, err := s.bucket.Fetch(ctx, s.cfg.FeedbackFolder, fileName)
	if err != nil {
		return err
	}
	groups := GroupBatches(string(data))

	hasErrors := false
	err = s.runTx(ctx, func(st stores) error {
		if err := s.claimGroups(ctx, st, groups, fileName); err != nil {
			return err
		}
		for _, group := range groups {
			var err error
			switch group.Family {
			case FamilyEJV:
				err = s.processEJVGroup(ctx, st, group, &hasErrors)
			case FamilyAP:
				err = s.processAPGroup(ctx, st, group, &hasErrors)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.log.Info("feedback file already processed, skipping", "file_name", fileName)
		return nil
	}
	if err != nil {
		return err
	}

	if hasErrors && !s.cfg.DisableErrorEmail {
		notification := ErrorNotification{FileName: fileName, Location: s.cfg.FeedbackFolder}
		if err := s.publisher.Publish(ctx, notification); err != nil {
			s.log.Error("failed to publish error notification", "file_name", fileName, "error", err)
		}
	}
	s.log.Info("feedback file processed", "file_name", fileName, "groups", len(groups), "has_errors", hasErrors)
	return nil
}

// claimGroups records the feedback reference on every batch file named by a
// BG line. A file that already carries one was processed by an earlier
// delivery; the whole feedback file is then skipped.
func (s *Service) claimGroups(ctx context.Context, st stores, groups []Group, fileName string) error {
	for _, group := range groups {
		for _, line := range group.Lines {
			if recordCode(line) != "BG" {
				continue
			}
			fileID, err := batchNumberOf(line)
			if err != nil {
				return err
			}
			ok, err := st.batches.ClaimFeedback(ctx, fileID, fileName)
			if err != nil {
				return err
			}
			if !ok {
				return errAlreadyProcessed
			}
		}
	}
	return nil
}

func statusFor(returnCode string) batch.Status {
	if strings.TrimSpace(returnCode) == cgi.SuccessReturnCode {
		return batch.StatusCompleted
	}
	return batch.StatusErrored
}

func (s *Service) processEJVGroup(ctx context.Context, st stores, group Group, hasErrors *bool) error {
	var file batch.File
	var receiptNumber string

	for _, line := range group.Lines {
		switch recordCode(line) {
		case "BG":
			fileID, err := batchNumberOf(line)
			if err != nil {
				return err
			}
			if file, err = st.batches.GetFile(ctx, fileID); err != nil {
				return err
			}
		case "BH":
			rec, err := cgi.FeedbackBatchHeaderSchema.Slice(line)
			if err != nil {
				return err
			}
			status := statusFor(rec.Get("returnCode"))
			if err := st.batches.UpdateFileStatus(ctx, file.ID, status, rec.Trimmed("returnMessage")); err != nil {
				return err
			}
			if status == batch.StatusErrored {
				*hasErrors = true
			}
		case "JH":
			number, err := s.processJVHeader(ctx, st, file, line, hasErrors)
			if err != nil {
				return err
			}
			if number != "" {
				receiptNumber = number
			}
		case "JD":
			if err := s.processJVDetail(ctx, st, file, line, receiptNumber, hasErrors); err != nil {
				return err
			}
		}
	}
	return nil
}

// processJVHeader applies a journal header outcome and, on a successful
// payment journal, returns the receipt number the details settle against.
func (s *Service) processJVHeader(ctx context.Context, st stores, file batch.File, line string, hasErrors *bool) (string, error) {
	rec, err := cgi.FeedbackJVHeaderSchema.Slice(line)
	if err != nil {
		return "", err
	}
	headerID, err := headerIDOf(rec.Get("journalName"))
	if err != nil {
		return "", err
	}

	status := statusFor(rec.Get("returnCode"))
	if err := st.batches.UpdateHeaderStatus(ctx, headerID, status, rec.Trimmed("returnMessage")); err != nil {
		return "", err
	}
	if status == batch.StatusErrored {
		*hasErrors = true
		return "", nil
	}
	if file.FileType != batch.FileTypePayment {
		return "", nil
	}
	// The first 42 characters, journal name plus batch name, double as the
	// receipt number on the payment side.
	if len(line) < 42 {
		return "", fmt.Errorf("feedback: JH line too short for receipt number: %d characters", len(line))
	}
	return strings.TrimSpace(line[:42]), nil
}

func (s *Service) processJVDetail(ctx context.Context, st stores, file batch.File, line, receiptNumber string, hasErrors *bool) error {
	line = FixJVDetailLine(line)
	rec, err := cgi.FeedbackJVDetailSchema.Slice(line)
	if err != nil {
		return err
	}

	// Each posting pair comes back as two lines; only one side per family
	// carries the outcome worth applying.
	creditDebit := rec.Get("creditDebit")
	switch {
	case creditDebit == "C" && file.FileType == batch.FileTypeDisbursement:
		return s.applyDisbursementDetail(ctx, st, rec, hasErrors)
	case creditDebit == "D" && file.FileType == batch.FileTypePayment:
		return s.applyPaymentDetail(ctx, st, rec, receiptNumber, hasErrors)
	case creditDebit == "C" && file.FileType == batch.FileTypeTransfer:
		return s.applyTransferDetail(ctx, st, rec, hasErrors)
	}
	return nil
}

func (s *Service) applyDisbursementDetail(ctx context.Context, st stores, rec cgi.Record, hasErrors *bool) error {
	headerID, err := headerIDOf(rec.Get("journalName"))
	if err != nil {
		return err
	}
	ft, err := ParseFlowThrough(rec.Get("flowThrough"))
	if err != nil {
		return err
	}

	link, err := s.findDetailLink(ctx, st, headerID, ft)
	if err != nil {
		return err
	}

	status := statusFor(rec.Get("returnCode"))
	message := rec.Trimmed("returnMessage")
	reversal := rec.Get("glClient") == s.cfg.RegistryClientCode
	if status == batch.StatusCompleted && reversal {
		status = batch.StatusReversed
	}

	ok, err := st.batches.TransitionLink(ctx, link.ID, []batch.Status{batch.StatusUploaded, batch.StatusAcknowledged}, status, message)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("stale feedback for settled link, ignoring", "link_id", link.ID, "status", status)
		return nil
	}

	if status == batch.StatusErrored {
		*hasErrors = true
		return s.markDisbursementErrored(ctx, st, ft, message)
	}

	effective, err := time.Parse("20060102", rec.Get("effectiveDate"))
	if err != nil {
		return fmt.Errorf("feedback: malformed effective date %q: %w", rec.Get("effectiveDate"), err)
	}
	return s.markDisbursementSettled(ctx, st, ft, status, effective)
}

// findDetailLink resolves the line link a detail outcome belongs to; the
// most specific flow-through component wins.
func (s *Service) findDetailLink(ctx context.Context, st stores, headerID int64, ft FlowThrough) (batch.LineLink, error) {
	switch {
	case ft.PartnerDisbursementID != 0:
		return st.batches.FindLink(ctx, headerID, ft.PartnerDisbursementID, batch.LinkTypePartnerDisbursement)
	case ft.IsPartialRefund && ft.PartialRefundID != 0:
		return st.batches.FindLink(ctx, headerID, ft.PartialRefundID, batch.LinkTypePartialRefund)
	default:
		return st.batches.FindLink(ctx, headerID, ft.InvoiceID, batch.LinkTypeInvoice)
	}
}

// markDisbursementErrored flags the rejected entity and stops further
// batching against the partner GLs its line items feed.
func (s *Service) markDisbursementErrored(ctx context.Context, st stores, ft FlowThrough, message string) error {
	var items []ledger.PaymentLineItem

	if ft.PartnerDisbursementID != 0 {
		if err := st.partners.MarkErrored(ctx, ft.PartnerDisbursementID); err != nil {
			return err
		}
	}
	if ft.IsPartialRefund {
		refundID := ft.PartialRefundID
		if refundID == 0 && ft.PartnerDisbursementID != 0 {
			pd, err := st.led.FindPartnerDisbursement(ctx, ft.PartnerDisbursementID)
			if err != nil {
				return err
			}
			refundID = pd.TargetID
		}
		if refundID != 0 {
			if err := st.led.SetPartialRefundGLError(ctx, refundID, message); err != nil {
				return err
			}
			pr, err := st.led.FindPartialRefund(ctx, refundID)
			if err != nil {
				return err
			}
			li, err := st.led.FindLineItem(ctx, pr.PaymentLineItemID)
			if err != nil {
				return err
			}
			items = []ledger.PaymentLineItem{li}
		}
	} else {
		if err := st.invoices.MarkErrored(ctx, ft.InvoiceID); err != nil {
			return err
		}
		var err error
		if items, err = st.led.LineItems(ctx, []int64{ft.InvoiceID}); err != nil {
			return err
		}
	}

	for _, li := range items {
		fee, err := st.dist.FindByID(ctx, li.FeeDistributionID)
		if err != nil {
			return err
		}
		if fee.DisbursementDistributionID == nil {
			continue
		}
		if err := st.dist.SetStopEJV(ctx, *fee.DisbursementDistributionID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) markDisbursementSettled(ctx context.Context, st stores, ft FlowThrough, status batch.Status, effective time.Time) error {
	if ft.PartnerDisbursementID != 0 {
		pd, err := st.led.FindPartnerDisbursement(ctx, ft.PartnerDisbursementID)
		if err != nil {
			return err
		}
		if status == batch.StatusCompleted && pd.IsReversal {
			s.log.Error("completed feedback for a reversal disbursement", "partner_disbursement_id", pd.ID)
		}
		if status == batch.StatusReversed && !pd.IsReversal {
			s.log.Error("reversed feedback for a forward disbursement", "partner_disbursement_id", pd.ID)
		}
		if err := settleDisbursable(ctx, st.partners, pd.ID, status, effective); err != nil {
			return err
		}
	}
	if ft.IsPartialRefund {
		return nil
	}
	return settleDisbursable(ctx, st.invoices, ft.InvoiceID, status, effective)
}

// settleDisbursable maps a terminal feedback status onto the entity's
// disbursement capability.
func settleDisbursable(ctx context.Context, d ledger.Disbursable, id int64, status batch.Status, effective time.Time) error {
	if status == batch.StatusReversed {
		return d.Reverse(ctx, id, effective)
	}
	return d.Complete(ctx, id, effective)
}

func (s *Service) applyPaymentDetail(ctx context.Context, st stores, rec cgi.Record, receiptNumber string, hasErrors *bool) error {
	headerID, err := headerIDOf(rec.Get("journalName"))
	if err != nil {
		return err
	}
	ft, err := ParseFlowThrough(rec.Get("flowThrough"))
	if err != nil {
		return err
	}
	link, err := s.findDetailLink(ctx, st, headerID, ft)
	if err != nil {
		return err
	}

	status := statusFor(rec.Get("returnCode"))
	message := rec.Trimmed("returnMessage")
	ok, err := st.batches.TransitionLink(ctx, link.ID, []batch.Status{batch.StatusUploaded, batch.StatusAcknowledged}, status, message)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("stale feedback for settled link, ignoring", "link_id", link.ID, "status", status)
		return nil
	}

	invoice, err := st.led.FindInvoice(ctx, ft.InvoiceID)
	if err != nil {
		return err
	}

	if status == batch.StatusErrored {
		*hasErrors = true
		if invoice.PaymentAccountID != nil {
			code, err := st.dist.FindActiveForAccount(ctx, *invoice.PaymentAccountID)
			if err != nil {
				return err
			}
			if err := st.dist.SetStopEJV(ctx, code.ID); err != nil {
				return err
			}
		}
		return nil
	}

	effective, err := time.Parse("20060102", rec.Get("effectiveDate"))
	if err != nil {
		return fmt.Errorf("feedback: malformed effective date %q: %w", rec.Get("effectiveDate"), err)
	}

	reversal := invoice.Status == ledger.InvoiceStatusRefunded || invoice.Status == ledger.InvoiceStatusRefundRequested
	if ft.IsPartialRefund {
		refundID := ft.PartialRefundID
		if err := st.led.SetPartialRefundStatus(ctx, refundID, ledger.PartialRefundProcessed, &effective, ""); err != nil {
			return err
		}
		return nil
	}
	if err := st.led.SettleInvoice(ctx, invoice.ID, reversal, effective); err != nil {
		return err
	}
	if reversal {
		return nil
	}

	// A single invoice can settle across several detail lines; the receipt
	// accumulates them.
	amount, err := decimal.NewFromString(strings.TrimSpace(rec.Get("amount")))
	if err != nil {
		return fmt.Errorf("feedback: malformed amount %q: %w", rec.Get("amount"), err)
	}
	return st.led.UpsertReceipt(ctx, ledger.Receipt{
		InvoiceID:     invoice.ID,
		ReceiptNumber: receiptNumber,
		Amount:        amount,
		Date:          s.now(),
	})
}

// applyTransferDetail settles a holding-GL transfer line.
func (s *Service) applyTransferDetail(ctx context.Context, st stores, rec cgi.Record, hasErrors *bool) error {
	headerID, err := headerIDOf(rec.Get("journalName"))
	if err != nil {
		return err
	}
	transferID, err := strconv.ParseInt(strings.TrimSpace(rec.Get("flowThrough")), 10, 64)
	if err != nil {
		return fmt.Errorf("feedback: malformed transfer flow-through %q: %w", rec.Get("flowThrough"), err)
	}
	link, err := st.batches.FindLink(ctx, headerID, transferID, batch.LinkTypeEFTTransfer)
	if err != nil {
		return err
	}

	status := statusFor(rec.Get("returnCode"))
	message := rec.Trimmed("returnMessage")
	ok, err := st.batches.TransitionLink(ctx, link.ID, []batch.Status{batch.StatusUploaded, batch.StatusAcknowledged}, status, message)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("stale feedback for settled link, ignoring", "link_id", link.ID, "status", status)
		return nil
	}
	if status == batch.StatusErrored {
		*hasErrors = true
	}
	return st.led.SetEFTTransferStatus(ctx, transferID, status)
}

func (s *Service) processAPGroup(ctx context.Context, st stores, group Group, hasErrors *bool) error {
	var file batch.File
	for _, line := range group.Lines {
		switch recordCode(line) {
		case "BG":
			fileID, err := batchNumberOf(line)
			if err != nil {
				return err
			}
			if file, err = st.batches.GetFile(ctx, fileID); err != nil {
				return err
			}
		case "BH":
			rec, err := cgi.FeedbackBatchHeaderSchema.Slice(line)
			if err != nil {
				return err
			}
			status := statusFor(rec.Get("returnCode"))
			if err := st.batches.UpdateFileStatus(ctx, file.ID, status, rec.Trimmed("returnMessage")); err != nil {
				return err
			}
			if status == batch.StatusErrored {
				*hasErrors = true
			}
		case "IH":
			if err := s.applyAPHeader(ctx, st, file, line, hasErrors); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) applyAPHeader(ctx context.Context, st stores, file batch.File, line string, hasErrors *bool) error {
	rec, err := cgi.FeedbackAPHeaderSchema.Slice(line)
	if err != nil {
		return err
	}
	switch file.FileType {
	case batch.FileTypeRefund:
		return s.applyRoutingSlipOutcome(ctx, st, rec, hasErrors)
	case batch.FileTypeEFTRefund:
		return s.applyEFTRefundOutcome(ctx, st, rec, hasErrors)
	default:
		return s.applyNonGovOutcome(ctx, st, file, rec, hasErrors)
	}
}

func (s *Service) applyRoutingSlipOutcome(ctx context.Context, st stores, rec cgi.Record, hasErrors *bool) error {
	number := rec.Trimmed("invoiceNumber")
	rs, err := st.led.FindRoutingSlipByNumber(ctx, number)
	if err != nil {
		return err
	}
	if rs.Status != ledger.RoutingSlipRefundUploaded {
		s.log.Warn("stale feedback for routing slip, ignoring", "routing_slip", number, "status", rs.Status)
		return nil
	}

	if statusFor(rec.Get("returnCode")) == batch.StatusErrored {
		*hasErrors = true
		s.log.Error("routing slip refund rejected", "routing_slip", number, "message", rec.Trimmed("returnMessage"))
		return st.led.SetRoutingSlipStatus(ctx, rs.ID, ledger.RoutingSlipRefundRejected)
	}

	if err := st.led.SetRoutingSlipStatus(ctx, rs.ID, ledger.RoutingSlipRefundProcessed); err != nil {
		return err
	}
	refund, err := st.led.FindRefundByRoutingSlip(ctx, rs.ID)
	if err != nil {
		return err
	}
	return st.led.MarkRefundPosted(ctx, refund.ID, s.now())
}

func (s *Service) applyEFTRefundOutcome(ctx context.Context, st stores, rec cgi.Record, hasErrors *bool) error {
	refundID, err := strconv.ParseInt(rec.Trimmed("invoiceNumber"), 10, 64)
	if err != nil {
		return fmt.Errorf("feedback: malformed eft refund reference %q: %w", rec.Trimmed("invoiceNumber"), err)
	}
	er, err := st.led.FindEFTRefund(ctx, refundID)
	if err != nil {
		return err
	}
	if er.DisbursementStatus == nil || *er.DisbursementStatus != batch.StatusUploaded {
		s.log.Warn("stale feedback for eft refund, ignoring", "eft_refund_id", refundID)
		return nil
	}

	if statusFor(rec.Get("returnCode")) == batch.StatusErrored {
		*hasErrors = true
		s.log.Error("eft refund rejected", "eft_refund_id", refundID, "message", rec.Trimmed("returnMessage"))
		return st.led.SettleEFTRefund(ctx, refundID, ledger.EFTRefundErrored, batch.StatusErrored, false, s.now())
	}

	chequeProcessed := er.RefundMethod == ledger.RefundMethodCheque
	return st.led.SettleEFTRefund(ctx, refundID, ledger.EFTRefundCompleted, batch.StatusCompleted, chequeProcessed, s.now())
}

// applyNonGovOutcome settles a non-gov partner disbursement invoice: forward
// completions and clawback reversals both resolve through the invoice link.
func (s *Service) applyNonGovOutcome(ctx context.Context, st stores, file batch.File, rec cgi.Record, hasErrors *bool) error {
	invoiceID, err := strconv.ParseInt(rec.Trimmed("invoiceNumber"), 10, 64)
	if err != nil {
		return fmt.Errorf("feedback: malformed invoice reference %q: %w", rec.Trimmed("invoiceNumber"), err)
	}
	link, err := st.batches.FindLinkByFile(ctx, file.ID, invoiceID, batch.LinkTypeInvoice)
	if err != nil {
		return err
	}

	invoice, err := st.led.FindInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	reversal := invoice.Status == ledger.InvoiceStatusRefunded || invoice.Status == ledger.InvoiceStatusRefundRequested

	status := statusFor(rec.Get("returnCode"))
	if status == batch.StatusCompleted && reversal {
		status = batch.StatusReversed
	}
	message := rec.Trimmed("returnMessage")

	ok, err := st.batches.TransitionLink(ctx, link.ID, []batch.Status{batch.StatusUploaded, batch.StatusAcknowledged}, status, message)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("stale feedback for settled link, ignoring", "link_id", link.ID, "status", status)
		return nil
	}

	if status == batch.StatusErrored {
		*hasErrors = true
		s.log.Error("non-gov disbursement rejected", "invoice_id", invoiceID, "message", message)
		return st.invoices.MarkErrored(ctx, invoiceID)
	}
	return settleDisbursable(ctx, st.invoices, invoiceID, status, s.now())
}
