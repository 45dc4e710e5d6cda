package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finbatch/internal/batch"
)

// ErrNotFound indicates an unknown transactable entity.
var ErrNotFound = errors.New("ledger: not found")

// InvoiceStatus is the business status an invoice carries independently of
// the batch flow.
type InvoiceStatus string

const (
	InvoiceStatusApproved        InvoiceStatus = "APPROVED"
	InvoiceStatusPaid            InvoiceStatus = "PAID"
	InvoiceStatusRefundRequested InvoiceStatus = "REFUND_REQUESTED"
	InvoiceStatusRefunded        InvoiceStatus = "REFUNDED"
)

// PaymentMethod identifies how an invoice is settled.
type PaymentMethod string

const (
	PaymentMethodEJV PaymentMethod = "EJV"
	PaymentMethodEFT PaymentMethod = "EFT"
)

// Invoice is a fee invoice advanced by the batch flow through its
// disbursement status while keeping its own business status.
type Invoice struct {
	ID                 int64
	Status             InvoiceStatus
	PaymentMethod      PaymentMethod
	CorpTypeCode       string
	PaymentAccountID   *int64
	Total              decimal.Decimal
	ServiceFees        decimal.Decimal
	DisbursementStatus *batch.Status
	PaymentDate        *time.Time
	RefundDate         *time.Time
	CreatedOn          time.Time
}

// PaymentLineItem is one fee line on an invoice, carrying its own
// distribution mapping and the optional service fee and GST splits.
type PaymentLineItem struct {
	ID                int64
	InvoiceID         int64
	Description       string
	Total             decimal.Decimal
	ServiceFees       decimal.Decimal
	ServiceFeesGST    decimal.Decimal
	StatutoryFeesGST  decimal.Decimal
	FeeDistributionID int64
}

// Partner is a government partner receiving fee disbursements.
type Partner struct {
	Code                    string
	BatchType               string
	HasPartnerDisbursements bool
}

// PartialRefundStatus tracks a partial refund through the reversal flow.
type PartialRefundStatus string

const (
	PartialRefundRequested  PartialRefundStatus = "REFUND_REQUESTED"
	PartialRefundProcessing PartialRefundStatus = "REFUND_PROCESSING"
	PartialRefundProcessed  PartialRefundStatus = "REFUND_PROCESSED"
)

// PartialRefund reverses part of a paid invoice.
type PartialRefund struct {
	ID                int64
	InvoiceID         int64
	PaymentLineItemID int64
	RefundAmount      decimal.Decimal
	IsServiceFee      bool
	Status            PartialRefundStatus
	GLPosted          *time.Time
	GLError           string
}

// RoutingSlipStatus tracks a routing slip cheque refund.
type RoutingSlipStatus string

const (
	RoutingSlipRefundAuthorized RoutingSlipStatus = "REFUND_AUTHORIZED"
	RoutingSlipRefundUploaded   RoutingSlipStatus = "REFUND_UPLOADED"
	RoutingSlipRefundProcessed  RoutingSlipStatus = "REFUND_PROCESSED"
	RoutingSlipRefundRejected   RoutingSlipStatus = "REFUND_REJECTED"
)

// RoutingSlip is a cash routing slip whose unused balance is refunded by
// cheque through the AP family.
type RoutingSlip struct {
	ID           int64
	Number       string
	RefundAmount decimal.Decimal
	Status       RoutingSlipStatus
}

// RefundAddress is the cheque mailing address captured with a refund request.
type RefundAddress struct {
	Name             string
	Street           string
	StreetAdditional string
	City             string
	Region           string
	PostalCode       string
	Country          string
	ChequeAdvice     string
}

// Refund is the refund request record attached to a routing slip.
type Refund struct {
	ID            int64
	RoutingSlipID int64
	Details       RefundAddress
	GLPosted      *time.Time
}

// RefundMethod selects cheque or EFT delivery for an EFT short-name refund.
type RefundMethod string

const (
	RefundMethodCheque RefundMethod = "CHEQUE"
	RefundMethodEFT    RefundMethod = "EFT"
)

// EFTRefundStatus tracks an EFT short-name refund.
type EFTRefundStatus string

const (
	EFTRefundApproved  EFTRefundStatus = "APPROVED"
	EFTRefundCompleted EFTRefundStatus = "COMPLETED"
	EFTRefundErrored   EFTRefundStatus = "ERRORED"
)

// EFTRefund refunds an EFT short-name balance by cheque or supplier EFT.
type EFTRefund struct {
	ID                 int64
	ShortNameID        int64
	RefundAmount       decimal.Decimal
	RefundMethod       RefundMethod
	Status             EFTRefundStatus
	DisbursementStatus *batch.Status
	DisbursementDate   *time.Time
	ChequeProcessed    bool
	SupplierNumber     string
	SupplierSite       string
	Comment            string
	Address            RefundAddress
	CreatedOn          time.Time
}

// EFTTransferType selects the holding-account transfer direction.
type EFTTransferType string

const (
	EFTTransferForward  EFTTransferType = "TRANSFER"
	EFTTransferReversal EFTTransferType = "REVERSAL"
)

// EFTTransfer moves funds between the EFT holding GL and a partner GL. The
// source/target pair is computed from the type, never stored.
type EFTTransfer struct {
	ID                 int64
	ShortNameID        int64
	TransferType       EFTTransferType
	Amount             decimal.Decimal
	LineDistributionID int64
	DisbursementStatus *batch.Status
}

// PartnerDisbursement is one row of the dedicated disbursement ledger that
// supersedes the legacy status columns for partner flows.
type PartnerDisbursement struct {
	ID          int64
	TargetID    int64
	TargetType  batch.LinkType
	PartnerCode string
	Amount      decimal.Decimal
	IsReversal  bool
	Status      batch.Status
	ProcessedOn *time.Time
	FeedbackOn  *time.Time
}

// Receipt records a payment synthesized from a payment-family feedback file.
type Receipt struct {
	InvoiceID     int64
	ReceiptNumber string
	Amount        decimal.Decimal
	Date          time.Time
}
