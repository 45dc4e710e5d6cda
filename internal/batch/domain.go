package batch

import (
	"errors"
	"time"
)

// FileType tags the batch family a physical file belongs to.
type FileType string

const (
	FileTypeDisbursement       FileType = "DISBURSEMENT"
	FileTypePayment            FileType = "PAYMENT"
	FileTypeTransfer           FileType = "TRANSFER"
	FileTypeRefund             FileType = "REFUND"
	FileTypeNonGovDisbursement FileType = "NON_GOV_DISBURSEMENT"
	FileTypeEFTRefund          FileType = "EFT_REFUND"
)

// Status is the disbursement lifecycle shared by files, headers and links.
type Status string

const (
	StatusWaitingForJob Status = "WAITING_FOR_JOB"
	StatusUploaded      Status = "UPLOADED"
	StatusAcknowledged  Status = "ACKNOWLEDGED"
	StatusCompleted     Status = "COMPLETED"
	StatusReversed      Status = "REVERSED"
	StatusErrored       Status = "ERRORED"
	StatusCancelled     Status = "CANCELLED"
)

// LinkType identifies the transactable entity a line link resolves to.
type LinkType string

const (
	LinkTypeInvoice             LinkType = "INVOICE"
	LinkTypePartialRefund       LinkType = "PARTIAL_REFUND"
	LinkTypeEFTTransfer         LinkType = "EFT_TRANSFER"
	LinkTypePartnerDisbursement LinkType = "PARTNER_DISBURSEMENT"
	LinkTypeRoutingSlip         LinkType = "ROUTING_SLIP"
	LinkTypeEFTRefund           LinkType = "EFT_REFUND"
)

// ErrFileNotFound indicates an unknown batch file id.
var ErrFileNotFound = errors.New("batch: file not found")

// ErrLinkNotFound indicates no line link matches a feedback detail.
var ErrLinkNotFound = errors.New("batch: line link not found")

// File is one physical outbound batch. Its id is the sole source of the
// zero-padded batch number, so it must exist before content generation.
type File struct {
	ID              int64
	FileType        FileType
	FileRef         string
	FeedbackFileRef *string
	Status          Status
	Message         string
	CreatedAt       time.Time
}

// Header is one logical journal or voucher inside a File.
type Header struct {
	ID          int64
	FileID      int64
	PartnerCode string
	AccountID   *int64
	Status      Status
	Message     string
}

// LineLink ties a transactable entity to a Header. It is the unit the
// reconciliation engine resolves to a business outcome.
type LineLink struct {
	ID       int64
	HeaderID int64
	LinkID   int64
	LinkType LinkType
	Status   Status
	Message  string
	Sequence int
}

// MaxTransactionsPerFile caps how many transactions one physical file may
// carry; larger candidate sets are split across independently totalled files.
const MaxTransactionsPerFile = 250

// Chunk splits candidates into cap-sized groups, each destined for its own
// file with its own header and trailer.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
