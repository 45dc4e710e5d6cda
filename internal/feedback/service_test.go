package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finbatch/internal/batch"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/distribution"
	"github.com/odyssey-erp/finbatch/internal/ledger"
)

type fakeTransport struct {
	names   []string
	listErr error
	moveErr error
	moved   []string
}

func (f *fakeTransport) List(ctx context.Context, folder string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.names, nil
}

func (f *fakeTransport) Move(ctx context.Context, fromFolder, toFolder, name string) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moved = append(f.moved, name)
	return nil
}

func pollService() *Service {
	return NewService(nil, nil, nil, Config{FeedbackFolder: "cgi-feedback"}, slog.Default())
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, batch.StatusCompleted, statusFor("0000"))
	require.Equal(t, batch.StatusCompleted, statusFor("0000 "))
	require.Equal(t, batch.StatusErrored, statusFor("0001"))
	require.Equal(t, batch.StatusErrored, statusFor(""))
}

func TestPollShelvesAcknowledgements(t *testing.T) {
	transport := &fakeTransport{names: []string{"ACKNOWLEDGEMENT.20260831", "notes.txt"}}
	s := pollService()

	err := s.Poll(context.Background(), transport, "cgi-processed")
	require.NoError(t, err)
	require.Equal(t, []string{"ACKNOWLEDGEMENT.20260831"}, transport.moved)
}

func TestPollLeavesUnrecognizedFiles(t *testing.T) {
	transport := &fakeTransport{names: []string{"random.bin"}}
	s := pollService()

	err := s.Poll(context.Background(), transport, "cgi-processed")
	require.NoError(t, err)
	require.Empty(t, transport.moved)
}

func TestPollPropagatesListFailure(t *testing.T) {
	transport := &fakeTransport{listErr: errors.New("bucket down")}
	s := pollService()

	err := s.Poll(context.Background(), transport, "cgi-processed")
	require.Error(t, err)
}

func TestPollToleratesMoveFailure(t *testing.T) {
	transport := &fakeTransport{names: []string{"ACKNOWLEDGEMENT.20260831"}, moveErr: errors.New("denied")}
	s := pollService()

	err := s.Poll(context.Background(), transport, "cgi-processed")
	require.NoError(t, err)
}

// In-memory stores for driving ProcessFeedback through the reconciliation
// state machine without a database.

type fakeBucket struct {
	content string
}

func (f *fakeBucket) Fetch(ctx context.Context, folder, name string) ([]byte, error) {
	return []byte(f.content), nil
}

type fakePublisher struct {
	events []any
}

func (f *fakePublisher) Publish(ctx context.Context, payload any) error {
	f.events = append(f.events, payload)
	return nil
}

type fakeBatchStore struct {
	files        map[int64]batch.File
	links        []*batch.LineLink
	linkFiles    map[int64]int64
	claimed      map[int64]string
	fileStatus   map[int64]batch.Status
	headerStatus map[int64]batch.Status
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{
		files:        make(map[int64]batch.File),
		linkFiles:    make(map[int64]int64),
		claimed:      make(map[int64]string),
		fileStatus:   make(map[int64]batch.Status),
		headerStatus: make(map[int64]batch.Status),
	}
}

func (f *fakeBatchStore) ClaimFeedback(ctx context.Context, id int64, feedbackRef string) (bool, error) {
	if _, taken := f.claimed[id]; taken {
		return false, nil
	}
	f.claimed[id] = feedbackRef
	return true, nil
}

func (f *fakeBatchStore) GetFile(ctx context.Context, id int64) (batch.File, error) {
	file, ok := f.files[id]
	if !ok {
		return batch.File{}, batch.ErrFileNotFound
	}
	return file, nil
}

func (f *fakeBatchStore) UpdateFileStatus(ctx context.Context, id int64, status batch.Status, message string) error {
	f.fileStatus[id] = status
	return nil
}

func (f *fakeBatchStore) UpdateHeaderStatus(ctx context.Context, id int64, status batch.Status, message string) error {
	f.headerStatus[id] = status
	return nil
}

func (f *fakeBatchStore) FindLink(ctx context.Context, headerID, linkID int64, linkType batch.LinkType) (batch.LineLink, error) {
	for _, l := range f.links {
		if l.HeaderID == headerID && l.LinkID == linkID && l.LinkType == linkType {
			return *l, nil
		}
	}
	return batch.LineLink{}, batch.ErrLinkNotFound
}

func (f *fakeBatchStore) FindLinkByFile(ctx context.Context, fileID, linkID int64, linkType batch.LinkType) (batch.LineLink, error) {
	for _, l := range f.links {
		if f.linkFiles[l.ID] == fileID && l.LinkID == linkID && l.LinkType == linkType {
			return *l, nil
		}
	}
	return batch.LineLink{}, batch.ErrLinkNotFound
}

func (f *fakeBatchStore) TransitionLink(ctx context.Context, id int64, from []batch.Status, to batch.Status, message string) (bool, error) {
	for _, l := range f.links {
		if l.ID != id {
			continue
		}
		for _, status := range from {
			if l.Status == status {
				l.Status = to
				l.Message = message
				return true, nil
			}
		}
		return false, nil
	}
	return false, batch.ErrLinkNotFound
}

type fakeLedgerStore struct {
	invoices map[int64]ledger.Invoice
	items    map[int64][]ledger.PaymentLineItem
	settled  map[int64]time.Time
	receipts []ledger.Receipt
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		invoices: make(map[int64]ledger.Invoice),
		items:    make(map[int64][]ledger.PaymentLineItem),
		settled:  make(map[int64]time.Time),
	}
}

func (f *fakeLedgerStore) FindInvoice(ctx context.Context, id int64) (ledger.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return ledger.Invoice{}, ledger.ErrNotFound
	}
	return inv, nil
}

func (f *fakeLedgerStore) LineItems(ctx context.Context, invoiceIDs []int64) ([]ledger.PaymentLineItem, error) {
	var out []ledger.PaymentLineItem
	for _, id := range invoiceIDs {
		out = append(out, f.items[id]...)
	}
	return out, nil
}

func (f *fakeLedgerStore) FindLineItem(ctx context.Context, id int64) (ledger.PaymentLineItem, error) {
	for _, items := range f.items {
		for _, li := range items {
			if li.ID == id {
				return li, nil
			}
		}
	}
	return ledger.PaymentLineItem{}, ledger.ErrNotFound
}

func (f *fakeLedgerStore) SettleInvoice(ctx context.Context, id int64, reversal bool, effective time.Time) error {
	f.settled[id] = effective
	return nil
}

func (f *fakeLedgerStore) FindPartialRefund(ctx context.Context, id int64) (ledger.PartialRefund, error) {
	return ledger.PartialRefund{}, ledger.ErrNotFound
}

func (f *fakeLedgerStore) SetPartialRefundStatus(ctx context.Context, id int64, status ledger.PartialRefundStatus, glPosted *time.Time, glError string) error {
	return nil
}

func (f *fakeLedgerStore) SetPartialRefundGLError(ctx context.Context, id int64, message string) error {
	return nil
}

func (f *fakeLedgerStore) FindPartnerDisbursement(ctx context.Context, id int64) (ledger.PartnerDisbursement, error) {
	return ledger.PartnerDisbursement{}, ledger.ErrNotFound
}

func (f *fakeLedgerStore) UpsertReceipt(ctx context.Context, receipt ledger.Receipt) error {
	f.receipts = append(f.receipts, receipt)
	return nil
}

func (f *fakeLedgerStore) SetEFTTransferStatus(ctx context.Context, id int64, status batch.Status) error {
	return nil
}

func (f *fakeLedgerStore) FindRoutingSlipByNumber(ctx context.Context, number string) (ledger.RoutingSlip, error) {
	return ledger.RoutingSlip{}, ledger.ErrNotFound
}

func (f *fakeLedgerStore) SetRoutingSlipStatus(ctx context.Context, id int64, status ledger.RoutingSlipStatus) error {
	return nil
}

func (f *fakeLedgerStore) FindRefundByRoutingSlip(ctx context.Context, routingSlipID int64) (ledger.Refund, error) {
	return ledger.Refund{}, ledger.ErrNotFound
}

func (f *fakeLedgerStore) MarkRefundPosted(ctx context.Context, id int64, posted time.Time) error {
	return nil
}

func (f *fakeLedgerStore) FindEFTRefund(ctx context.Context, id int64) (ledger.EFTRefund, error) {
	return ledger.EFTRefund{}, ledger.ErrNotFound
}

func (f *fakeLedgerStore) SettleEFTRefund(ctx context.Context, id int64, status ledger.EFTRefundStatus, disbursement batch.Status, chequeProcessed bool, when time.Time) error {
	return nil
}

type fakeDistStore struct {
	codes   map[int64]distribution.Code
	stopped []int64
}

func (f *fakeDistStore) FindByID(ctx context.Context, id int64) (distribution.Code, error) {
	code, ok := f.codes[id]
	if !ok {
		return distribution.Code{}, distribution.ErrCodeNotFound
	}
	return code, nil
}

func (f *fakeDistStore) FindActiveForAccount(ctx context.Context, accountID int64) (distribution.Code, error) {
	for _, code := range f.codes {
		if code.AccountID != nil && *code.AccountID == accountID {
			return code, nil
		}
	}
	return distribution.Code{}, distribution.ErrCodeNotFound
}

func (f *fakeDistStore) SetStopEJV(ctx context.Context, id int64) error {
	f.stopped = append(f.stopped, id)
	return nil
}

type fakeDisbursal struct {
	completed map[int64]time.Time
	reversed  map[int64]time.Time
	errored   map[int64]bool
}

func newFakeDisbursal() *fakeDisbursal {
	return &fakeDisbursal{
		completed: make(map[int64]time.Time),
		reversed:  make(map[int64]time.Time),
		errored:   make(map[int64]bool),
	}
}

func (f *fakeDisbursal) Claim(ctx context.Context, id int64) (bool, error) {
	return true, nil
}

func (f *fakeDisbursal) Complete(ctx context.Context, id int64, effective time.Time) error {
	f.completed[id] = effective
	return nil
}

func (f *fakeDisbursal) Reverse(ctx context.Context, id int64, effective time.Time) error {
	f.reversed[id] = effective
	return nil
}

func (f *fakeDisbursal) MarkErrored(ctx context.Context, id int64) error {
	f.errored[id] = true
	return nil
}

func feedbackService(st stores, bucket Bucket, publisher Publisher) *Service {
	s := NewService(nil, bucket, publisher, Config{
		FeedbackFolder:     "cgi-feedback",
		RegistryClientCode: "112",
	}, slog.Default())
	s.runTx = func(ctx context.Context, fn func(stores) error) error {
		return fn(st)
	}
	return s
}

// lineFor renders a fixed-width feedback line from a schema's field widths.
func lineFor(schema cgi.RecordSchema, values map[string]string) string {
	var b strings.Builder
	for _, f := range schema.Fields {
		b.WriteString(fmt.Sprintf("%-*s", f.Width, values[f.Name]))
	}
	return b.String()
}

// jvFeedbackLines builds one journal voucher group for batch file 9, header 77
// and invoice 42, with the detail outcome under test.
func jvFeedbackLines(batchType, returnCode, creditDebit, message string) []string {
	return []string{
		lineFor(cgi.FeedbackBatchGroupSchema, map[string]string{
			"typeCode": batchType + "BG", "batchNumber": "000000009",
		}),
		lineFor(cgi.FeedbackBatchHeaderSchema, map[string]string{
			"typeCode": batchType + "BH", "returnCode": "0000",
		}),
		lineFor(cgi.FeedbackJVHeaderSchema, map[string]string{
			"typeCode": batchType + "JH", "journalName": "RG00000077",
			"journalBatchName": "RG000000009", "amount": "000000000031.50",
			"returnCode": "0000",
		}),
		lineFor(cgi.FeedbackJVDetailSchema, map[string]string{
			"typeCode": batchType + "JD", "journalName": "RG00000077",
			"lineNumber": "00001", "effectiveDate": "20260815",
			"glClient": "010", "amount": "000000000031.50",
			"creditDebit": creditDebit, "flowThrough": "42",
			"returnCode": returnCode, "returnMessage": message,
		}),
	}
}

func int64p(v int64) *int64 { return &v }

func TestProcessFeedbackSettlesDisbursement(t *testing.T) {
	batches := newFakeBatchStore()
	batches.files[9] = batch.File{ID: 9, FileType: batch.FileTypeDisbursement}
	batches.links = []*batch.LineLink{
		{ID: 500, HeaderID: 77, LinkID: 42, LinkType: batch.LinkTypeInvoice, Status: batch.StatusUploaded},
	}
	invoices := newFakeDisbursal()
	publisher := &fakePublisher{}
	bucket := &fakeBucket{content: strings.Join(jvFeedbackLines("GA", "0000", "C", ""), "\n")}

	s := feedbackService(stores{
		batches:  batches,
		led:      newFakeLedgerStore(),
		dist:     &fakeDistStore{codes: map[int64]distribution.Code{}},
		invoices: invoices,
		partners: newFakeDisbursal(),
	}, bucket, publisher)

	err := s.ProcessFeedback(context.Background(), "FEEDBACK.20260831")
	require.NoError(t, err)

	require.Equal(t, "FEEDBACK.20260831", batches.claimed[9])
	require.Equal(t, batch.StatusCompleted, batches.fileStatus[9])
	require.Equal(t, batch.StatusCompleted, batches.headerStatus[77])
	require.Equal(t, batch.StatusCompleted, batches.links[0].Status)
	require.Equal(t, time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC), invoices.completed[42])
	require.Empty(t, publisher.events)
}

func TestProcessFeedbackUpsertsReceiptOnPayment(t *testing.T) {
	batches := newFakeBatchStore()
	batches.files[9] = batch.File{ID: 9, FileType: batch.FileTypePayment}
	batches.links = []*batch.LineLink{
		{ID: 500, HeaderID: 77, LinkID: 42, LinkType: batch.LinkTypeInvoice, Status: batch.StatusUploaded},
	}
	led := newFakeLedgerStore()
	led.invoices[42] = ledger.Invoice{ID: 42, Status: ledger.InvoiceStatusPaid}
	publisher := &fakePublisher{}
	lines := jvFeedbackLines("GI", "0000", "D", "")
	bucket := &fakeBucket{content: strings.Join(lines, "\n")}

	s := feedbackService(stores{
		batches:  batches,
		led:      led,
		dist:     &fakeDistStore{codes: map[int64]distribution.Code{}},
		invoices: newFakeDisbursal(),
		partners: newFakeDisbursal(),
	}, bucket, publisher)

	err := s.ProcessFeedback(context.Background(), "FEEDBACK.20260831")
	require.NoError(t, err)

	require.Equal(t, batch.StatusCompleted, batches.links[0].Status)
	require.Contains(t, led.settled, int64(42))
	require.Len(t, led.receipts, 1)
	require.Equal(t, int64(42), led.receipts[0].InvoiceID)
	require.Equal(t, strings.TrimSpace(lines[2][:42]), led.receipts[0].ReceiptNumber)
	require.True(t, decimal.NewFromFloat(31.50).Equal(led.receipts[0].Amount))
	require.Empty(t, publisher.events)
}

func TestProcessFeedbackErrorStopsDistributionAndNotifiesOnce(t *testing.T) {
	batches := newFakeBatchStore()
	batches.files[9] = batch.File{ID: 9, FileType: batch.FileTypeDisbursement}
	batches.links = []*batch.LineLink{
		{ID: 500, HeaderID: 77, LinkID: 42, LinkType: batch.LinkTypeInvoice, Status: batch.StatusUploaded},
	}
	led := newFakeLedgerStore()
	led.items[42] = []ledger.PaymentLineItem{{ID: 1, InvoiceID: 42, FeeDistributionID: 10}}
	dist := &fakeDistStore{codes: map[int64]distribution.Code{
		10: {ID: 10, DisbursementDistributionID: int64p(20)},
		20: {ID: 20},
	}}
	invoices := newFakeDisbursal()
	publisher := &fakePublisher{}
	bucket := &fakeBucket{content: strings.Join(jvFeedbackLines("GA", "0001", "C", "BAD GL"), "\n")}

	s := feedbackService(stores{
		batches:  batches,
		led:      led,
		dist:     dist,
		invoices: invoices,
		partners: newFakeDisbursal(),
	}, bucket, publisher)

	err := s.ProcessFeedback(context.Background(), "FEEDBACK.20260831")
	require.NoError(t, err)

	require.Equal(t, batch.StatusErrored, batches.links[0].Status)
	require.Equal(t, "BAD GL", batches.links[0].Message)
	require.True(t, invoices.errored[42])
	require.Equal(t, []int64{20}, dist.stopped)
	require.Len(t, publisher.events, 1)
}

func TestProcessFeedbackSkipsRedeliveredFile(t *testing.T) {
	batches := newFakeBatchStore()
	batches.files[9] = batch.File{ID: 9, FileType: batch.FileTypeDisbursement}
	batches.claimed[9] = "FEEDBACK.20260830"
	batches.links = []*batch.LineLink{
		{ID: 500, HeaderID: 77, LinkID: 42, LinkType: batch.LinkTypeInvoice, Status: batch.StatusUploaded},
	}
	publisher := &fakePublisher{}
	bucket := &fakeBucket{content: strings.Join(jvFeedbackLines("GA", "0001", "C", "BAD GL"), "\n")}

	s := feedbackService(stores{
		batches:  batches,
		led:      newFakeLedgerStore(),
		dist:     &fakeDistStore{codes: map[int64]distribution.Code{}},
		invoices: newFakeDisbursal(),
		partners: newFakeDisbursal(),
	}, bucket, publisher)

	err := s.ProcessFeedback(context.Background(), "FEEDBACK.20260831")
	require.NoError(t, err)

	require.Equal(t, "FEEDBACK.20260830", batches.claimed[9])
	require.Empty(t, batches.fileStatus)
	require.Equal(t, batch.StatusUploaded, batches.links[0].Status)
	require.Empty(t, publisher.events)
}
