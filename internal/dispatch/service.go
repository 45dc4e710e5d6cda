// Package dispatch assembles outbound interchange batches and hands them to
// the bucket transport. Each Run method covers one batch family end to end:
// candidate selection, claim, record generation and upload.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/finbatch/internal/batch"
	"github.com/odyssey-erp/finbatch/internal/cgi"
	"github.com/odyssey-erp/finbatch/internal/platform/db"
)

// Bucket is the outbound file transport.
type Bucket interface {
	Upload(ctx context.Context, folder, name string, data []byte) error
}

// Config carries the family-independent dispatch settings.
type Config struct {
	ProcessingFolder string
	// DisbursementDesc and TransferDesc are printf formats taking the
	// uppercase month name and two-digit day.
	DisbursementDesc string
	TransferDesc     string
	// EFTHoldingGL is the unpadded GL string funds sit in between EFT
	// receipt and partner transfer.
	EFTHoldingGL           string
	RegistryClientCode     string
	NonGovPartnerCode      string
	NonGovDistributionName string
}

// Service runs the outbound batch families.
type Service struct {
	pool   *pgxpool.Pool
	bucket Bucket
	cons   cgi.Constants
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastName string
}

// NewService constructs the dispatch service.
func NewService(pool *pgxpool.Pool, bucket Bucket, cons cgi.Constants, cfg Config, log *slog.Logger) *Service {
	return &Service{
		pool:   pool,
		bucket: bucket,
		cons:   cons,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// errEmptyBatch aborts a file transaction when nothing was batched; the file
// row rolls back and the run is a clean no-op.
var errEmptyBatch = errors.New("dispatch: nothing to batch")

// nextFileName returns a file name guaranteed to differ from the previous
// one. Two files inside one second would collide in the inbox, so the stamp
// is bumped forward instead of sleeping.
func (s *Service) nextFileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now()
	name := s.cons.FileName(t)
	for name == s.lastName {
		t = t.Add(time.Second)
		name = s.cons.FileName(t)
	}
	s.lastName = name
	return name
}

// buildFunc fills the builder with the records between batch header and
// trailer, claiming entities as it goes. Returning errEmptyBatch (or leaving
// the builder empty) rolls the file back.
type buildFunc func(ctx context.Context, tx pgx.Tx, file batch.File, batchNumber string, b *batch.Builder) error

// runFile executes one physical file as a single transaction: allocate the
// file row, build content, upload data plus trigger, commit. Everything
// before the upload rolls back cleanly on failure; a commit failure after the
// upload leaves an orphan file in the inbox and is flagged for manual
// reconciliation.
func (s *Service) runFile(ctx context.Context, fileType batch.FileType, batchType string, build buildFunc) error {
	fileName := s.nextFileName()
	uploaded := false

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		files := batch.NewRepository(tx)
		file, err := files.CreateFile(ctx, fileType, fileName)
		if err != nil {
			return err
		}
		batchNumber := s.cons.BatchNumber(file.ID)

		b := batch.NewBuilder()
		if err := build(ctx, tx, file, batchNumber, b); err != nil {
			return err
		}
		if b.Empty() {
			return errEmptyBatch
		}

		header, err := s.cons.BatchHeader(batchType, batchNumber, s.now())
		if err != nil {
			return err
		}
		trailer, err := s.cons.BatchTrailer(batchType, batchNumber, b.ControlTotal(), b.BatchTotal(), s.now())
		if err != nil {
			return err
		}
		content := header + b.Content() + trailer

		if err := s.bucket.Upload(ctx, s.cfg.ProcessingFolder, fileName, []byte(content)); err != nil {
			return err
		}
		if err := s.bucket.Upload(ctx, s.cfg.ProcessingFolder, s.cons.TriggerName(fileName), nil); err != nil {
			return err
		}
		uploaded = true

		s.log.Info("batch file uploaded",
			"file_id", file.ID,
			"file_type", fileType,
			"file_ref", fileName,
			"control_total", b.ControlTotal(),
			"batch_total", b.BatchTotal().String(),
		)
		return nil
	})

	if errors.Is(err, errEmptyBatch) {
		s.log.Debug("no candidates for batch", "file_type", fileType, "batch_type", batchType)
		return nil
	}
	if err != nil && uploaded {
		s.log.Error("batch uploaded but commit failed, manual reconciliation required",
			"file_type", fileType, "file_ref", fileName, "error", err)
	}
	return err
}

// description renders a dated batch description, uppercased month plus
// two-digit day, capped at the 100-character field.
func (s *Service) description(format string) string {
	t := s.now()
	desc := fmt.Sprintf(format, strings.ToUpper(t.Month().String()), fmt.Sprintf("%02d", t.Day()))
	if len(desc) > 100 {
		desc = desc[:100]
	}
	return desc
}

// accountDescription appends the invoice marker to the account name the way
// statements reference it.
func accountDescription(accountName string, invoiceID int64) string {
	marker := fmt.Sprintf("#%d", invoiceID)
	if len(accountName)+len(marker) > 100 {
		accountName = accountName[:100-len(marker)]
	}
	return accountName + marker
}
