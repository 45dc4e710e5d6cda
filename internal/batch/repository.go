package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so the repository can
// run standalone or inside a dispatch transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists batch files, headers and line links.
type Repository struct {
	db DBTX
}

// NewRepository constructs a Repository over a pool or transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// CreateFile allocates a batch file row and returns it. The returned id is
// the batch number source and must be allocated before content generation.
func (r *Repository) CreateFile(ctx context.Context, fileType FileType, fileRef string) (File, error) {
	const query = `
		INSERT INTO ejv_files (file_type, file_ref, disbursement_status, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, created_at`
	f := File{FileType: fileType, FileRef: fileRef, Status: StatusUploaded}
	if err := r.db.QueryRow(ctx, query, fileType, fileRef, StatusUploaded).Scan(&f.ID, &f.CreatedAt); err != nil {
		return File{}, fmt.Errorf("batch: create file: %w", err)
	}
	return f, nil
}

// GetFile loads a batch file by id.
func (r *Repository) GetFile(ctx context.Context, id int64) (File, error) {
	const query = `
		SELECT id, file_type, file_ref, feedback_file_ref, disbursement_status, COALESCE(message, ''), created_at
		FROM ejv_files WHERE id = $1`
	var f File
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.FileType, &f.FileRef, &f.FeedbackFileRef, &f.Status, &f.Message, &f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return File{}, fmt.Errorf("%w: id %d", ErrFileNotFound, id)
	}
	if err != nil {
		return File{}, fmt.Errorf("batch: get file: %w", err)
	}
	return f, nil
}

// ClaimFeedback records the feedback file reference against a batch file.
// It reports false when another run already claimed the file, which makes
// re-delivered feedback a no-op.
func (r *Repository) ClaimFeedback(ctx context.Context, id int64, feedbackRef string) (bool, error) {
	const query = `
		UPDATE ejv_files SET feedback_file_ref = $2
		WHERE id = $1 AND feedback_file_ref IS NULL`
	tag, err := r.db.Exec(ctx, query, id, feedbackRef)
	if err != nil {
		return false, fmt.Errorf("batch: claim feedback: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateFileStatus sets a file's disbursement status and return message.
func (r *Repository) UpdateFileStatus(ctx context.Context, id int64, status Status, message string) error {
	const query = `UPDATE ejv_files SET disbursement_status = $2, message = $3 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status, message); err != nil {
		return fmt.Errorf("batch: update file status: %w", err)
	}
	return nil
}

// CreateHeader allocates a header row for a partner or account journal.
func (r *Repository) CreateHeader(ctx context.Context, fileID int64, partnerCode string, accountID *int64) (Header, error) {
	const query = `
		INSERT INTO ejv_headers (ejv_file_id, partner_code, payment_account_id, disbursement_status)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		RETURNING id`
	h := Header{FileID: fileID, PartnerCode: partnerCode, AccountID: accountID, Status: StatusUploaded}
	if err := r.db.QueryRow(ctx, query, fileID, partnerCode, accountID, StatusUploaded).Scan(&h.ID); err != nil {
		return Header{}, fmt.Errorf("batch: create header: %w", err)
	}
	return h, nil
}

// GetHeader loads a header by id.
func (r *Repository) GetHeader(ctx context.Context, id int64) (Header, error) {
	const query = `
		SELECT id, ejv_file_id, COALESCE(partner_code, ''), payment_account_id, disbursement_status, COALESCE(message, '')
		FROM ejv_headers WHERE id = $1`
	var h Header
	err := r.db.QueryRow(ctx, query, id).Scan(&h.ID, &h.FileID, &h.PartnerCode, &h.AccountID, &h.Status, &h.Message)
	if errors.Is(err, pgx.ErrNoRows) {
		return Header{}, fmt.Errorf("%w: header id %d", ErrFileNotFound, id)
	}
	if err != nil {
		return Header{}, fmt.Errorf("batch: get header: %w", err)
	}
	return h, nil
}

// UpdateHeaderStatus sets a header's status and return message.
func (r *Repository) UpdateHeaderStatus(ctx context.Context, id int64, status Status, message string) error {
	const query = `UPDATE ejv_headers SET disbursement_status = $2, message = $3 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status, message); err != nil {
		return fmt.Errorf("batch: update header status: %w", err)
	}
	return nil
}

// CreateLink inserts a line link unless the same (header, link, type) triple
// already exists; two payment line items on one invoice share a link.
func (r *Repository) CreateLink(ctx context.Context, headerID, linkID int64, linkType LinkType, sequence int) error {
	const query = `
		INSERT INTO ejv_links (ejv_header_id, link_id, link_type, disbursement_status, sequence)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM ejv_links WHERE ejv_header_id = $1 AND link_id = $2 AND link_type = $3
		)`
	if _, err := r.db.Exec(ctx, query, headerID, linkID, linkType, StatusUploaded, sequence); err != nil {
		return fmt.Errorf("batch: create link: %w", err)
	}
	return nil
}

// FindLink resolves the line link for a feedback detail record.
func (r *Repository) FindLink(ctx context.Context, headerID, linkID int64, linkType LinkType) (LineLink, error) {
	const query = `
		SELECT id, ejv_header_id, link_id, link_type, disbursement_status, COALESCE(message, ''), COALESCE(sequence, 0)
		FROM ejv_links
		WHERE ejv_header_id = $1 AND link_id = $2 AND link_type = $3`
	var l LineLink
	err := r.db.QueryRow(ctx, query, headerID, linkID, linkType).Scan(
		&l.ID, &l.HeaderID, &l.LinkID, &l.LinkType, &l.Status, &l.Message, &l.Sequence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return LineLink{}, fmt.Errorf("%w: header %d link %d type %s", ErrLinkNotFound, headerID, linkID, linkType)
	}
	if err != nil {
		return LineLink{}, fmt.Errorf("batch: find link: %w", err)
	}
	return l, nil
}

// FindLinkByFile resolves a line link through its owning file, used by the AP
// feedback path where the header id is not echoed back.
func (r *Repository) FindLinkByFile(ctx context.Context, fileID, linkID int64, linkType LinkType) (LineLink, error) {
	const query = `
		SELECT l.id, l.ejv_header_id, l.link_id, l.link_type, l.disbursement_status, COALESCE(l.message, ''), COALESCE(l.sequence, 0)
		FROM ejv_links l
		JOIN ejv_headers h ON h.id = l.ejv_header_id
		WHERE h.ejv_file_id = $1 AND l.link_id = $2 AND l.link_type = $3`
	var l LineLink
	err := r.db.QueryRow(ctx, query, fileID, linkID, linkType).Scan(
		&l.ID, &l.HeaderID, &l.LinkID, &l.LinkType, &l.Status, &l.Message, &l.Sequence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return LineLink{}, fmt.Errorf("%w: file %d link %d type %s", ErrLinkNotFound, fileID, linkID, linkType)
	}
	if err != nil {
		return LineLink{}, fmt.Errorf("batch: find link by file: %w", err)
	}
	return l, nil
}

// TransitionLink advances a line link only when it still sits in one of the
// allowed source states. It reports false when stale feedback tries to
// re-apply a transition.
func (r *Repository) TransitionLink(ctx context.Context, id int64, from []Status, to Status, message string) (bool, error) {
	const query = `
		UPDATE ejv_links SET disbursement_status = $2, message = $3
		WHERE id = $1 AND disbursement_status = ANY($4)`
	tag, err := r.db.Exec(ctx, query, id, to, message, statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("batch: transition link: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
