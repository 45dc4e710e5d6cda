package distribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository loads and flags distribution codes.
type Repository struct {
	db DBTX
}

// NewRepository constructs a Repository over a pool or transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const codeColumns = `
	id, name, client, responsibility_centre, service_line, stob, project_code,
	service_fee_distribution_code_id, service_fee_gst_distribution_code_id,
	statutory_fees_gst_distribution_code_id, disbursement_distribution_code_id,
	COALESCE(stop_ejv, false), account_id`

func scanCode(row pgx.Row) (Code, error) {
	var c Code
	err := row.Scan(
		&c.ID, &c.Name, &c.Client, &c.ResponsibilityCentre, &c.ServiceLine, &c.STOB, &c.ProjectCode,
		&c.ServiceFeeDistributionID, &c.ServiceFeeGSTDistributionID, &c.StatutoryFeesGSTDistributionID,
		&c.DisbursementDistributionID, &c.StopEJV, &c.AccountID,
	)
	return c, err
}

// FindByID loads one distribution code.
func (r *Repository) FindByID(ctx context.Context, id int64) (Code, error) {
	query := `SELECT ` + codeColumns + ` FROM distribution_codes WHERE id = $1`
	c, err := scanCode(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Code{}, fmt.Errorf("%w: id %d", ErrCodeNotFound, id)
	}
	if err != nil {
		return Code{}, fmt.Errorf("distribution: find by id: %w", err)
	}
	return c, nil
}

// FindActiveForAccount loads the distribution code attached to a government
// payment account.
func (r *Repository) FindActiveForAccount(ctx context.Context, accountID int64) (Code, error) {
	query := `SELECT ` + codeColumns + ` FROM distribution_codes WHERE account_id = $1`
	c, err := scanCode(r.db.QueryRow(ctx, query, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Code{}, fmt.Errorf("%w: account %d", ErrCodeNotFound, accountID)
	}
	if err != nil {
		return Code{}, fmt.Errorf("distribution: find for account: %w", err)
	}
	return c, nil
}

// FindByName loads the currently effective distribution code with a name.
func (r *Repository) FindByName(ctx context.Context, name string) (Code, error) {
	query := `SELECT ` + codeColumns + `
		FROM distribution_codes
		WHERE name = $1
		  AND start_date <= CURRENT_DATE
		  AND (end_date IS NULL OR end_date >= CURRENT_DATE)`
	c, err := scanCode(r.db.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Code{}, fmt.Errorf("%w: name %q", ErrCodeNotFound, name)
	}
	if err != nil {
		return Code{}, fmt.Errorf("distribution: find by name: %w", err)
	}
	return c, nil
}

// ListGovAccountIDs returns the account ids eligible for a payment batch
// type, ordered for reproducible batch content. GA batches carry accounts on
// the registry's own client code; GI batches carry everyone else.
func (r *Repository) ListGovAccountIDs(ctx context.Context, batchType, registryClientCode string) ([]int64, error) {
	query := `
		SELECT account_id FROM distribution_codes
		WHERE (stop_ejv IS NULL OR stop_ejv = false)
		  AND account_id IS NOT NULL
		  AND (($2 = 'GA' AND client = $1) OR ($2 <> 'GA' AND client <> $1))
		ORDER BY account_id`
	rows, err := r.db.Query(ctx, query, registryClientCode, batchType)
	if err != nil {
		return nil, fmt.Errorf("distribution: list gov accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("distribution: list gov accounts: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStopEJV flags a code so later batch runs skip every line referencing it
// until an operator resolves the posting failure.
func (r *Repository) SetStopEJV(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE distribution_codes SET stop_ejv = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("distribution: set stop_ejv: %w", err)
	}
	return nil
}
