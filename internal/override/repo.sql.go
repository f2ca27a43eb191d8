package override

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const overrideColumns = `principal_id, permission_code, id, override_type, reason, created_by, created_at, expires_at`

// Repository provides PostgreSQL backed persistence for overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOverrides returns every override for a principal, including
// expired ones. Activity filtering belongs to the caller.
func (r *Repository) ListOverrides(ctx context.Context, principalID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+overrideColumns+` FROM permission_overrides WHERE principal_id = $1 ORDER BY created_at, permission_code`,
		principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}

// GetOverride returns the override for the pair, or nil when absent.
func (r *Repository) GetOverride(ctx context.Context, principalID int64, code string) (*Override, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+overrideColumns+` FROM permission_overrides WHERE principal_id = $1 AND permission_code = $2`,
		principalID, code)
	o, err := scanOverride(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// InsertOverride inserts a new override. The uniqueness check and the
// write are a single statement: a concurrent insert for the same pair
// loses with DuplicateOverrideError.
func (r *Repository) InsertOverride(ctx context.Context, o Override) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permission_overrides (`+overrideColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.PrincipalID, o.PermissionCode, o.ID, o.Type, o.Reason, o.CreatedBy, o.CreatedAt, o.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &DuplicateOverrideError{PrincipalID: o.PrincipalID, PermissionCode: o.PermissionCode}
		}
		return err
	}
	return nil
}

// PutOverride inserts or replaces the override for its pair. The store
// contract is an unconditional upsert; the lifecycle service is the
// layer that refuses silent replacement.
func (r *Repository) PutOverride(ctx context.Context, o Override) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permission_overrides (`+overrideColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (principal_id, permission_code) DO UPDATE SET
		   id = EXCLUDED.id,
		   override_type = EXCLUDED.override_type,
		   reason = EXCLUDED.reason,
		   created_by = EXCLUDED.created_by,
		   created_at = EXCLUDED.created_at,
		   expires_at = EXCLUDED.expires_at`,
		o.PrincipalID, o.PermissionCode, o.ID, o.Type, o.Reason, o.CreatedBy, o.CreatedAt, o.ExpiresAt)
	return err
}

// DeleteOverride removes the override for the pair. It reports whether
// a row existed; deleting an absent override is not an error.
func (r *Repository) DeleteOverride(ctx context.Context, principalID int64, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM permission_overrides WHERE principal_id = $1 AND permission_code = $2`,
		principalID, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeExpired removes overrides whose expiry passed before the given
// instant. Storage reclamation only: queries never depend on it.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM permission_overrides WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOverride(row pgx.Row) (Override, error) {
	var o Override
	if err := row.Scan(&o.PrincipalID, &o.PermissionCode, &o.ID, &o.Type, &o.Reason, &o.CreatedBy, &o.CreatedAt, &o.ExpiresAt); err != nil {
		return Override{}, err
	}
	return o, nil
}
