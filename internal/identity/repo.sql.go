// Package identity reads the role assignments maintained by the
// identity system. This service never writes them.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/authz/internal/catalog"
)

// ErrUnknownPrincipal indicates the principal has no role assignment.
var ErrUnknownPrincipal = errors.New("identity: unknown principal")

// Repository provides read-only access to principal_roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RoleFor returns the principal's current role.
func (r *Repository) RoleFor(ctx context.Context, principalID int64) (catalog.Role, error) {
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT role FROM principal_roles WHERE principal_id = $1`,
		principalID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownPrincipal
		}
		return "", err
	}
	role, err := catalog.ParseRole(raw)
	if err != nil {
		// A stored role outside the enumeration is a config fault in
		// the identity data, surfaced, never silently defaulted.
		return "", fmt.Errorf("identity: principal %d: %w", principalID, err)
	}
	return role, nil
}
