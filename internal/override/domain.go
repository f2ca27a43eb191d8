// Package override implements per-principal permission overrides: the
// persistent store, the lifecycle write path, and the expiry rule.
package override

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the closed override kind enumeration.
type Type string

// Override kinds.
const (
	TypeGrant Type = "grant"
	TypeDeny  Type = "deny"
)

// ParseType validates a raw override type from a request boundary.
func ParseType(raw string) (Type, bool) {
	switch Type(raw) {
	case TypeGrant, TypeDeny:
		return Type(raw), true
	}
	return "", false
}

// Override is a per-principal exception to the role baseline. Identity
// is the (PrincipalID, PermissionCode) pair; ID is a surrogate for
// display and audit correlation.
type Override struct {
	ID             uuid.UUID
	PrincipalID    int64
	PermissionCode string
	Type           Type
	Reason         string
	CreatedBy      string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
}

// Active reports whether the override is in force at the given
// instant. Expiry is entirely a comparison against a stored timestamp:
// no component owns mutable expiry state and no sweeper is required
// for correctness.
func Active(o Override, now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// UnknownPermissionError reports a permission code absent from the catalog.
type UnknownPermissionError struct {
	Code string
}

func (e *UnknownPermissionError) Error() string {
	return fmt.Sprintf("override: unknown permission %q", e.Code)
}

// DuplicateOverrideError reports that an override already exists for
// the (principal, permission) pair. Callers replace by deleting first.
type DuplicateOverrideError struct {
	PrincipalID    int64
	PermissionCode string
}

func (e *DuplicateOverrideError) Error() string {
	return fmt.Sprintf("override: principal %d already has an override for %q", e.PrincipalID, e.PermissionCode)
}

// InvalidExpiryError reports an unparseable or non-future expiry timestamp.
type InvalidExpiryError struct {
	Value  string
	Reason string
}

func (e *InvalidExpiryError) Error() string {
	return fmt.Sprintf("override: invalid expiry %q: %s", e.Value, e.Reason)
}
