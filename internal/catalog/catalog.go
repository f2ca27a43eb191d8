// Package catalog holds the static permission registry and the
// per-role baseline permission sets. The catalog is read-only
// configuration: it is built once at startup and shared without
// synchronization.
package catalog

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category groups permissions for presentation only; it carries no
// resolution semantics.
type Category string

// Permission categories.
const (
	CategoryBooks       Category = "books"
	CategoryStudents    Category = "students"
	CategoryCirculation Category = "circulation"
	CategoryFines       Category = "fines"
	CategoryReports     Category = "reports"
	CategoryAdmin       Category = "admin"
)

// Permission is an atomic capability registered in the catalog.
type Permission struct {
	Code     string
	Name     string
	Category Category
}

// Role is one of the fixed role names supplied by the identity system.
type Role string

// The closed role enumeration.
const (
	RoleSuperAdmin Role = "super-admin"
	RoleAdmin      Role = "admin"
	RoleLibrarian  Role = "librarian"
	RoleStaff      Role = "staff"
	RoleSystem     Role = "system"
)

// UnknownRoleError reports a role outside the fixed enumeration.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("catalog: unknown role %q", e.Role)
}

// ParseRole validates a raw role name from a request boundary.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleSuperAdmin, RoleAdmin, RoleLibrarian, RoleStaff, RoleSystem:
		return Role(raw), nil
	}
	return "", &UnknownRoleError{Role: raw}
}

// Roles returns the role enumeration in privilege order.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleLibrarian, RoleStaff, RoleSystem}
}

// Catalog exposes the registered permissions and role baselines.
type Catalog struct {
	permissions []Permission
	byCode      map[string]Permission
	baselines   map[Role]map[string]struct{}
	titler      cases.Caser
}

// New builds the catalog from the static tables in data.go.
func New() *Catalog {
	c := &Catalog{
		permissions: make([]Permission, len(registeredPermissions)),
		byCode:      make(map[string]Permission, len(registeredPermissions)),
		baselines:   make(map[Role]map[string]struct{}, len(roleBaselines)),
		titler:      cases.Title(language.English),
	}
	copy(c.permissions, registeredPermissions)
	for _, p := range c.permissions {
		c.byCode[p.Code] = p
	}
	for role, codes := range roleBaselines {
		set := make(map[string]struct{}, len(codes))
		for _, code := range codes {
			if _, ok := c.byCode[code]; !ok {
				panic(fmt.Sprintf("catalog: role %s references unregistered permission %s", role, code))
			}
			set[code] = struct{}{}
		}
		c.baselines[role] = set
	}
	return c
}

// Permissions returns the catalog listing in registration order,
// grouped by category. The order is presentational only.
func (c *Catalog) Permissions() []Permission {
	out := make([]Permission, len(c.permissions))
	copy(out, c.permissions)
	return out
}

// RolePermissions returns a copy of the baseline permission-code set
// for the given role.
func (c *Catalog) RolePermissions(role Role) (map[string]struct{}, error) {
	baseline, ok := c.baselines[role]
	if !ok {
		return nil, &UnknownRoleError{Role: string(role)}
	}
	out := make(map[string]struct{}, len(baseline))
	for code := range baseline {
		out[code] = struct{}{}
	}
	return out, nil
}

// IsValidCode reports whether the code is registered in the catalog.
func (c *Catalog) IsValidCode(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

// Lookup returns the registered permission for a code.
func (c *Catalog) Lookup(code string) (Permission, bool) {
	p, ok := c.byCode[code]
	return p, ok
}

// CategoryLabel derives the display label for a category key.
func (c *Catalog) CategoryLabel(category Category) string {
	return c.titler.String(string(category))
}
