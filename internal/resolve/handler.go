package resolve

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openshelf/authz/internal/catalog"
	"github.com/openshelf/authz/internal/identity"
	"github.com/openshelf/authz/internal/platform/httpx"
)

// RoleSource supplies each principal's current role. Role assignment
// belongs to the identity system; this service only reads it.
type RoleSource interface {
	RoleFor(ctx context.Context, principalID int64) (catalog.Role, error)
}

// Handler wires the effective-permission endpoints.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	roles    RoleSource
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, roles RoleSource) *Handler {
	return &Handler{logger: logger, resolver: resolver, roles: roles}
}

// MountRoutes registers resolution routes under /users/{id}/permissions.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.effectivePermissions)
	r.Get("/{code}", h.checkPermission)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	principalID, role, ok := h.principalAndRole(w, r)
	if !ok {
		return
	}
	codes, err := h.resolver.EffectiveCodes(r.Context(), principalID, role)
	if err != nil {
		h.respondResolveError(w, principalID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal_id": principalID,
		"role":         role,
		"permissions":  codes,
	})
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	principalID, role, ok := h.principalAndRole(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	allowed, err := h.resolver.HasPermission(r.Context(), principalID, role, code)
	if err != nil {
		h.respondResolveError(w, principalID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal_id":    principalID,
		"role":            role,
		"permission_code": code,
		"allowed":         allowed,
	})
}

// principalAndRole extracts the principal id from the path and the role
// from the gateway-supplied query parameter, falling back to the
// identity system's assignment.
func (h *Handler) principalAndRole(w http.ResponseWriter, r *http.Request) (int64, catalog.Role, bool) {
	raw := chi.URLParam(r, "id")
	principalID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", "principal id must be an integer", "id")
		return 0, "", false
	}

	if rawRole := r.URL.Query().Get("role"); rawRole != "" {
		role, err := catalog.ParseRole(rawRole)
		if err != nil {
			httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Unknown Role",
				"role is not one of the fixed role names", "role")
			return 0, "", false
		}
		return principalID, role, true
	}

	role, err := h.roles.RoleFor(r.Context(), principalID)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownPrincipal) {
			httpx.FieldProblem(w, http.StatusNotFound, "Not Found", "principal has no role assignment", "id")
			return 0, "", false
		}
		h.respondResolveError(w, principalID, err)
		return 0, "", false
	}
	return principalID, role, true
}

func (h *Handler) respondResolveError(w http.ResponseWriter, principalID int64, err error) {
	var unknownRole *catalog.UnknownRoleError
	if errors.As(err, &unknownRole) {
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Unknown Role",
			"role is not one of the fixed role names", "role")
		return
	}
	h.logger.Error("resolve permissions", slog.Int64("principal_id", principalID), slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
