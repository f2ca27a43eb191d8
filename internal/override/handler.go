package override

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/openshelf/authz/internal/platform/httpx"
)

// actorHeader carries the acting administrator's identity, supplied by
// the platform gateway. Identity verification is the gateway's job.
const actorHeader = "X-Actor-Id"

// Handler wires the override endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers override routes under /users/{id}/overrides.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listOverrides)
	r.Post("/", h.createOverride)
	r.Delete("/{code}", h.deleteOverride)
}

type createOverrideRequest struct {
	PermissionCode string `json:"permission_code" validate:"required"`
	OverrideType   string `json:"override_type" validate:"required,oneof=grant deny"`
	Reason         string `json:"reason" validate:"max=500"`
	ExpiresAt      string `json:"expires_at"`
}

type overrideResponse struct {
	ID             string  `json:"id"`
	PrincipalID    int64   `json:"principal_id"`
	PermissionCode string  `json:"permission_code"`
	OverrideType   string  `json:"override_type"`
	Reason         string  `json:"reason,omitempty"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
	ExpiresAt      *string `json:"expires_at,omitempty"`
}

func toResponse(o Override) overrideResponse {
	resp := overrideResponse{
		ID:             o.ID.String(),
		PrincipalID:    o.PrincipalID,
		PermissionCode: o.PermissionCode,
		OverrideType:   string(o.Type),
		Reason:         o.Reason,
		CreatedBy:      o.CreatedBy,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
	if o.ExpiresAt != nil {
		expires := o.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &expires
	}
	return resp
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	overrides, err := h.service.List(r.Context(), principalID)
	if err != nil {
		h.logger.Error("list overrides", slog.Int64("principal_id", principalID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]overrideResponse, 0, len(overrides))
	for _, o := range overrides {
		items = append(items, toResponse(o))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal_id": principalID,
		"overrides":    items,
	})
}

func (h *Handler) createOverride(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	actor := strings.TrimSpace(r.Header.Get(actorHeader))
	if actor == "" {
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", "actor identity header is required", actorHeader)
		return
	}

	var req createOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error(), fieldErrs[0].Field())
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	overrideType, valid := ParseType(req.OverrideType)
	if !valid {
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", "override_type must be grant or deny", "override_type")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		// RFC3339 requires an explicit offset; zone-less timestamps are
		// ambiguous and rejected here before the lifecycle runs.
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Invalid Expiry",
				"expires_at must be an RFC3339 timestamp with offset", "expires_at")
			return
		}
		expiresAt = &parsed
	}

	created, err := h.service.Create(r.Context(), CreateInput{
		PrincipalID:    principalID,
		PermissionCode: req.PermissionCode,
		Type:           overrideType,
		Reason:         strings.TrimSpace(req.Reason),
		Actor:          actor,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		h.respondCreateError(w, principalID, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) respondCreateError(w http.ResponseWriter, principalID int64, err error) {
	var unknownPerm *UnknownPermissionError
	var duplicate *DuplicateOverrideError
	var invalidExpiry *InvalidExpiryError
	switch {
	case errors.As(err, &unknownPerm):
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Unknown Permission",
			"permission code is not registered in the catalog", "permission_code")
	case errors.As(err, &duplicate):
		httpx.FieldProblem(w, http.StatusConflict, "Duplicate Override",
			"an override already exists for this permission; delete it first", "permission_code")
	case errors.As(err, &invalidExpiry):
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Invalid Expiry", invalidExpiry.Reason, "expires_at")
	default:
		h.logger.Error("create override", slog.Int64("principal_id", principalID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	actor := strings.TrimSpace(r.Header.Get(actorHeader))
	if actor == "" {
		actor = "unknown"
	}

	if err := h.service.Delete(r.Context(), principalID, code, actor); err != nil {
		h.logger.Error("delete override", slog.Int64("principal_id", principalID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func principalIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", "principal id must be an integer", "id")
		return 0, false
	}
	return id, true
}
