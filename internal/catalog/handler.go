package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openshelf/authz/internal/platform/httpx"
)

// Handler exposes the catalog listing.
type Handler struct {
	catalog *Catalog
}

// NewHandler builds Handler instance.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionItem struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type categoryGroup struct {
	Category    string           `json:"category"`
	Label       string           `json:"label"`
	Permissions []permissionItem `json:"permissions"`
}

type roleSummary struct {
	Role          string `json:"role"`
	BaselineCount int    `json:"baseline_count"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	var groups []categoryGroup
	for _, p := range h.catalog.Permissions() {
		item := permissionItem{Code: p.Code, Name: p.Name}
		if n := len(groups); n > 0 && groups[n-1].Category == string(p.Category) {
			groups[n-1].Permissions = append(groups[n-1].Permissions, item)
			continue
		}
		groups = append(groups, categoryGroup{
			Category:    string(p.Category),
			Label:       h.catalog.CategoryLabel(p.Category),
			Permissions: []permissionItem{item},
		})
	}

	roles := make([]roleSummary, 0, len(Roles()))
	for _, role := range Roles() {
		baseline, err := h.catalog.RolePermissions(role)
		if err != nil {
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		roles = append(roles, roleSummary{Role: string(role), BaselineCount: len(baseline)})
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"categories": groups,
		"roles":      roles,
	})
}
