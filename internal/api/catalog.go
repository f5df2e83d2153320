package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/catalog"
)

// CatalogHandler serves the read-only catalog and inventory views.
type CatalogHandler struct {
	Log     *slog.Logger
	Service *catalog.Service
}

// Catalog handles GET /api/catalog.
func (h *CatalogHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.GetCatalog(r.Context())
	if err != nil {
		serviceError(w, h.Log, "failed to load catalog", err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Inventory handles GET /api/inventory.
func (h *CatalogHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.GetInventorySummary(r.Context())
	if err != nil {
		serviceError(w, h.Log, "failed to load inventory", err)
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}
