package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// CustodyHandler handles the custody workflow: item definitions, asset units
// and consumable lots.
type CustodyHandler struct {
	Log *slog.Logger
	DB  *sqlx.DB
}

type createItemRequest struct {
	Name     string         `json:"name" validate:"required"`
	Category string         `json:"category"`
	Kind     model.ItemKind `json:"kind" validate:"required,oneof=asset consumable"`
}

type registerAssetRequest struct {
	ItemID int64  `json:"item_id" validate:"required,gt=0"`
	Tag    string `json:"tag"`
}

type custodyRequest struct {
	Status model.CustodyStatus `json:"status" validate:"required,oneof=in_storage in_use damaged lost disposed"`
}

type addLotRequest struct {
	ItemID    int64      `json:"item_id" validate:"required,gt=0"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// ListItems handles GET /api/items.
func (h *CustodyHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	kind := model.ItemKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid kind")
		return
	}

	items, err := store.ListItemDefinitions(r.Context(), h.DB, kind)
	if err != nil {
		serviceError(w, h.Log, "failed to list items", err)
		return
	}
	if items == nil {
		items = []model.ItemDefinition{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// CreateItem handles POST /api/items.
func (h *CustodyHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := store.CreateItemDefinition(r.Context(), h.DB, req.Name, req.Category, req.Kind)
	if err != nil {
		serviceError(w, h.Log, "failed to create item", err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// ListAssets handles GET /api/assets.
func (h *CustodyHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	var itemID int64
	if v := r.URL.Query().Get("item_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid item_id")
			return
		}
		itemID = id
	}
	custody := model.CustodyStatus(r.URL.Query().Get("status"))
	if custody != "" && !custody.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	assets, err := store.ListAssets(r.Context(), h.DB, itemID, custody)
	if err != nil {
		serviceError(w, h.Log, "failed to list assets", err)
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	jsonResponse(w, http.StatusOK, assets)
}

// RegisterAsset handles POST /api/assets.
func (h *CustodyHandler) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req registerAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	asset, err := store.RegisterAsset(r.Context(), h.DB, req.ItemID, req.Tag)
	if err != nil {
		serviceError(w, h.Log, "failed to register asset", err)
		return
	}
	jsonResponse(w, http.StatusCreated, asset)
}

// SetCustody handles PUT /api/assets/{id}/custody.
func (h *CustodyHandler) SetCustody(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var req custodyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	asset, err := store.SetAssetCustody(r.Context(), h.DB, id, req.Status)
	if err != nil {
		serviceError(w, h.Log, "failed to change custody", err)
		return
	}
	jsonResponse(w, http.StatusOK, asset)
}

// AddLot handles POST /api/lots.
func (h *CustodyHandler) AddLot(w http.ResponseWriter, r *http.Request) {
	var req addLotRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lot, err := store.AddLot(r.Context(), h.DB, req.ItemID, req.Quantity, req.ExpiresAt)
	if err != nil {
		serviceError(w, h.Log, "failed to add lot", err)
		return
	}
	jsonResponse(w, http.StatusCreated, lot)
}

// ExpireLot handles PUT /api/lots/{id}/expire.
func (h *CustodyHandler) ExpireLot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid lot id")
		return
	}

	if err := store.ExpireLot(r.Context(), h.DB, id); err != nil {
		serviceError(w, h.Log, "failed to expire lot", err)
		return
	}

	lot, err := store.GetLot(r.Context(), h.DB, id)
	if err != nil {
		serviceError(w, h.Log, "failed to get lot", err)
		return
	}
	jsonResponse(w, http.StatusOK, lot)
}
