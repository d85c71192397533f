package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/httputil"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// maxImportBytes caps delivery note uploads.
const maxImportBytes = 4 << 20

// InventoryHandler handles bulk and resident stock endpoints
type InventoryHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(ledger *service.Ledger, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		ledger: ledger,
		logger: log,
	}
}

// ListBulk lists the central warehouse
func (h *InventoryHandler) ListBulk(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.Queries.BulkItems(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, items)
}

// GetBulk gets a bulk item
func (h *InventoryHandler) GetBulk(w http.ResponseWriter, r *http.Request) {
	item, err := h.ledger.Queries.BulkItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// CreateBulk records a manually entered bulk item
func (h *InventoryHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var form validation.BulkItemForm
	if err := httputil.DecodeJSON(r, &form); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.ledger.Bulk.Create(r.Context(), form)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, item)
}

// UpdateBulk edits a bulk item
func (h *InventoryHandler) UpdateBulk(w http.ResponseWriter, r *http.Request) {
	var form validation.BulkItemForm
	if err := httputil.DecodeJSON(r, &form); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.ledger.Bulk.Update(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// ImportDelivery books a supplier XML delivery note
func (h *InventoryHandler) ImportDelivery(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	items, err := h.ledger.Bulk.ImportXML(r.Context(), body)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, items)
}

// ListResidentItems lists a resident's personal stock
func (h *InventoryHandler) ListResidentItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.Queries.ResidentItems(r.Context(), chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, items)
}

// GetResidentItem gets a resident item
func (h *InventoryHandler) GetResidentItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.ledger.Queries.ResidentItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// Adjust applies a manual quantity correction to a resident item
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var form validation.AdjustmentForm
	if err := httputil.DecodeJSON(r, &form); err != nil {
		httputil.Error(w, err)
		return
	}

	entry, err := h.ledger.Dispense.ManualAdjustment(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, entry)
}
