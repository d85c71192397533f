package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medication-ledger/internal/medication/catalog"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/httputil"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// ReportHandler serves alerts and cost summaries
type ReportHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(ledger *service.Ledger, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		ledger: ledger,
		logger: log,
	}
}

// Alerts lists current alerts. warehouse=bulk|resident narrows the scan;
// resident_id limits resident alerts to one resident.
func (h *ReportHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	residentID := q.Get("resident_id")

	var (
		alerts []domain.Alert
		err    error
	)
	switch domain.Warehouse(q.Get("warehouse")) {
	case domain.WarehouseBulk:
		alerts, err = h.ledger.Alerts.BulkAlerts(r.Context())
	case domain.WarehouseResident:
		alerts, err = h.ledger.Alerts.ResidentAlerts(r.Context(), residentID)
	case "":
		if residentID != "" {
			alerts, err = h.ledger.Alerts.ResidentAlerts(r.Context(), residentID)
		} else {
			alerts, err = h.ledger.Alerts.AllAlerts(r.Context())
		}
	default:
		err = errors.Validation(map[string]string{"warehouse": "must be one of: bulk resident"})
	}
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, alerts)
}

// ResidentCosts summarizes one resident's stock value
func (h *ReportHandler) ResidentCosts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Costs.ResidentSummary(r.Context(), chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}

// FacilityCosts summarizes stock value across the facility
func (h *ReportHandler) FacilityCosts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Costs.FacilitySummary(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}

// CatalogHandler exposes the supplier catalog read-only
type CatalogHandler struct {
	oracle catalog.Oracle
	logger *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(oracle catalog.Oracle, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		oracle: oracle,
		logger: log,
	}
}

// Search matches products by name or active ingredient
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	products, err := h.oracle.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, products)
}

// Product gets one product by code
func (h *CatalogHandler) Product(w http.ResponseWriter, r *http.Request) {
	product, err := h.oracle.Product(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, product)
}
