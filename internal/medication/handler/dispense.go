package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/httputil"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// DispenseHandler handles dispense log, administration and needs endpoints
type DispenseHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewDispenseHandler creates a new dispense handler
func NewDispenseHandler(ledger *service.Ledger, log *logger.Logger) *DispenseHandler {
	return &DispenseHandler{
		ledger: ledger,
		logger: log,
	}
}

// ListLog lists dispense-log entries, oldest first.
// Filters: resident_id, prescription_id, item_id, administration_log_id, type,
// time_slot, from and to (YYYY-MM-DD, to exclusive).
func (h *DispenseHandler) ListLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.DispenseLogFilter{
		ResidentID:          q.Get("resident_id"),
		PrescriptionID:      q.Get("prescription_id"),
		ResidentInventoryID: q.Get("item_id"),
		AdministrationLogID: q.Get("administration_log_id"),
		Type:                domain.DispenseType(q.Get("type")),
		TimeSlot:            domain.TimeSlot(q.Get("time_slot")),
	}

	var err error
	if filter.From, err = parseDay(q.Get("from"), "from"); err != nil {
		httputil.Error(w, err)
		return
	}
	if filter.To, err = parseDay(q.Get("to"), "to"); err != nil {
		httputil.Error(w, err)
		return
	}

	entries, err := h.ledger.Queries.DispenseLog(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, entries)
}

// RecordAdministration reconciles an administration posted directly rather than
// through the message broker.
func (h *DispenseHandler) RecordAdministration(w http.ResponseWriter, r *http.Request) {
	var ev domain.AdministrationEvent
	if err := httputil.DecodeJSON(r, &ev); err != nil {
		httputil.Error(w, err)
		return
	}

	details := make(map[string]string)
	if ev.PrescriptionID == "" {
		details["prescription_id"] = "this field is required"
	}
	if !ev.TimeSlot.Valid() {
		details["time_slot"] = "must be one of: morning noon evening night"
	}
	if ev.Status == "" {
		details["status"] = "this field is required"
	}
	if len(details) > 0 {
		httputil.Error(w, errors.Validation(details))
		return
	}

	entry, err := h.ledger.Dispense.ProcessAdministrationEvent(r.Context(), ev)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if entry == nil {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{"reconciled": false})
		return
	}
	httputil.Created(w, entry)
}

// ResidentNeeds reports prescriptions whose stock will not last four days
func (h *DispenseHandler) ResidentNeeds(w http.ResponseWriter, r *http.Request) {
	shortages, err := h.ledger.Dispense.CheckResidentNeeds(r.Context(), chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, shortages)
}

func parseDay(value, field string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(validation.DateLayout, value)
	if err != nil {
		return nil, errors.Validation(map[string]string{field: "must be a date in YYYY-MM-DD format"})
	}
	return &t, nil
}
