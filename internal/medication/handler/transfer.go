package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/httputil"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// TransferHandler handles transfer and external receipt endpoints
type TransferHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(ledger *service.Ledger, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		ledger: ledger,
		logger: log,
	}
}

// CreateTransfer moves stock from the bulk warehouse to a resident
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var form validation.TransferForm
	if err := httputil.DecodeJSON(r, &form); err != nil {
		httputil.Error(w, err)
		return
	}

	transfer, err := h.ledger.Transfers.CreateTransfer(r.Context(), form)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, transfer)
}

// ListTransfers lists transfers, optionally for one resident
func (h *TransferHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.ledger.Queries.Transfers(r.Context(), r.URL.Query().Get("resident_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, transfers)
}

// RecordReceipt books medication brought in by relatives
func (h *TransferHandler) RecordReceipt(w http.ResponseWriter, r *http.Request) {
	var form validation.ReceiptForm
	if err := httputil.DecodeJSON(r, &form); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.ledger.Receipts.RecordExternalReceipt(r.Context(), chi.URLParam(r, "residentID"), form)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, item)
}

// ListReceipts lists external receipts, optionally for one resident
func (h *TransferHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.ledger.Queries.Receipts(r.Context(), r.URL.Query().Get("resident_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.List(w, receipts)
}
