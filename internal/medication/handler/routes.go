// Package handler exposes the medication ledger over HTTP under /api/v1/medication.
package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/medflow/medication-ledger/internal/medication/catalog"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// Mount registers every ledger route on r. A nil oracle leaves the catalog routes out.
func Mount(r chi.Router, ledger *service.Ledger, oracle catalog.Oracle, log *logger.Logger) {
	inventory := NewInventoryHandler(ledger, log)
	transfers := NewTransferHandler(ledger, log)
	dispense := NewDispenseHandler(ledger, log)
	reports := NewReportHandler(ledger, log)

	r.Route("/api/v1/medication", func(r chi.Router) {
		// Warehouse A
		r.Route("/bulk-items", func(r chi.Router) {
			r.Get("/", inventory.ListBulk)
			r.Post("/", inventory.CreateBulk)
			r.Post("/import", inventory.ImportDelivery)
			r.Get("/{id}", inventory.GetBulk)
			r.Put("/{id}", inventory.UpdateBulk)
		})

		// Warehouse B
		r.Route("/residents/{residentID}", func(r chi.Router) {
			r.Get("/items", inventory.ListResidentItems)
			r.Post("/receipts", transfers.RecordReceipt)
			r.Get("/needs", dispense.ResidentNeeds)
			r.Get("/costs", reports.ResidentCosts)
		})
		r.Route("/resident-items/{id}", func(r chi.Router) {
			r.Get("/", inventory.GetResidentItem)
			r.Post("/adjust", inventory.Adjust)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", transfers.ListTransfers)
			r.Post("/", transfers.CreateTransfer)
		})
		r.Get("/receipts", transfers.ListReceipts)

		r.Get("/dispense-log", dispense.ListLog)
		r.Post("/administrations", dispense.RecordAdministration)

		r.Get("/alerts", reports.Alerts)
		r.Get("/costs", reports.FacilityCosts)

		if oracle != nil {
			products := NewCatalogHandler(oracle, log)
			r.Get("/catalog/products", products.Search)
			r.Get("/catalog/products/{code}", products.Product)
		}
	})
}
