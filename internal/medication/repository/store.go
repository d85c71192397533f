// Package repository is the medication ledger's system of record. Store is the
// only way quantities change; Memory backs single-process deployments and tests,
// Postgres backs production.
package repository

import (
	"context"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/shopspring/decimal"
)

// ResidentItemFilter narrows ListResidentItems. Zero fields match everything.
type ResidentItemFilter struct {
	ResidentID     string
	PrescriptionID string
}

// DispenseLogFilter narrows ListDispenseLog. From is inclusive, To exclusive.
type DispenseLogFilter struct {
	ResidentID          string
	PrescriptionID      string
	ResidentInventoryID string
	AdministrationLogID string
	TimeSlot            domain.TimeSlot
	Type                domain.DispenseType
	From                *time.Time
	To                  *time.Time
}

// Store is the ledger contract. Lists are de-duplicated and returned in creation
// order; every write is visible to the next read.
type Store interface {
	CreateBulkItem(ctx context.Context, item *domain.BulkItem) error
	GetBulkItem(ctx context.Context, id string) (*domain.BulkItem, error)
	ListBulkItems(ctx context.Context) ([]domain.BulkItem, error)
	// UpdateBulkItem rewrites descriptor, batch, expiry, costs, minimum and quantity.
	UpdateBulkItem(ctx context.Context, item *domain.BulkItem) error
	// DebitBulkItem fails with errors.InsufficientStock rather than going below zero.
	DebitBulkItem(ctx context.Context, id string, qty decimal.Decimal) (*domain.BulkItem, error)

	CreateResidentItem(ctx context.Context, item *domain.ResidentItem) error
	GetResidentItem(ctx context.Context, id string) (*domain.ResidentItem, error)
	ListResidentItems(ctx context.Context, filter ResidentItemFilter) ([]domain.ResidentItem, error)
	// CreditResidentItem adds stock and blends the unit cost by weighted average.
	CreditResidentItem(ctx context.Context, id string, qty, unitCost decimal.Decimal) (*domain.ResidentItem, error)
	// UpdateResidentInventoryQuantity applies a signed delta, flooring the result at
	// zero and reporting the floor through QuantityChange.Clamped.
	UpdateResidentInventoryQuantity(ctx context.Context, id string, delta decimal.Decimal) (*domain.QuantityChange, error)

	CreateTransfer(ctx context.Context, t *domain.Transfer) error
	ListTransfers(ctx context.Context, residentID string) ([]domain.Transfer, error)
	CreateReceipt(ctx context.Context, r *domain.ExternalReceipt) error
	ListReceipts(ctx context.Context, residentID string) ([]domain.ExternalReceipt, error)
	AppendDispenseLog(ctx context.Context, e *domain.DispenseLogEntry) error
	ListDispenseLog(ctx context.Context, filter DispenseLogFilter) ([]domain.DispenseLogEntry, error)

	// WithTx runs fn as one unit of work. Nested calls join the outer unit.
	WithTx(ctx context.Context, fn func(Store) error) error
	SchemaVersion(ctx context.Context) (int, error)
}

func stamp(created *time.Time) time.Time {
	if created.IsZero() {
		*created = time.Now().UTC()
	}
	return *created
}

func matchesDispense(e *domain.DispenseLogEntry, f DispenseLogFilter) bool {
	switch {
	case f.ResidentID != "" && e.ResidentID != f.ResidentID:
		return false
	case f.PrescriptionID != "" && e.PrescriptionID != f.PrescriptionID:
		return false
	case f.ResidentInventoryID != "" && e.ResidentInventoryID != f.ResidentInventoryID:
		return false
	case f.AdministrationLogID != "" && e.AdministrationLogID != f.AdministrationLogID:
		return false
	case f.TimeSlot != "" && e.TimeSlot != f.TimeSlot:
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.From != nil && e.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !e.CreatedAt.Before(*f.To):
		return false
	}
	return true
}
