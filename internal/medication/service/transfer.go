package service

import (
	"context"
	"strings"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/events"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/actor"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// TransferService moves stock from the bulk warehouse into residents' personal stock.
type TransferService struct {
	store     repository.Store
	publisher *events.LedgerEventPublisher
	logger    *logger.Logger
	now       Clock
}

// NewTransferService creates a new transfer service
func NewTransferService(store repository.Store, publisher *events.LedgerEventPublisher, log *logger.Logger, clock Clock) *TransferService {
	return &TransferService{
		store:     store,
		publisher: publisher,
		logger:    log,
		now:       clock,
	}
}

// CreateTransfer debits the bulk item, credits or creates the resident's matching item
// and records the transfer, all in one unit of work. The operator is the request actor.
func (s *TransferService) CreateTransfer(ctx context.Context, form validation.TransferForm) (*domain.Transfer, error) {
	if err := validation.Transfer(form); err != nil {
		return nil, err
	}

	bulk, err := s.store.GetBulkItem(ctx, form.BulkItemID)
	if err != nil {
		return nil, err
	}
	if form.Quantity.GreaterThan(bulk.Quantity) {
		return nil, errors.InsufficientStock(bulk.ID, bulk.Quantity, form.Quantity)
	}

	transfer := &domain.Transfer{
		BulkItemID:     bulk.ID,
		ResidentID:     form.ResidentID,
		MedicationName: bulk.MedicationName,
		BatchNumber:    bulk.BatchNumber,
		Quantity:       form.Quantity,
		Unit:           bulk.Unit,
		UnitCost:       bulk.UnitCost,
		Reason:         domain.TransferReason(form.Reason),
		Notes:          optional(form.Notes),
		PerformedBy:    actor.IDFromContext(ctx),
		CreatedAt:      s.now(),
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		// the debit re-checks stock inside the unit of work
		debited, err := tx.DebitBulkItem(ctx, bulk.ID, form.Quantity)
		if err != nil {
			return err
		}

		itemID, err := s.creditResident(ctx, tx, debited, form)
		if err != nil {
			return err
		}
		transfer.ResidentItemID = itemID

		return tx.CreateTransfer(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", transfer.ID).
		Str("bulk_item_id", bulk.ID).
		Str("resident_id", transfer.ResidentID).
		Str("resident_item_id", transfer.ResidentItemID).
		Str("quantity", transfer.Quantity.String()).
		Str("operator_id", transfer.PerformedBy).
		Msg("stock transferred to resident")

	s.publisher.PublishTransferCreated(ctx, transfer)

	return transfer, nil
}

// creditResident tops up the resident's facility-supplied item with the same medication
// and batch, or opens a new one. Family-supplied items are never topped up from bulk stock.
func (s *TransferService) creditResident(ctx context.Context, tx repository.Store, bulk *domain.BulkItem, form validation.TransferForm) (string, error) {
	items, err := tx.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: form.ResidentID})
	if err != nil {
		return "", err
	}

	for _, item := range items {
		if item.EntryMethod != domain.EntryBulkTransfer {
			continue
		}
		if domain.SameMedication(item.MedicationName, bulk.MedicationName) &&
			strings.TrimSpace(item.BatchNumber) == strings.TrimSpace(bulk.BatchNumber) {
			if _, err := tx.CreditResidentItem(ctx, item.ID, form.Quantity, bulk.UnitCost); err != nil {
				return "", err
			}
			return item.ID, nil
		}
	}

	sourceID := bulk.ID
	item := &domain.ResidentItem{
		ResidentID:     form.ResidentID,
		Descriptor:     bulk.Descriptor,
		BatchNumber:    bulk.BatchNumber,
		ExpirationDate: bulk.ExpirationDate,
		Quantity:       form.Quantity,
		Unit:           bulk.Unit,
		UnitCost:       bulk.UnitCost,
		EntryMethod:    domain.EntryBulkTransfer,
		SupplierID:     bulk.SupplierID,
		FundingSource:  bulk.FundingSource,
		SourceID:       &sourceID,
		PrescriptionID: optional(form.PrescriptionID),
		CreatedAt:      s.now(),
	}
	if err := tx.CreateResidentItem(ctx, item); err != nil {
		return "", err
	}
	return item.ID, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
