package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/events"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/actor"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// ReceiptService books medication that relatives bring in. Such stock is never billed.
type ReceiptService struct {
	store     repository.Store
	publisher *events.LedgerEventPublisher
	logger    *logger.Logger
	now       Clock
}

// NewReceiptService creates a new receipt service
func NewReceiptService(store repository.Store, publisher *events.LedgerEventPublisher, log *logger.Logger, clock Clock) *ReceiptService {
	return &ReceiptService{
		store:     store,
		publisher: publisher,
		logger:    log,
		now:       clock,
	}
}

// RecordExternalReceipt creates a zero-cost resident item and its receipt together.
// Every call creates a new item; receipts are not merged or deduplicated.
func (s *ReceiptService) RecordExternalReceipt(ctx context.Context, residentID string, form validation.ReceiptForm) (*domain.ResidentItem, error) {
	if residentID != "" {
		form.ResidentID = residentID
	}
	if err := validation.ExternalReceipt(form); err != nil {
		return nil, err
	}
	expires, err := validation.ParseDate(form.ExpirationDate)
	if err != nil {
		return nil, err
	}

	supplier := domain.SupplierRelatives
	var origin *string
	if form.IsForeign {
		supplier = domain.SupplierForeign
		origin = optional(form.OriginCountry)
	}

	now := s.now()
	receiptID := uuid.New().String()
	descriptor := domain.Descriptor{
		MedicationName:   strings.TrimSpace(form.MedicationName),
		ActiveIngredient: form.ActiveIngredient,
		Form:             form.Form,
	}

	item := &domain.ResidentItem{
		ID:             uuid.New().String(),
		ResidentID:     form.ResidentID,
		Descriptor:     descriptor,
		BatchNumber:    form.BatchNumber,
		ExpirationDate: expires,
		Quantity:       form.Quantity,
		Unit:           form.Unit,
		UnitCost:       decimal.Zero,
		EntryMethod:    domain.EntryExternalReceipt,
		SupplierID:     supplier,
		FundingSource:  domain.FundingFamily,
		SourceID:       &receiptID,
		PrescriptionID: optional(form.PrescriptionID),
		IsForeign:      form.IsForeign,
		OriginCountry:  origin,
		CreatedAt:      now,
	}
	receipt := &domain.ExternalReceipt{
		ID:             receiptID,
		ResidentID:     form.ResidentID,
		ResidentItemID: item.ID,
		Descriptor:     descriptor,
		BatchNumber:    form.BatchNumber,
		ExpirationDate: expires,
		Quantity:       form.Quantity,
		Unit:           form.Unit,
		BroughtBy:      form.BroughtBy,
		Relationship:   form.Relationship,
		ReceivedBy:     actor.IDFromContext(ctx),
		IsForeign:      form.IsForeign,
		OriginCountry:  origin,
		Notes:          optional(form.Notes),
		CreatedAt:      now,
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateResidentItem(ctx, item); err != nil {
			return err
		}
		return tx.CreateReceipt(ctx, receipt)
	})
	if err != nil {
		return nil, err
	}
	item.RefreshStatus(now)

	s.logger.Info().
		Str("receipt_id", receipt.ID).
		Str("resident_id", item.ResidentID).
		Str("resident_item_id", item.ID).
		Str("medication", item.MedicationName).
		Bool("foreign", item.IsForeign).
		Msg("external receipt recorded")

	s.publisher.PublishReceiptRecorded(ctx, receipt)

	return item, nil
}
