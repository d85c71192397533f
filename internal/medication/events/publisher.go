package events

import (
	"context"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/medflow/medication-ledger/pkg/messaging"
)

// Publisher is the transport the ledger events go out on. *messaging.Publisher
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// LedgerEventPublisher publishes medication ledger events. A nil publisher is a no-op,
// so services run unchanged when messaging is disabled.
type LedgerEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewLedgerEventPublisher declares the medication exchange and returns a publisher on it.
func NewLedgerEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*LedgerEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeMedicationEvents, "medication-service", log)
	if err != nil {
		return nil, err
	}

	return NewLedgerEventPublisherWith(publisher, log), nil
}

// NewLedgerEventPublisherWith wraps an existing transport.
func NewLedgerEventPublisherWith(publisher Publisher, log *logger.Logger) *LedgerEventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// PublishTransferCreated publishes a transfer created event
func (p *LedgerEventPublisher) PublishTransferCreated(ctx context.Context, t *domain.Transfer) {
	if p == nil {
		return
	}

	data := messaging.TransferCreatedEvent{
		TransferID:     t.ID,
		BulkItemID:     t.BulkItemID,
		ResidentID:     t.ResidentID,
		ResidentItemID: t.ResidentItemID,
		MedicationName: t.MedicationName,
		Quantity:       t.Quantity,
		Unit:           t.Unit,
		Reason:         string(t.Reason),
		PerformedBy:    t.PerformedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferCreated, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer created event")
	}
}

// PublishReceiptRecorded publishes an external receipt event
func (p *LedgerEventPublisher) PublishReceiptRecorded(ctx context.Context, r *domain.ExternalReceipt) {
	if p == nil {
		return
	}

	data := messaging.ReceiptRecordedEvent{
		ReceiptID:      r.ID,
		ResidentID:     r.ResidentID,
		ResidentItemID: r.ResidentItemID,
		MedicationName: r.MedicationName,
		Quantity:       r.Quantity,
		Unit:           r.Unit,
		IsForeign:      r.IsForeign,
		ReceivedBy:     r.ReceivedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventReceiptRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("receipt_id", r.ID).Msg("failed to publish receipt recorded event")
	}
}

// PublishDispenseRecorded publishes one dispense-log entry
func (p *LedgerEventPublisher) PublishDispenseRecorded(ctx context.Context, e *domain.DispenseLogEntry) {
	if p == nil {
		return
	}

	data := messaging.DispenseRecordedEvent{
		EntryID:             e.ID,
		Type:                string(e.Type),
		ResidentID:          e.ResidentID,
		ResidentInventoryID: e.ResidentInventoryID,
		PrescriptionID:      e.PrescriptionID,
		AdministrationLogID: e.AdministrationLogID,
		QuantityDispensed:   e.QuantityDispensed,
		NewQuantity:         e.NewQuantity,
		Unit:                e.Unit,
	}

	if err := p.publisher.Publish(ctx, messaging.EventDispenseRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("entry_id", e.ID).Msg("failed to publish dispense recorded event")
	}
}

// PublishAlertGenerated publishes an alert generated event
func (p *LedgerEventPublisher) PublishAlertGenerated(ctx context.Context, a *domain.Alert) {
	if p == nil {
		return
	}

	data := messaging.AlertGeneratedEvent{
		AlertType:      string(a.Type),
		Severity:       string(a.Severity),
		Warehouse:      string(a.Warehouse),
		ItemID:         a.ItemID,
		ResidentID:     a.ResidentID,
		MedicationName: a.MedicationName,
		Quantity:       a.Quantity,
		Message:        a.Message,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertGenerated, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", a.ItemID).Msg("failed to publish alert generated event")
	}
}
