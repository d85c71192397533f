package consumers

import (
	"context"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/medflow/medication-ledger/pkg/messaging"
)

// Reconciler applies administration outcomes to resident stock.
type Reconciler interface {
	ProcessAdministrationEvent(ctx context.Context, ev domain.AdministrationEvent) (*domain.DispenseLogEntry, error)
}

// AdministrationEventConsumer feeds administration events into the dispense reconciler
type AdministrationEventConsumer struct {
	consumer   *messaging.Consumer
	reconciler Reconciler
	logger     *logger.Logger
}

// NewAdministrationEventConsumer creates a new administration event consumer
func NewAdministrationEventConsumer(rmq *messaging.RabbitMQ, reconciler Reconciler, log *logger.Logger) (*AdministrationEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "medication-service.administration-events", log)
	if err != nil {
		return nil, err
	}

	// Subscribe to administration events
	if err := consumer.Subscribe(messaging.ExchangeAdministrationEvents, "administration.#"); err != nil {
		return nil, err
	}

	c := &AdministrationEventConsumer{
		consumer:   consumer,
		reconciler: reconciler,
		logger:     log,
	}

	consumer.RegisterHandler(messaging.EventAdministrationRecorded, c.HandleAdministrationRecorded)

	return c, nil
}

// NewAdministrationHandler builds the handler side alone, without a broker.
func NewAdministrationHandler(reconciler Reconciler, log *logger.Logger) *AdministrationEventConsumer {
	return &AdministrationEventConsumer{reconciler: reconciler, logger: log}
}

// Start starts consuming messages
func (c *AdministrationEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// HandleAdministrationRecorded reconciles one administration. Store failures are
// returned so the message is retried; events that cannot apply are acknowledged.
func (c *AdministrationEventConsumer) HandleAdministrationRecorded(ctx context.Context, event *messaging.Event) error {
	var data messaging.AdministrationRecordedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	log := c.logger.With().
		Str("administration_log_id", data.AdministrationLogID).
		Str("prescription_id", data.PrescriptionID).
		Str("status", data.Status).
		Logger()

	slot := domain.TimeSlot(data.TimeSlot)
	if !slot.Valid() {
		log.Warn().Str("time_slot", data.TimeSlot).Msg("administration with unknown time slot ignored")
		return nil
	}

	log.Info().Str("time_slot", data.TimeSlot).Msg("received administration event")

	entry, err := c.reconciler.ProcessAdministrationEvent(ctx, domain.AdministrationEvent{
		ID:             data.AdministrationLogID,
		PrescriptionID: data.PrescriptionID,
		ResidentID:     data.ResidentID,
		Status:         domain.AdministrationStatus(data.Status),
		TimeSlot:       slot,
		AdministeredAt: data.AdministeredAt,
	})
	if err != nil {
		return err
	}

	if entry != nil {
		log.Debug().Str("entry_id", entry.ID).Str("type", string(entry.Type)).Msg("administration reconciled")
	}
	return nil
}
