package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Medication ledger events
	EventTransferCreated  = "medication.transfer.created"
	EventReceiptRecorded  = "medication.receipt.recorded"
	EventDispenseRecorded = "medication.dispense.recorded"
	EventAlertGenerated   = "medication.alert.generated"

	// Administration events (consumed)
	EventAdministrationRecorded = "administration.recorded"
)

// Exchange names
const (
	ExchangeMedicationEvents     = "medication.events"
	ExchangeAdministrationEvents = "administration.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// TransferCreatedEvent is published after stock moved from the bulk warehouse to a resident
type TransferCreatedEvent struct {
	TransferID     string          `json:"transfer_id"`
	BulkItemID     string          `json:"bulk_item_id"`
	ResidentID     string          `json:"resident_id"`
	ResidentItemID string          `json:"resident_item_id"`
	MedicationName string          `json:"medication_name"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit"`
	Reason         string          `json:"reason"`
	PerformedBy    string          `json:"performed_by"`
}

// ReceiptRecordedEvent is published when relatives bring medication in
type ReceiptRecordedEvent struct {
	ReceiptID      string          `json:"receipt_id"`
	ResidentID     string          `json:"resident_id"`
	ResidentItemID string          `json:"resident_item_id"`
	MedicationName string          `json:"medication_name"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit"`
	IsForeign      bool            `json:"is_foreign"`
	ReceivedBy     string          `json:"received_by"`
}

// DispenseRecordedEvent is published for every dispense-log entry
type DispenseRecordedEvent struct {
	EntryID             string          `json:"entry_id"`
	Type                string          `json:"type"`
	ResidentID          string          `json:"resident_id"`
	ResidentInventoryID string          `json:"resident_inventory_id"`
	PrescriptionID      string          `json:"prescription_id,omitempty"`
	AdministrationLogID string          `json:"administration_log_id,omitempty"`
	QuantityDispensed   decimal.Decimal `json:"quantity_dispensed"`
	NewQuantity         decimal.Decimal `json:"new_quantity"`
	Unit                string          `json:"unit"`
}

// AlertGeneratedEvent is published by the alert scheduler for critical alerts
type AlertGeneratedEvent struct {
	AlertType      string          `json:"alert_type"`
	Severity       string          `json:"severity"`
	Warehouse      string          `json:"warehouse"`
	ItemID         string          `json:"item_id"`
	ResidentID     string          `json:"resident_id,omitempty"`
	MedicationName string          `json:"medication_name"`
	Quantity       decimal.Decimal `json:"quantity"`
	Message        string          `json:"message"`
}

// AdministrationRecordedEvent is what the administration service emits when a
// dose is given or refused.
type AdministrationRecordedEvent struct {
	AdministrationLogID string    `json:"administration_log_id"`
	PrescriptionID      string    `json:"prescription_id"`
	ResidentID          string    `json:"resident_id"`
	Status              string    `json:"status"`
	TimeSlot            string    `json:"time_slot"`
	AdministeredAt      time.Time `json:"administered_at"`
}
