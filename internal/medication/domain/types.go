// Package domain holds the medication ledger's records and the pure rules
// derived from them (status, alerts, weighted cost, dosing).
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus is derived from quantity, minimum stock and expiration; it is never persisted.
type ItemStatus string

const (
	StatusAvailable ItemStatus = "available"
	StatusLow       ItemStatus = "low"
	StatusExpired   ItemStatus = "expired"
	StatusDepleted  ItemStatus = "depleted"
)

// EntryMethod records how stock entered a warehouse.
type EntryMethod string

const (
	EntryXMLImport       EntryMethod = "xml_import"
	EntryManual          EntryMethod = "manual_entry"
	EntryBulkTransfer    EntryMethod = "bulk_transfer"
	EntryExternalReceipt EntryMethod = "external_receipt"
)

// Provenance of family-supplied stock.
const (
	SupplierRelatives = "SUP-RELATIVES"
	SupplierForeign   = "SUP-FOREIGN"
	FundingFamily     = "family"
)

// Descriptor identifies a medication independent of batch and owner.
type Descriptor struct {
	MedicationName   string `db:"medication_name" json:"medication_name"`
	ActiveIngredient string `db:"active_ingredient" json:"active_ingredient,omitempty"`
	Form             string `db:"form" json:"form,omitempty"`
}

// BulkItem is a stock unit in the central warehouse (Warehouse A).
type BulkItem struct {
	ID string `db:"id" json:"id"`
	Descriptor
	BatchNumber    string          `db:"batch_number" json:"batch_number"`
	ExpirationDate *time.Time      `db:"expiration_date" json:"expiration_date,omitempty"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Unit           string          `db:"unit" json:"unit"`
	UnitCost       decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	EntryMethod    EntryMethod     `db:"entry_method" json:"entry_method"`
	SupplierID     string          `db:"supplier_id" json:"supplier_id"`
	FundingSource  string          `db:"funding_source" json:"funding_source"`
	MinimumStock   decimal.Decimal `db:"minimum_stock" json:"minimum_stock"`
	Status         ItemStatus      `db:"-" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// RefreshStatus recomputes the derived status as of now.
func (b *BulkItem) RefreshStatus(now time.Time) {
	b.Status = DeriveStatus(b.Quantity, b.MinimumStock, b.ExpirationDate, now)
}

// ResidentItem is a resident's personal stock (Warehouse B).
type ResidentItem struct {
	ID         string `db:"id" json:"id"`
	ResidentID string `db:"resident_id" json:"resident_id"`
	Descriptor
	BatchNumber    string          `db:"batch_number" json:"batch_number"`
	ExpirationDate *time.Time      `db:"expiration_date" json:"expiration_date,omitempty"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Unit           string          `db:"unit" json:"unit"`
	UnitCost       decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	EntryMethod    EntryMethod     `db:"entry_method" json:"entry_method"`
	SupplierID     string          `db:"supplier_id" json:"supplier_id"`
	FundingSource  string          `db:"funding_source" json:"funding_source"`
	// SourceID is the BulkItem or ExternalReceipt the item was created from.
	SourceID         *string         `db:"source_id" json:"source_id,omitempty"`
	PrescriptionID   *string         `db:"prescription_id" json:"prescription_id,omitempty"`
	IsForeign        bool            `db:"is_foreign" json:"is_foreign"`
	OriginCountry    *string         `db:"origin_country" json:"origin_country,omitempty"`
	MinimumStock     decimal.Decimal `db:"minimum_stock" json:"minimum_stock"`
	LastDispenseDate *time.Time      `db:"last_dispense_date" json:"last_dispense_date,omitempty"`
	Status           ItemStatus      `db:"-" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// RefreshStatus recomputes the derived status as of now.
func (r *ResidentItem) RefreshStatus(now time.Time) {
	r.Status = DeriveStatus(r.Quantity, r.MinimumStock, r.ExpirationDate, now)
}

// TransferReason explains why stock moved to a resident.
type TransferReason string

const (
	ReasonInitialSupply      TransferReason = "initial_supply"
	ReasonRefill             TransferReason = "refill"
	ReasonPrescriptionChange TransferReason = "prescription_change"
	ReasonOther              TransferReason = "other"
)

// Transfer records a movement from a bulk item to a resident item. Immutable.
type Transfer struct {
	ID             string          `db:"id" json:"id"`
	BulkItemID     string          `db:"bulk_item_id" json:"bulk_item_id"`
	ResidentID     string          `db:"resident_id" json:"resident_id"`
	ResidentItemID string          `db:"resident_item_id" json:"resident_item_id"`
	MedicationName string          `db:"medication_name" json:"medication_name"`
	BatchNumber    string          `db:"batch_number" json:"batch_number"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Unit           string          `db:"unit" json:"unit"`
	UnitCost       decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	Reason         TransferReason  `db:"reason" json:"reason"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	PerformedBy    string          `db:"performed_by" json:"performed_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ExternalReceipt records medication brought in by relatives. Always zero cost. Immutable.
type ExternalReceipt struct {
	ID             string `db:"id" json:"id"`
	ResidentID     string `db:"resident_id" json:"resident_id"`
	ResidentItemID string `db:"resident_item_id" json:"resident_item_id"`
	Descriptor
	BatchNumber    string          `db:"batch_number" json:"batch_number,omitempty"`
	ExpirationDate *time.Time      `db:"expiration_date" json:"expiration_date,omitempty"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Unit           string          `db:"unit" json:"unit"`
	BroughtBy      string          `db:"brought_by" json:"brought_by"`
	Relationship   string          `db:"relationship" json:"relationship"`
	ReceivedBy     string          `db:"received_by" json:"received_by"`
	IsForeign      bool            `db:"is_foreign" json:"is_foreign"`
	OriginCountry  *string         `db:"origin_country" json:"origin_country,omitempty"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// DispenseType classifies a dispense-log entry.
type DispenseType string

const (
	DispenseAuto    DispenseType = "auto_dispense"
	DispenseRestore DispenseType = "refusal_restore"
	DispenseManual  DispenseType = "manual_adjustment"
)

// DispenseLogEntry is the audit record of one reconciliation effect. Immutable.
//
// QuantityDispensed is positive for a deduction and negative for a restoration, so
// NewQuantity = PreviousQuantity - QuantityDispensed whenever no clamp applied.
type DispenseLogEntry struct {
	ID                  string          `db:"id" json:"id"`
	ResidentInventoryID string          `db:"resident_inventory_id" json:"resident_inventory_id"`
	ResidentID          string          `db:"resident_id" json:"resident_id"`
	PrescriptionID      string          `db:"prescription_id" json:"prescription_id,omitempty"`
	AdministrationLogID string          `db:"administration_log_id" json:"administration_log_id,omitempty"`
	QuantityDispensed   decimal.Decimal `db:"quantity_dispensed" json:"quantity_dispensed"`
	Unit                string          `db:"unit" json:"unit"`
	TimeSlot            TimeSlot        `db:"time_slot" json:"time_slot,omitempty"`
	Type                DispenseType    `db:"type" json:"type"`
	PreviousQuantity    decimal.Decimal `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity         decimal.Decimal `db:"new_quantity" json:"new_quantity"`
	Reason              string          `db:"reason" json:"reason,omitempty"`
	PerformedBy         string          `db:"performed_by" json:"performed_by"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// QuantityChange is the outcome of a signed quantity update on a resident item.
type QuantityChange struct {
	ItemID    string
	Previous  decimal.Decimal
	New       decimal.Decimal
	Requested decimal.Decimal
	// Applied differs from Requested only when the floor of zero was hit.
	Applied decimal.Decimal
	Clamped bool
}

// ShortageRecord flags a prescription whose matched stock cannot cover four days.
type ShortageRecord struct {
	ResidentID     string          `json:"resident_id"`
	PrescriptionID string          `json:"prescription_id"`
	MedicationName string          `json:"medication_name"`
	DailyDose      decimal.Decimal `json:"daily_dose"`
	FourDayNeed    decimal.Decimal `json:"four_day_need"`
	CurrentStock   decimal.Decimal `json:"current_stock"`
	Shortage       decimal.Decimal `json:"shortage"`
	Unit           string          `json:"unit"`
}
