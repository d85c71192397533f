package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType names the condition an alert reports.
type AlertType string

const (
	AlertLowStock     AlertType = "low_stock"
	AlertDepleted     AlertType = "depleted"
	AlertExpired      AlertType = "expired"
	AlertExpiringSoon AlertType = "expiring_soon"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Warehouse tier an alert refers to.
type Warehouse string

const (
	WarehouseBulk     Warehouse = "bulk"
	WarehouseResident Warehouse = "resident"
)

// Alert is computed from ledger state on demand and never stored.
type Alert struct {
	Type            AlertType       `json:"type"`
	Severity        Severity        `json:"severity"`
	Warehouse       Warehouse       `json:"warehouse"`
	ItemID          string          `json:"item_id"`
	ResidentID      string          `json:"resident_id,omitempty"`
	MedicationName  string          `json:"medication_name"`
	BatchNumber     string          `json:"batch_number,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	MinimumStock    decimal.Decimal `json:"minimum_stock"`
	ExpirationDate  *time.Time      `json:"expiration_date,omitempty"`
	DaysUntilExpiry *int            `json:"days_until_expiry,omitempty"`
	Message         string          `json:"message"`
}
