// Package validation checks operator input before any ledger mutation is attempted.
// Each function returns nil or a validation AppError carrying a json-field -> message map.
package validation

import (
	"strings"
	"time"

	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/httputil"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for expiration dates.
const DateLayout = "2006-01-02"

// TransferForm is a request to move stock from the bulk warehouse to a resident.
type TransferForm struct {
	BulkItemID     string          `json:"bulk_item_id" validate:"required"`
	ResidentID     string          `json:"resident_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	Reason         string          `json:"reason" validate:"required,oneof=initial_supply refill prescription_change other"`
	Notes          string          `json:"notes,omitempty" validate:"max=1000"`
	PrescriptionID string          `json:"prescription_id,omitempty"`
}

// ReceiptForm is medication handed over by relatives.
type ReceiptForm struct {
	ResidentID       string          `json:"resident_id" validate:"required"`
	MedicationName   string          `json:"medication_name" validate:"required,max=255"`
	ActiveIngredient string          `json:"active_ingredient,omitempty"`
	Form             string          `json:"form,omitempty"`
	BatchNumber      string          `json:"batch_number,omitempty"`
	ExpirationDate   string          `json:"expiration_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Quantity         decimal.Decimal `json:"quantity"`
	Unit             string          `json:"unit" validate:"required"`
	BroughtBy        string          `json:"brought_by" validate:"required"`
	Relationship     string          `json:"relationship" validate:"required"`
	IsForeign        bool            `json:"is_foreign"`
	OriginCountry    string          `json:"origin_country,omitempty" validate:"required_if=IsForeign true"`
	PrescriptionID   string          `json:"prescription_id,omitempty"`
	Notes            string          `json:"notes,omitempty" validate:"max=1000"`
	// UnitCost is accepted for form compatibility and always discarded.
	UnitCost decimal.Decimal `json:"unit_cost,omitempty"`
}

// BulkItemForm creates or edits a central warehouse item.
type BulkItemForm struct {
	MedicationName   string          `json:"medication_name" validate:"required,max=255"`
	ActiveIngredient string          `json:"active_ingredient,omitempty"`
	Form             string          `json:"form,omitempty"`
	BatchNumber      string          `json:"batch_number" validate:"required"`
	ExpirationDate   string          `json:"expiration_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Quantity         decimal.Decimal `json:"quantity"`
	Unit             string          `json:"unit" validate:"required"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	EntryMethod      string          `json:"entry_method" validate:"required,oneof=xml_import manual_entry"`
	SupplierID       string          `json:"supplier_id,omitempty"`
	FundingSource    string          `json:"funding_source,omitempty"`
	MinimumStock     decimal.Decimal `json:"minimum_stock"`
}

// AdjustmentForm is an operator correction of a resident item's quantity.
type AdjustmentForm struct {
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

// Transfer validates a transfer request.
func Transfer(f TransferForm) error {
	details := collect(f)
	positive(details, "quantity", f.Quantity)
	return result(details)
}

// ExternalReceipt validates a relative's delivery.
func ExternalReceipt(f ReceiptForm) error {
	details := collect(f)
	positive(details, "quantity", f.Quantity)
	if f.IsForeign && strings.TrimSpace(f.OriginCountry) == "" {
		details["origin_country"] = "this field is required"
	}
	return result(details)
}

// BulkItem validates a bulk item create or edit.
func BulkItem(f BulkItemForm) error {
	details := collect(f)
	nonNegative(details, "quantity", f.Quantity)
	nonNegative(details, "unit_cost", f.UnitCost)
	nonNegative(details, "minimum_stock", f.MinimumStock)
	return result(details)
}

// Adjustment validates a manual correction.
func Adjustment(f AdjustmentForm) error {
	details := collect(f)
	if f.Delta.IsZero() {
		details["delta"] = "must not be zero"
	}
	if strings.TrimSpace(f.Reason) == "" {
		details["reason"] = "this field is required"
	}
	return result(details)
}

// ParseDate reads an optional YYYY-MM-DD date. Empty input yields nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, errors.Validation(map[string]string{"expiration_date": "must be a date in YYYY-MM-DD format"})
	}
	return &t, nil
}

func collect(v interface{}) map[string]string {
	details := httputil.ValidationDetails(v)
	if details == nil {
		details = make(map[string]string)
	}
	return details
}

func positive(details map[string]string, field string, d decimal.Decimal) {
	if !d.IsPositive() {
		details[field] = "must be greater than 0"
	}
}

func nonNegative(details map[string]string, field string, d decimal.Decimal) {
	if d.IsNegative() {
		details[field] = "must be 0 or greater"
	}
}

func result(details map[string]string) error {
	if len(details) == 0 {
		return nil
	}
	return errors.Validation(details)
}
